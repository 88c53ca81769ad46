package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"trigger-console/internal/store"
)

var (
	ErrInvalidCredentials  = errors.New("invalid username or password")
	ErrAccountDisabled     = errors.New("account is disabled")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)

// Options configure token signing and lifetimes.
type Options struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Service issues and rotates console tokens. Users and refresh tokens live
// in the console database.
type Service struct {
	store      *store.Store
	access     signer
	refreshTTL time.Duration
	now        func() time.Time
}

func NewService(s *store.Store, opts Options) *Service {
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = DefaultAccessTTL
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = DefaultRefreshTTL
	}
	return &Service{
		store:      s,
		access:     signer{secret: []byte(opts.Secret), ttl: opts.AccessTTL},
		refreshTTL: opts.RefreshTTL,
		now:        time.Now,
	}
}

// Login checks the password and returns a fresh token pair.
func (s *Service) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	pb := s.store.Dialect.NewParamBuilder()
	user, err := store.QueryRow(ctx, s.store.DB,
		"SELECT id, username, password_hash, roles, active FROM _users WHERE username = "+pb.Add(username),
		pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	s.normalize(user)

	if active, _ := user["active"].(bool); !active {
		return nil, ErrAccountDisabled
	}
	hash, _ := user["password_hash"].(string)
	if !CheckPassword(password, hash) {
		return nil, ErrInvalidCredentials
	}

	userID, _ := user["id"].(string)
	name, _ := user["username"].(string)
	roles, err := s.store.Dialect.ScanArray(user["roles"])
	if err != nil {
		return nil, fmt.Errorf("read roles: %w", err)
	}
	log.Infof("auth: %s logged in", name)
	return s.issue(ctx, User{ID: userID, Name: name, Roles: roles})
}

// Refresh rotates a refresh token: the presented token is consumed and a
// new pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	pb := s.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, s.store.DB,
		`SELECT rt.id, rt.user_id, rt.expires_at, u.username, u.roles, u.active
		 FROM _refresh_tokens rt
		 JOIN _users u ON u.id = rt.user_id
		 WHERE rt.token = `+pb.Add(refreshToken),
		pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	s.normalize(row)

	tokenID, _ := row["id"].(string)
	if err := s.deleteToken(ctx, "id", tokenID); err != nil {
		return nil, err
	}

	if s.now().After(toTime(row["expires_at"])) {
		return nil, ErrRefreshTokenExpired
	}
	if active, _ := row["active"].(bool); !active {
		return nil, ErrAccountDisabled
	}

	userID, _ := row["user_id"].(string)
	name, _ := row["username"].(string)
	roles, err := s.store.Dialect.ScanArray(row["roles"])
	if err != nil {
		return nil, fmt.Errorf("read roles: %w", err)
	}
	return s.issue(ctx, User{ID: userID, Name: name, Roles: roles})
}

// Logout revokes a refresh token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return ErrInvalidRefreshToken
	}
	return s.deleteToken(ctx, "token", refreshToken)
}

// Verify parses an access token into the user it was issued to.
func (s *Service) Verify(accessToken string) (*User, error) {
	claims, err := s.access.parse(accessToken, s.now)
	if err != nil {
		return nil, err
	}
	return &User{ID: claims.Subject, Name: claims.Actor, Roles: claims.Roles}, nil
}

func (s *Service) issue(ctx context.Context, u User) (*TokenPair, error) {
	now := s.now()
	access, err := s.access.sign(u, now)
	if err != nil {
		return nil, err
	}

	refresh := uuid.NewString()
	pb := s.store.Dialect.NewParamBuilder()
	_, err = store.Exec(ctx, s.store.DB,
		fmt.Sprintf("INSERT INTO _refresh_tokens (id, user_id, token, expires_at) VALUES (%s, %s, %s, %s)",
			pb.Add(uuid.NewString()), pb.Add(u.ID), pb.Add(refresh), pb.Add(now.UTC().Add(s.refreshTTL))),
		pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(s.access.ttl / time.Second),
	}, nil
}

func (s *Service) deleteToken(ctx context.Context, column, value string) error {
	pb := s.store.Dialect.NewParamBuilder()
	if _, err := store.Exec(ctx, s.store.DB,
		fmt.Sprintf("DELETE FROM _refresh_tokens WHERE %s = %s", column, pb.Add(value)),
		pb.Params()...); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

func (s *Service) normalize(row map[string]any) {
	if s.store.Dialect.NeedsBoolFix() {
		store.NormalizeBooleans([]map[string]any{row}, "active")
	}
}

// toTime reads a timestamp column. SQLite may hand back text.
func toTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		for _, layout := range []string{"2006-01-02 15:04:05.999999999-07:00", time.RFC3339Nano, "2006-01-02 15:04:05"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed
			}
		}
	}
	return time.Time{}
}
