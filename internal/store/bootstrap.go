package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// DefaultAdminPassword is used when no admin password hash is configured.
const DefaultAdminPassword = "changeme"

// ConsoleTables are the tables Bootstrap owns.
var ConsoleTables = []string{"_users", "_refresh_tokens", "_console_events"}

// Bootstrap creates missing console tables and seeds the administrator
// account. An empty passwordHash seeds the default password on first start
// only.
func (s *Store) Bootstrap(ctx context.Context, adminUser, passwordHash string) error {
	missing, err := s.MissingTables(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap console tables: %w", err)
	}
	if len(missing) > 0 {
		if _, err := s.DB.ExecContext(ctx, s.Dialect.ConsoleTablesSQL()); err != nil {
			return fmt.Errorf("bootstrap console tables: %w", err)
		}
		if still, err := s.MissingTables(ctx); err != nil {
			return fmt.Errorf("bootstrap console tables: %w", err)
		} else if len(still) > 0 {
			return fmt.Errorf("bootstrap console tables: %s not created", strings.Join(still, ", "))
		}
		log.Infof("store: created %s", strings.Join(missing, ", "))
	}
	if err := s.seedAdminUser(ctx, adminUser, passwordHash); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	return nil
}

func (s *Store) seedAdminUser(ctx context.Context, username, passwordHash string) error {
	pb := s.Dialect.NewParamBuilder()
	row, err := QueryRow(ctx, s.DB,
		fmt.Sprintf("SELECT id, password_hash FROM _users WHERE username = %s", pb.Add(username)),
		pb.Params()...)
	if err == nil {
		// Keep the stored account in step with a configured hash.
		if current, _ := row["password_hash"].(string); passwordHash != "" && current != passwordHash {
			pb := s.Dialect.NewParamBuilder()
			_, err := Exec(ctx, s.DB,
				fmt.Sprintf("UPDATE _users SET password_hash = %s WHERE id = %s", pb.Add(passwordHash), pb.Add(row["id"])),
				pb.Params()...)
			return err
		}
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}

	if passwordHash == "" {
		hashBytes, err := bcrypt.GenerateFromPassword([]byte(DefaultAdminPassword), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		passwordHash = string(hashBytes)
		log.Warnf("store: default admin user created (%s / %s), set auth.admin_password_hash", username, DefaultAdminPassword)
	}

	pb = s.Dialect.NewParamBuilder()
	_, err = Exec(ctx, s.DB,
		fmt.Sprintf("INSERT INTO _users (id, username, password_hash, roles) VALUES (%s, %s, %s, %s)",
			pb.Add(uuid.New().String()), pb.Add(username), pb.Add(passwordHash),
			pb.Add(s.Dialect.ArrayParam([]string{"admin"}))),
		pb.Params()...)
	return MapError(s.Dialect, err)
}

// MissingTables lists the console tables that do not exist yet.
func (s *Store) MissingTables(ctx context.Context) ([]string, error) {
	var missing []string
	for _, table := range ConsoleTables {
		ok, err := s.Dialect.TableExists(ctx, s.DB, table)
		if err != nil {
			return nil, fmt.Errorf("check table %s: %w", table, err)
		}
		if !ok {
			missing = append(missing, table)
		}
	}
	return missing, nil
}
