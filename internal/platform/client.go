package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"trigger-console/internal/metadata"
)

const maxErrorBodyBytes = 512

// ClientConfig configures the HTTP platform client.
type ClientConfig struct {
	BaseURL   string
	Token     string
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 disables limiting
	RateBurst int
}

// Client talks to the platform's trigger metadata API over JSON/HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient builds a Client. BaseURL is required.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("platform base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse platform base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
	}, nil
}

func (c *Client) FetchAll(ctx context.Context) ([]metadata.Record, error) {
	var out struct {
		Data []metadata.Record `json:"data"`
	}
	if err := c.do(ctx, "fetchAll", http.MethodGet, "/trigger-metadata", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) ObjectTypeExists(ctx context.Context, name string) (bool, error) {
	var out struct {
		Exists bool `json:"exists"`
	}
	path := "/object-types/" + url.PathEscape(name)
	if err := c.do(ctx, "objectTypeExists", http.MethodGet, path, nil, &out); err != nil {
		return false, err
	}
	return out.Exists, nil
}

func (c *Client) ClassDetails(ctx context.Context, className string, event metadata.EventType) (ClassDetails, error) {
	var out ClassDetails
	q := url.Values{}
	q.Set("event", string(event))
	path := "/classes/" + url.PathEscape(className) + "?" + q.Encode()
	if err := c.do(ctx, "classDetails", http.MethodGet, path, nil, &out); err != nil {
		return ClassDetails{}, err
	}
	return out, nil
}

func (c *Client) DeveloperNameInUse(ctx context.Context, name, excludingID string) (bool, error) {
	var out struct {
		InUse bool `json:"inUse"`
	}
	q := url.Values{}
	q.Set("name", name)
	if excludingID != "" {
		q.Set("excludingId", excludingID)
	}
	if err := c.do(ctx, "developerNameInUse", http.MethodGet, "/developer-names?"+q.Encode(), nil, &out); err != nil {
		return false, err
	}
	return out.InUse, nil
}

func (c *Client) Create(ctx context.Context, records []metadata.Record) ([]metadata.Record, error) {
	body := struct {
		Records []metadata.Record `json:"records"`
	}{Records: records}
	var out struct {
		Data []metadata.Record `json:"data"`
	}
	if err := c.do(ctx, "create", http.MethodPost, "/trigger-metadata", body, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &ServiceError{Op: op, Err: err}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &ServiceError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &ServiceError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &ServiceError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	log.Debugf("platform %s %s -> %d (%s)", method, path, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &ServiceError{Op: op, Status: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(snippet)))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ServiceError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
