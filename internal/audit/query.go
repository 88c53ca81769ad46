package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"trigger-console/internal/store"
)

// ListFilter narrows List results. Zero values mean no restriction.
type ListFilter struct {
	Action   string
	RecordID string
	Limit    int
}

// List returns audit events newest first.
func List(ctx context.Context, s *store.Store, f ListFilter) ([]Event, error) {
	pb := s.Dialect.NewParamBuilder()
	var where []string
	if f.Action != "" {
		where = append(where, "action = "+pb.Add(f.Action))
	}
	if f.RecordID != "" {
		where = append(where, "record_id = "+pb.Add(f.RecordID))
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	sqlStr := "SELECT " + strings.Join(eventColumns, ", ") + " FROM _console_events"
	if len(where) > 0 {
		sqlStr += " WHERE " + strings.Join(where, " AND ")
	}
	sqlStr += " ORDER BY created_at DESC LIMIT " + pb.Add(limit)

	rows, err := store.QueryRows(ctx, s.DB, sqlStr, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}

	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, eventFromRow(row))
	}
	return events, nil
}

func eventFromRow(row map[string]any) Event {
	e := Event{
		ID:            str(row["id"]),
		Action:        str(row["action"]),
		RecordID:      str(row["record_id"]),
		DeveloperName: str(row["developer_name"]),
		UserID:        str(row["user_id"]),
		Status:        str(row["status"]),
	}
	if t, ok := row["created_at"].(time.Time); ok {
		e.CreatedAt = t
	}
	switch meta := row["metadata"].(type) {
	case string:
		if meta != "" {
			_ = json.Unmarshal([]byte(meta), &e.Metadata)
		}
	case []byte:
		_ = json.Unmarshal(meta, &e.Metadata)
	case map[string]any:
		e.Metadata = meta
	}
	return e
}

func str(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Cleanup deletes events older than retentionDays.
func Cleanup(ctx context.Context, s *store.Store, retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	pb := s.Dialect.NewParamBuilder()
	n, err := store.Exec(ctx, s.DB, "DELETE FROM _console_events WHERE created_at < "+pb.Add(cutoff), pb.Params()...)
	if err != nil {
		return 0, fmt.Errorf("audit cleanup: %w", err)
	}
	if n > 0 {
		log.Infof("audit: deleted %d events older than %d days", n, retentionDays)
	}
	return n, nil
}

// Janitor runs Cleanup on a background interval.
type Janitor struct {
	store         *store.Store
	retentionDays int
	interval      time.Duration
	ticker        *time.Ticker
	done          chan struct{}
	stopOnce      sync.Once
}

func NewJanitor(s *store.Store, retentionDays int, interval time.Duration) *Janitor {
	return &Janitor{store: s, retentionDays: retentionDays, interval: interval}
}

// Start runs one cleanup immediately, then one per interval.
func (j *Janitor) Start() {
	j.ticker = time.NewTicker(j.interval)
	j.done = make(chan struct{})
	go j.run(j.ticker, j.done)
	log.Infof("audit: retention janitor started (%d days, every %s)", j.retentionDays, j.interval)
}

func (j *Janitor) Stop() {
	if j.ticker == nil {
		return
	}
	j.stopOnce.Do(func() {
		j.ticker.Stop()
		close(j.done)
	})
}

func (j *Janitor) run(ticker *time.Ticker, done chan struct{}) {
	j.cleanup()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *Janitor) cleanup() {
	if _, err := Cleanup(context.Background(), j.store, j.retentionDays); err != nil {
		log.Errorf("audit: %v", err)
	}
}
