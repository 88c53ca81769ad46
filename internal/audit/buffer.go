package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"trigger-console/internal/store"
)

var eventColumns = []string{"id", "action", "record_id", "developer_name", "user_id", "status", "metadata", "created_at"}

// Buffer collects events in memory and periodically flushes them to the
// _console_events table in a batch insert.
type Buffer struct {
	mu      sync.Mutex
	events  []Event
	store   *store.Store
	maxSize int
	ticker  *time.Ticker
	done    chan struct{}
	stopped sync.Once
}

// NewBuffer creates a buffer that flushes on a timer or when full.
func NewBuffer(s *store.Store, maxSize int, flushIntervalMs int) *Buffer {
	if maxSize <= 0 {
		maxSize = 100
	}
	if flushIntervalMs <= 0 {
		flushIntervalMs = 1000
	}
	b := &Buffer{
		store:   s,
		maxSize: maxSize,
		done:    make(chan struct{}),
		ticker:  time.NewTicker(time.Duration(flushIntervalMs) * time.Millisecond),
	}
	go b.run()
	return b
}

func (b *Buffer) run() {
	for {
		select {
		case <-b.done:
			return
		case <-b.ticker.C:
			b.Flush()
		}
	}
}

// Record adds an event to the buffer, filling in its id and timestamp. A
// full buffer triggers an asynchronous flush.
func (b *Buffer) Record(e Event) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	b.mu.Lock()
	b.events = append(b.events, e)
	shouldFlush := len(b.events) >= b.maxSize
	b.mu.Unlock()
	if shouldFlush {
		go b.Flush()
	}
}

// Flush writes all buffered events in a single batch insert.
func (b *Buffer) Flush() {
	b.mu.Lock()
	if len(b.events) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.events
	b.events = nil
	b.mu.Unlock()

	if err := b.insert(context.Background(), batch); err != nil {
		log.Errorf("audit: flush %d events: %v", len(batch), err)
	}
}

func (b *Buffer) insert(ctx context.Context, batch []Event) error {
	tx, err := b.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if stmt := b.store.Dialect.SyncCommitOff(); stmt != "" {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("set sync commit: %w", err)
		}
	}

	pb := b.store.Dialect.NewParamBuilder()
	placeholders := make([]string, 0, len(batch))
	for _, e := range batch {
		var meta any
		if e.Metadata != nil {
			raw, _ := json.Marshal(e.Metadata)
			meta = string(raw)
		}
		values := []any{e.ID, e.Action, e.RecordID, e.DeveloperName, e.UserID, e.Status, meta, e.CreatedAt}
		ph := make([]string, len(values))
		for i, v := range values {
			ph[i] = pb.Add(v)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")
	}

	sqlStr := fmt.Sprintf("INSERT INTO _console_events (%s) VALUES %s",
		strings.Join(eventColumns, ","), strings.Join(placeholders, ","))
	if _, err := tx.ExecContext(ctx, sqlStr, pb.Params()...); err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return tx.Commit()
}

// Stop halts the ticker and flushes remaining events. Safe to call twice.
func (b *Buffer) Stop() {
	b.stopped.Do(func() {
		b.ticker.Stop()
		close(b.done)
		b.Flush()
	})
}
