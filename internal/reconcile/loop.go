package reconcile

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"trigger-console/internal/metadata"
)

// DefaultInterval is how often the loop asks for a refresh while deployments
// are pending.
const DefaultInterval = 10 * time.Second

// Refresher asks the owner for a full fetch. The owner is expected to call
// Reconcile with the fetched records.
type Refresher func(ctx context.Context)

// Loop tracks submitted records until a fetch shows them deployed. A poll
// ticker runs while anything is pending. There is no attempt bound: a record
// that never shows up is polled for until Stop.
type Loop struct {
	interval time.Duration
	refresh  Refresher

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	pending   []metadata.Record
	ticker    *time.Ticker
	done      chan struct{}
	stopped   bool
	confirmed func(metadata.Record)
}

func New(interval time.Duration, refresh Refresher) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{interval: interval, refresh: refresh, ctx: ctx, cancel: cancel}
}

// OnConfirmed registers a callback invoked for every record Reconcile
// removes from the pending set.
func (l *Loop) OnConfirmed(fn func(metadata.Record)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.confirmed = fn
}

// Track adds a submitted record to the pending set and starts polling if it
// is not already running.
func (l *Loop) Track(r metadata.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.pending = append(l.pending, r)
	if l.ticker == nil {
		l.ticker = time.NewTicker(l.interval)
		l.done = make(chan struct{})
		go l.run(l.ticker, l.done)
		log.Infof("reconcile: polling started (%s interval)", l.interval)
	}
}

func (l *Loop) run(ticker *time.Ticker, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			l.refresh(l.ctx)
		}
	}
}

// Reconcile drops every pending record that matches one of fetched and stops
// polling once nothing is pending. It returns the confirmed records.
func (l *Loop) Reconcile(fetched []metadata.Record) []metadata.Record {
	l.mu.Lock()
	var confirmed []metadata.Record
	remaining := l.pending[:0]
	for _, p := range l.pending {
		if matchesAny(fetched, p) {
			confirmed = append(confirmed, p)
			continue
		}
		remaining = append(remaining, p)
	}
	l.pending = remaining
	if len(l.pending) == 0 && l.ticker != nil {
		l.stopTickerLocked()
		log.Info("reconcile: all deployments confirmed, polling stopped")
	}
	hook := l.confirmed
	l.mu.Unlock()

	if hook != nil {
		for _, r := range confirmed {
			hook(r)
		}
	}
	return confirmed
}

func matchesAny(fetched []metadata.Record, submitted metadata.Record) bool {
	for _, f := range fetched {
		if metadata.Matches(f, submitted) {
			return true
		}
	}
	return false
}

// Pending returns the records still awaiting confirmation, oldest first.
func (l *Loop) Pending() []metadata.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]metadata.Record, len(l.pending))
	copy(out, l.pending)
	return out
}

// Running reports whether the poll ticker is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ticker != nil
}

func (l *Loop) Interval() time.Duration {
	return l.interval
}

// Stop halts polling for good. Later Track calls are ignored and an in-flight
// refresh sees its context cancelled. Safe to call more than once.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.stopped = true
	l.cancel()
	if l.ticker != nil {
		l.stopTickerLocked()
	}
}

func (l *Loop) stopTickerLocked() {
	l.ticker.Stop()
	close(l.done)
	l.ticker = nil
	l.done = nil
}
