package console

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"trigger-console/internal/audit"
	"trigger-console/internal/editor"
	"trigger-console/internal/listview"
	"trigger-console/internal/metadata"
	"trigger-console/internal/notify"
	"trigger-console/internal/platform"
	"trigger-console/internal/reconcile"
)

var (
	ErrClosed         = errors.New("console is closed")
	ErrEditorNotFound = errors.New("editor session not found")
)

type Options struct {
	Service      platform.Service
	Sink         notify.Sink
	Audit        audit.Recorder
	Schemas      *editor.SchemaChecker
	PollInterval time.Duration
}

// Console owns the list view, the open editor sessions and the deployment
// reconciler. Handlers talk to it; nothing else mutates their state.
type Console struct {
	svc     platform.Service
	sink    notify.Sink
	audit   audit.Recorder
	schemas *editor.SchemaChecker

	view *listview.View
	loop *reconcile.Loop

	mu       sync.Mutex
	sessions map[string]*editor.Session
	closed   bool
}

func New(opts Options) *Console {
	c := &Console{
		svc:      opts.Service,
		sink:     opts.Sink,
		audit:    opts.Audit,
		schemas:  opts.Schemas,
		view:     listview.New(opts.Service),
		sessions: make(map[string]*editor.Session),
	}
	if c.sink == nil {
		c.sink = notify.Discard{}
	}
	if c.audit == nil {
		c.audit = audit.Noop{}
	}
	if c.schemas == nil {
		c.schemas = editor.NewSchemaChecker()
	}
	c.loop = reconcile.New(opts.PollInterval, c.poll)
	c.loop.OnConfirmed(c.confirmed)
	return c
}

func (c *Console) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Console) poll(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil && !errors.Is(err, ErrClosed) {
		log.Warnf("console: poll refresh failed: %v", err)
	}
}

// Refresh reloads every record, reconciles pending deployments against them
// and drops a selection that is no longer visible.
func (c *Console) Refresh(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	records, err := c.view.Load(ctx)
	if err != nil {
		if c.isClosed() {
			return ErrClosed
		}
		c.sink.Notify("Error", err.Error(), notify.SeverityError)
		c.audit.Record(audit.Event{Action: audit.ActionRefreshFailed, Status: "error",
			Metadata: map[string]any{"error": err.Error()}})
		return err
	}
	if c.isClosed() {
		return ErrClosed
	}
	c.loop.Reconcile(records)
	c.view.CheckSelection()
	return nil
}

func (c *Console) confirmed(r metadata.Record) {
	if c.isClosed() {
		return
	}
	c.sink.Notify("Deployed", fmt.Sprintf("%s is now live", r.DeveloperName), notify.SeveritySuccess)
	c.audit.Record(audit.Event{Action: audit.ActionDeploymentConfirmed, RecordID: r.ID,
		DeveloperName: r.DeveloperName, Status: "confirmed"})
}

// Records returns the records passing the current filters.
func (c *Console) Records() []metadata.Record {
	return c.view.Visible()
}

func (c *Console) AllRecords() []metadata.Record {
	return c.view.All()
}

// Options returns the object type and event pickers.
func (c *Console) Options() ([]metadata.Option, []metadata.EventOption) {
	return c.view.Options(), c.view.EventOptions()
}

// Filters returns the current object type and event filters.
func (c *Console) Filters() (string, metadata.EventType) {
	return c.view.Filters()
}

// SetFilters replaces both filters and returns the new visible records.
func (c *Console) SetFilters(objectType string, event metadata.EventType) ([]metadata.Record, error) {
	if err := c.view.SetEventFilter(event); err != nil {
		return nil, err
	}
	c.view.SetObjectFilter(objectType)
	c.view.CheckSelection()
	return c.view.Visible(), nil
}

func (c *Console) Search(expression string) ([]metadata.Record, error) {
	return c.view.Query(expression)
}

func (c *Console) Select(id string) (listview.Selection, error) {
	if id == "" {
		c.view.ClearSelection()
		return listview.Selection{}, nil
	}
	return c.view.Select(id)
}

func (c *Console) Selected() (listview.Selection, bool) {
	return c.view.Selected()
}

// DeploymentStatus describes the reconciler.
type DeploymentStatus struct {
	Pending  []metadata.Record `json:"pending"`
	Polling  bool              `json:"polling"`
	Interval string            `json:"interval"`
}

func (c *Console) Deployments() DeploymentStatus {
	return DeploymentStatus{
		Pending:  c.loop.Pending(),
		Polling:  c.loop.Running(),
		Interval: c.loop.Interval().String(),
	}
}

// OpenEditor starts an editor session. Edit and clone look the record up in
// the loaded set; the current filters pre-fill a blank form.
func (c *Console) OpenEditor(ctx context.Context, mode editor.Mode, recordID string) (*editor.Session, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	objectType, event := c.view.Filters()
	s, err := editor.Open(ctx,
		editor.Deps{Service: c.svc, Sink: c.sink, Schemas: c.schemas},
		editor.OpenOptions{
			Mode:     mode,
			RecordID: recordID,
			Records:  c.view.All(),
			Filters:  editor.Filters{ObjectType: objectType, Event: event},
		})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		s.Close()
		return nil, ErrClosed
	}
	c.sessions[s.ID()] = s
	log.Debugf("console: editor %s opened (%s)", s.ID(), mode)
	return s, nil
}

func (c *Console) Editor(id string) (*editor.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEditorNotFound, id)
	}
	return s, nil
}

// SubmitEditor submits an editor session. A created record is handed to the
// reconciler and the session is discarded.
func (c *Console) SubmitEditor(ctx context.Context, id, actor string) (metadata.Record, error) {
	s, err := c.Editor(id)
	if err != nil {
		return metadata.Record{}, err
	}

	rec, err := s.Submit(ctx)
	var verr *editor.ValidationError
	if errors.As(err, &verr) {
		fields := make([]string, len(verr.Fields))
		for i, f := range verr.Fields {
			fields[i] = string(f.Field)
		}
		c.audit.Record(audit.Event{Action: audit.ActionValidationFailed, UserID: actor, Status: "invalid",
			Metadata: map[string]any{"fields": fields}})
	}
	if err != nil {
		return metadata.Record{}, err
	}

	c.mu.Lock()
	delete(c.sessions, id)
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return rec, nil
	}

	c.loop.Track(rec)
	c.sink.Notify("Success", fmt.Sprintf("Deployment of %s started", rec.DeveloperName), notify.SeveritySuccess)
	c.audit.Record(audit.Event{Action: audit.ActionRecordSubmitted, RecordID: rec.ID,
		DeveloperName: rec.DeveloperName, UserID: actor, Status: "submitted",
		Metadata: map[string]any{"objectType": rec.ObjectType, "event": string(rec.Event), "handlerClass": rec.HandlerClass}})
	return rec, nil
}

// CloseEditor discards an editor session.
func (c *Console) CloseEditor(id string) error {
	c.mu.Lock()
	s, ok := c.sessions[id]
	delete(c.sessions, id)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrEditorNotFound, id)
	}
	s.Close()
	return nil
}

// Close stops polling and closes every editor. Results of calls still in
// flight are ignored.
func (c *Console) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sessions := c.sessions
	c.sessions = make(map[string]*editor.Session)
	c.mu.Unlock()

	c.loop.Stop()
	for _, s := range sessions {
		s.Close()
	}
	log.Info("console: closed")
}
