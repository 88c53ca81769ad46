package console

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"trigger-console/internal/audit"
	"trigger-console/internal/editor"
	"trigger-console/internal/metadata"
	"trigger-console/internal/notify"
	"trigger-console/internal/platform"
)

type memoryAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (m *memoryAudit) Record(e audit.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

func (m *memoryAudit) count(action string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Action == action {
			n++
		}
	}
	return n
}

func newPlatform() *platform.Memory {
	m := platform.NewMemory()
	m.AddObjectType("Account", "Contact")
	m.AddClass(platform.HandlerClass{
		Name:        "AccountHandler",
		Events:      []metadata.EventType{metadata.EventBeforeInsert, metadata.EventAfterInsert},
		JSONEnabled: true,
		Description: "Account automation",
	})
	return m
}

func newConsole(t *testing.T, m *platform.Memory, interval time.Duration) (*Console, *notify.Hub, *memoryAudit) {
	t.Helper()
	hub := notify.NewHub(20)
	rec := &memoryAudit{}
	c := New(Options{Service: m, Sink: hub, Audit: rec, PollInterval: interval})
	t.Cleanup(c.Close)
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	return c, hub, rec
}

func openFilled(t *testing.T, c *Console, event metadata.EventType) *editor.Session {
	t.Helper()
	ctx := context.Background()
	s, err := c.OpenEditor(ctx, editor.ModeNew, "")
	if err != nil {
		t.Fatalf("open editor: %v", err)
	}
	for f, v := range map[editor.Field]string{
		editor.FieldObjectType:   "Account",
		editor.FieldEvent:        string(event),
		editor.FieldHandlerClass: "AccountHandler",
	} {
		if err := s.SetValue(f, v); err != nil {
			t.Fatalf("set %s: %v", f, err)
		}
	}
	if err := s.Validate(ctx, editor.FieldHandlerClass); err != nil {
		t.Fatalf("validate class: %v", err)
	}
	return s
}

func TestSubmitTracksUntilDeployed(t *testing.T) {
	m := newPlatform()
	m.DeployDelay = time.Hour
	c, _, rec := newConsole(t, m, time.Hour)
	ctx := context.Background()

	first := openFilled(t, c, metadata.EventBeforeInsert)
	a, err := c.SubmitEditor(ctx, first.ID(), "admin")
	if err != nil {
		t.Fatalf("submit first: %v", err)
	}
	second := openFilled(t, c, metadata.EventAfterInsert)
	b, err := c.SubmitEditor(ctx, second.ID(), "admin")
	if err != nil {
		t.Fatalf("submit second: %v", err)
	}

	d := c.Deployments()
	if len(d.Pending) != 2 || !d.Polling {
		t.Fatalf("expected two pending and polling, got %+v", d)
	}
	if _, err := c.Editor(first.ID()); !errors.Is(err, ErrEditorNotFound) {
		t.Error("submitted session should be discarded")
	}

	// Only the first deployment lands.
	m.Seed(a)
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	d = c.Deployments()
	if len(d.Pending) != 1 || d.Pending[0].DeveloperName != b.DeveloperName {
		t.Fatalf("expected %s still pending, got %+v", b.DeveloperName, d.Pending)
	}
	if !d.Polling {
		t.Fatal("polling must continue while a deployment is pending")
	}

	m.Seed(b)
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	d = c.Deployments()
	if len(d.Pending) != 0 || d.Polling {
		t.Fatalf("expected reconciled and stopped, got %+v", d)
	}
	if rec.count(audit.ActionRecordSubmitted) != 2 || rec.count(audit.ActionDeploymentConfirmed) != 2 {
		t.Errorf("unexpected audit trail %+v", rec.events)
	}
	if len(c.AllRecords()) != 2 {
		t.Errorf("expected both records loaded, got %d", len(c.AllRecords()))
	}
}

func TestPollerRefreshesUntilConfirmed(t *testing.T) {
	m := newPlatform()
	m.DeployDelay = 30 * time.Millisecond
	c, _, _ := newConsole(t, m, 10*time.Millisecond)

	s := openFilled(t, c, metadata.EventBeforeInsert)
	if _, err := c.SubmitEditor(context.Background(), s.ID(), "admin"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for c.Deployments().Polling {
		if time.Now().After(deadline) {
			t.Fatal("poller never confirmed the deployment")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(c.AllRecords()) != 1 {
		t.Errorf("expected the deployed record to be loaded, got %d", len(c.AllRecords()))
	}
}

func TestValidationFailureIsAudited(t *testing.T) {
	m := newPlatform()
	c, _, rec := newConsole(t, m, time.Hour)

	s, err := c.OpenEditor(context.Background(), editor.ModeNew, "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, err = c.SubmitEditor(context.Background(), s.ID(), "admin")
	if !errors.Is(err, editor.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if rec.count(audit.ActionValidationFailed) != 1 {
		t.Error("expected validation.failed audit event")
	}
	if _, err := c.Editor(s.ID()); err != nil {
		t.Error("invalid session must stay open")
	}
	if c.Deployments().Polling {
		t.Error("nothing should be tracked")
	}
}

func TestRefreshFailureNotifies(t *testing.T) {
	m := newPlatform()
	c, hub, rec := newConsole(t, m, time.Hour)
	m.FailOn("fetchAll", errors.New("offline"))

	if err := c.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	recent := hub.Recent()
	if len(recent) == 0 || recent[len(recent)-1].Severity != notify.SeverityError {
		t.Errorf("expected an error toast, got %+v", recent)
	}
	if rec.count(audit.ActionRefreshFailed) != 1 {
		t.Error("expected refresh.failed audit event")
	}
}

func TestRefreshClearsHiddenSelection(t *testing.T) {
	m := newPlatform()
	m.Seed(
		metadata.Record{ID: "r1", ObjectType: "Account", Event: metadata.EventBeforeInsert},
		metadata.Record{ID: "r2", ObjectType: "Contact", Event: metadata.EventBeforeInsert},
	)
	c, _, _ := newConsole(t, m, time.Hour)

	if _, err := c.Select("r2"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, err := c.SetFilters("Account", metadata.EventAll); err != nil {
		t.Fatalf("filters: %v", err)
	}
	if _, ok := c.Selected(); ok {
		t.Error("selection hidden by the filter should be cleared")
	}

	if _, err := c.Select("r1"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if sel, ok := c.Selected(); !ok || sel.Record.ID != "r1" {
		t.Error("visible selection must survive a refresh")
	}
}

func TestEditorPrefillFromFilters(t *testing.T) {
	m := newPlatform()
	c, _, _ := newConsole(t, m, time.Hour)
	if _, err := c.SetFilters("Contact", metadata.EventAfterInsert); err != nil {
		t.Fatalf("filters: %v", err)
	}
	s, err := c.OpenEditor(context.Background(), editor.ModeNew, "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	v := s.View()
	if v.Fields[editor.FieldObjectType].Value != "Contact" || v.Fields[editor.FieldEvent].Value != "AFTER_INSERT" {
		t.Errorf("expected prefill from filters, got %+v", v.Fields)
	}
}

func TestEditBuiltInRejected(t *testing.T) {
	m := newPlatform()
	m.Seed(metadata.Record{ID: "b1", NamespacePrefix: metadata.BuiltInNamespace, ObjectType: "Account"})
	c, _, _ := newConsole(t, m, time.Hour)

	if _, err := c.OpenEditor(context.Background(), editor.ModeEdit, "b1"); !errors.Is(err, editor.ErrReadOnly) {
		t.Errorf("expected ErrReadOnly, got %v", err)
	}
}

func TestCloseStopsEverything(t *testing.T) {
	m := newPlatform()
	m.DeployDelay = time.Hour
	c, _, _ := newConsole(t, m, time.Hour)

	s := openFilled(t, c, metadata.EventBeforeInsert)
	if _, err := c.SubmitEditor(context.Background(), s.ID(), "admin"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	open, err := c.OpenEditor(context.Background(), editor.ModeNew, "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	c.Close()
	c.Close()
	if c.Deployments().Polling {
		t.Error("poller must stop on close")
	}
	if err := open.SetValue(editor.FieldLabel, "x"); !errors.Is(err, editor.ErrClosed) {
		t.Errorf("open editors must be closed, got %v", err)
	}
	if err := c.Refresh(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := c.OpenEditor(context.Background(), editor.ModeNew, ""); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestCloseEditor(t *testing.T) {
	c, _, _ := newConsole(t, newPlatform(), time.Hour)
	s, err := c.OpenEditor(context.Background(), editor.ModeNew, "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := c.CloseEditor(s.ID()); err != nil {
		t.Fatalf("close editor: %v", err)
	}
	if err := c.CloseEditor(s.ID()); !errors.Is(err, ErrEditorNotFound) {
		t.Errorf("expected ErrEditorNotFound, got %v", err)
	}
}
