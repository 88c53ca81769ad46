package platform

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"trigger-console/internal/metadata"
)

// compile-time interface check.
var _ Service = (*Memory)(nil)

// HandlerClass is a class known to the in-memory platform.
type HandlerClass struct {
	Name            string
	Events          []metadata.EventType // interfaces the class implements
	JSONEnabled     bool
	Description     string
	ParameterSchema json.RawMessage
}

type queuedDeployment struct {
	records []metadata.Record
	readyAt time.Time
}

// Memory is a map-backed Service for tests and local development. Created
// records become visible to FetchAll only after DeployDelay has passed,
// mimicking the platform's asynchronous metadata deployments.
type Memory struct {
	mu          sync.Mutex
	records     []metadata.Record
	objectTypes map[string]bool
	classes     map[string]HandlerClass
	queue       []queuedDeployment
	failures    map[string]error
	calls       map[string]int
	now         func() time.Time

	DeployDelay time.Duration
}

// NewMemory creates an empty in-memory platform.
func NewMemory() *Memory {
	return &Memory{
		objectTypes: make(map[string]bool),
		classes:     make(map[string]HandlerClass),
		failures:    make(map[string]error),
		calls:       make(map[string]int),
		now:         time.Now,
	}
}

// AddObjectType registers object type names.
func (m *Memory) AddObjectType(names ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range names {
		m.objectTypes[n] = true
	}
}

// AddClass registers a handler class.
func (m *Memory) AddClass(c HandlerClass) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes[c.Name] = c
}

// Seed stores records as already deployed.
func (m *Memory) Seed(records ...metadata.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.upsertLocked(r)
	}
}

// FailOn makes every call to op return err until cleared with a nil err.
func (m *Memory) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// Calls returns how many times op was invoked.
func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *Memory) begin(op string) error {
	m.calls[op]++
	if err, ok := m.failures[op]; ok {
		return &ServiceError{Op: op, Err: err}
	}
	return nil
}

func (m *Memory) FetchAll(_ context.Context) ([]metadata.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("fetchAll"); err != nil {
		return nil, err
	}
	m.promoteLocked()
	out := make([]metadata.Record, len(m.records))
	copy(out, m.records)
	return out, nil
}

func (m *Memory) ObjectTypeExists(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("objectTypeExists"); err != nil {
		return false, err
	}
	return m.objectTypes[name], nil
}

func (m *Memory) ClassDetails(_ context.Context, className string, event metadata.EventType) (ClassDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("classDetails"); err != nil {
		return ClassDetails{}, err
	}
	c, ok := m.classes[className]
	if !ok {
		return ClassDetails{}, nil
	}
	details := ClassDetails{
		ClassExists:     true,
		IsJSONEnabled:   c.JSONEnabled,
		Description:     c.Description,
		ParameterSchema: c.ParameterSchema,
	}
	for _, e := range c.Events {
		if e == event {
			details.ImplementsInterface = true
			break
		}
	}
	return details, nil
}

func (m *Memory) DeveloperNameInUse(_ context.Context, name, excludingID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("developerNameInUse"); err != nil {
		return false, err
	}
	m.promoteLocked()
	for _, r := range m.records {
		if r.DeveloperName == name && r.ID != excludingID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) Create(_ context.Context, records []metadata.Record) ([]metadata.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("create"); err != nil {
		return nil, err
	}
	created := make([]metadata.Record, len(records))
	for i, r := range records {
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		r.BuiltIn = false
		r.EventLabel = ""
		created[i] = r
	}
	m.queue = append(m.queue, queuedDeployment{records: created, readyAt: m.now().Add(m.DeployDelay)})
	if m.DeployDelay <= 0 {
		m.promoteLocked()
	}
	out := make([]metadata.Record, len(created))
	copy(out, created)
	return out, nil
}

func (m *Memory) promoteLocked() {
	now := m.now()
	pending := m.queue[:0]
	for _, d := range m.queue {
		if now.Before(d.readyAt) {
			pending = append(pending, d)
			continue
		}
		for _, r := range d.records {
			m.upsertLocked(r)
		}
	}
	m.queue = pending
}

func (m *Memory) upsertLocked(r metadata.Record) {
	for i := range m.records {
		if m.records[i].ID == r.ID {
			m.records[i] = r
			return
		}
	}
	m.records = append(m.records, r)
}
