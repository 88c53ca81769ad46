package listview

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	log "github.com/sirupsen/logrus"

	"trigger-console/internal/metadata"
	"trigger-console/internal/platform"
)

var (
	ErrNotVisible   = errors.New("record is not in the visible list")
	ErrUnknownEvent = errors.New("unknown event type")
)

// Selection is the record currently picked in the list. Built-in records
// can be viewed but not edited or cloned.
type Selection struct {
	Record   metadata.Record `json:"record"`
	Editable bool            `json:"editable"`
}

// View holds the full record set, the filter state and the visible subset
// derived from them.
type View struct {
	svc platform.Service

	mu           sync.RWMutex
	all          []metadata.Record
	visible      []metadata.Record
	options      []metadata.Option
	objectFilter string
	eventFilter  metadata.EventType
	selectedID   string
	programs     map[string]*vm.Program
}

func New(svc platform.Service) *View {
	return &View{
		svc:      svc,
		options:  metadata.ObjectOptions(nil, nil),
		programs: make(map[string]*vm.Program),
	}
}

// Load fetches every record from the platform, merges new object types into
// the option list and re-applies the current filters. It returns the full
// fetched set.
func (v *View) Load(ctx context.Context) ([]metadata.Record, error) {
	records, err := v.svc.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	metadata.Annotate(records)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.all = records
	v.options = metadata.ObjectOptions(v.options, records)
	v.applyLocked()
	log.Debugf("listview: loaded %d records, %d visible", len(v.all), len(v.visible))
	return copyRecords(records), nil
}

// Filter narrows records by object type, then narrows that result by event.
// Empty filters pass everything through.
func Filter(records []metadata.Record, objectType string, event metadata.EventType) []metadata.Record {
	out := records
	if objectType != "" {
		out = keep(out, func(r metadata.Record) bool { return r.ObjectType == objectType })
	}
	if event != metadata.EventAll {
		out = keep(out, func(r metadata.Record) bool { return r.Event == event })
	}
	return copyRecords(out)
}

func keep(records []metadata.Record, pred func(metadata.Record) bool) []metadata.Record {
	var out []metadata.Record
	for _, r := range records {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out
}

func (v *View) applyLocked() {
	v.visible = Filter(v.all, v.objectFilter, v.eventFilter)
}

func (v *View) SetObjectFilter(objectType string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.objectFilter = objectType
	v.applyLocked()
}

func (v *View) SetEventFilter(event metadata.EventType) error {
	if event != metadata.EventAll && !event.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.eventFilter = event
	v.applyLocked()
	return nil
}

// Filters returns the current object type and event filters.
func (v *View) Filters() (string, metadata.EventType) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.objectFilter, v.eventFilter
}

func (v *View) Visible() []metadata.Record {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return copyRecords(v.visible)
}

func (v *View) All() []metadata.Record {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return copyRecords(v.all)
}

func (v *View) Options() []metadata.Option {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]metadata.Option, len(v.options))
	copy(out, v.options)
	return out
}

func (v *View) EventOptions() []metadata.EventOption {
	return metadata.EventOptions()
}

// Select marks a visible record as selected.
func (v *View) Select(id string) (Selection, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	rec := metadata.FindByID(v.visible, id)
	if rec == nil {
		return Selection{}, fmt.Errorf("%w: %s", ErrNotVisible, id)
	}
	v.selectedID = id
	return Selection{Record: *rec, Editable: !rec.BuiltIn}, nil
}

// Selected returns the current selection, if any.
func (v *View) Selected() (Selection, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	rec := metadata.FindByID(v.visible, v.selectedID)
	if rec == nil {
		return Selection{}, false
	}
	return Selection{Record: *rec, Editable: !rec.BuiltIn}, true
}

// ClearSelection drops the current selection.
func (v *View) ClearSelection() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selectedID = ""
}

// CheckSelection clears the selection when its record is no longer among the
// visible records. It reports whether the selection was cleared.
func (v *View) CheckSelection() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.selectedID == "" {
		return false
	}
	found := false
	for _, r := range v.visible {
		if r.ID == v.selectedID {
			found = true
			break
		}
	}
	if found {
		return false
	}
	log.Debugf("listview: selected record %s no longer visible, clearing", v.selectedID)
	v.selectedID = ""
	return true
}

// Query returns the visible records for which the boolean expression holds.
// The record is exposed as `record` with its JSON field names, e.g.
// `record.order > 10 && record.active`.
func (v *View) Query(expression string) ([]metadata.Record, error) {
	prog, err := v.program(expression)
	if err != nil {
		return nil, err
	}

	var out []metadata.Record
	for _, r := range v.Visible() {
		result, err := expr.Run(prog, map[string]any{"record": recordEnv(r)})
		if err != nil {
			return nil, fmt.Errorf("evaluate query: %w", err)
		}
		ok, isBool := result.(bool)
		if !isBool {
			return nil, fmt.Errorf("query did not return bool")
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (v *View) program(expression string) (*vm.Program, error) {
	v.mu.RLock()
	prog, ok := v.programs[expression]
	v.mu.RUnlock()
	if ok {
		return prog, nil
	}

	prog, err := expr.Compile(expression, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}
	v.mu.Lock()
	v.programs[expression] = prog
	v.mu.Unlock()
	return prog, nil
}

func recordEnv(r metadata.Record) map[string]any {
	return map[string]any{
		"id":              r.ID,
		"active":          r.Active,
		"order":           r.Order,
		"label":           r.Label,
		"developerName":   r.DeveloperName,
		"description":     r.Description,
		"objectType":      r.ObjectType,
		"event":           string(r.Event),
		"eventLabel":      r.EventLabel,
		"handlerClass":    r.HandlerClass,
		"parameters":      r.Parameters,
		"namespacePrefix": r.NamespacePrefix,
		"builtIn":         r.BuiltIn,
	}
}

func copyRecords(in []metadata.Record) []metadata.Record {
	if in == nil {
		return nil
	}
	out := make([]metadata.Record, len(in))
	copy(out, in)
	return out
}
