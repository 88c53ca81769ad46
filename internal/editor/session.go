package editor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"trigger-console/internal/metadata"
	"trigger-console/internal/notify"
	"trigger-console/internal/platform"
)

type Mode string

const (
	ModeNew   Mode = "new"
	ModeEdit  Mode = "edit"
	ModeClone Mode = "clone"
)

// ParseMode maps a wire name onto a Mode. Empty means new.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeNew:
		return ModeNew, nil
	case ModeEdit, ModeClone:
		return Mode(s), nil
	}
	return "", fmt.Errorf("%w: unknown editor mode %q", ErrInvalidValue, s)
}

type State string

const (
	StateOpen       State = "open"
	StateValidating State = "validating"
	StateSubmitting State = "submitting"
	StateClosed     State = "closed"
)

// Filters are the list view selections used to pre-fill a blank form.
type Filters struct {
	ObjectType string
	Event      metadata.EventType
}

type OpenOptions struct {
	Mode     Mode
	RecordID string
	Records  []metadata.Record // records currently loaded by the console
	Filters  Filters
}

// Warnings never block submission.
type Warnings struct {
	JSONNotSupported bool   `json:"jsonNotSupported"`
	DuplicateHandler bool   `json:"duplicateHandler"`
	ParameterSchema  string `json:"parameterSchema,omitempty"`
}

type Deps struct {
	Service platform.Service
	Sink    notify.Sink
	Schemas *SchemaChecker
}

// Session is one open record form. Remote checks run without holding the
// session lock; their results are applied only if the field has not been
// edited in the meantime.
type Session struct {
	mu sync.Mutex

	id       string
	mode     Mode
	state    State
	recordID string
	fields   *Registry
	records  []metadata.Record

	jsonEnabled bool
	paramSchema json.RawMessage
	warnings    Warnings

	svc     platform.Service
	sink    notify.Sink
	schemas *SchemaChecker
}

// Open starts an editor session. For edit and clone the form is populated
// from the record with opts.RecordID; an unknown id leaves the form blank.
func Open(ctx context.Context, deps Deps, opts OpenOptions) (*Session, error) {
	s := &Session{
		id:       uuid.New().String(),
		mode:     opts.Mode,
		state:    StateOpen,
		fields:   NewRegistry(),
		records:  append([]metadata.Record(nil), opts.Records...),
		svc:      deps.Service,
		sink:     deps.Sink,
		schemas:  deps.Schemas,
		recordID: opts.RecordID,
	}
	if s.mode == "" {
		s.mode = ModeNew
	}
	if s.mode == ModeNew {
		s.recordID = ""
	}

	if s.recordID != "" {
		rec := metadata.FindByID(s.records, s.recordID)
		if rec == nil {
			log.Debugf("editor: record %s not loaded, opening blank form", s.recordID)
		} else {
			if rec.BuiltIn {
				return nil, ErrReadOnly
			}
			s.populate(*rec)
			details, err := s.svc.ClassDetails(ctx, rec.HandlerClass, rec.Event)
			if err != nil {
				s.notifyError(err)
			} else {
				s.jsonEnabled = details.IsJSONEnabled
				s.paramSchema = details.ParameterSchema
			}
		}
	}

	if s.mode == ModeClone {
		s.recordID = ""
	}

	if opts.Filters.ObjectType != "" && s.fields.Value(FieldObjectType) == "" {
		s.fields.load(FieldObjectType, opts.Filters.ObjectType)
	}
	if opts.Filters.Event != metadata.EventAll && s.fields.Value(FieldEvent) == "" {
		s.fields.load(FieldEvent, string(opts.Filters.Event))
	}
	return s, nil
}

func (s *Session) populate(r metadata.Record) {
	s.fields.load(FieldActive, strconv.FormatBool(r.Active))
	s.fields.load(FieldOrder, strconv.Itoa(r.Order))
	s.fields.load(FieldLabel, r.Label)
	s.fields.load(FieldDeveloperName, r.DeveloperName)
	s.fields.load(FieldDescription, r.Description)
	s.fields.load(FieldObjectType, r.ObjectType)
	s.fields.load(FieldHandlerClass, r.HandlerClass)
	s.fields.load(FieldParameters, r.Parameters)
	s.fields.load(FieldEvent, string(r.Event))
}

func (s *Session) ID() string {
	return s.id
}

// Title is the heading of the form.
func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.titleLocked()
}

func (s *Session) titleLocked() string {
	if s.mode == ModeClone {
		return "Clone"
	}
	if s.recordID != "" {
		return "Edit"
	}
	return "Create New"
}

// SetValue records an edit and resets the field's validation.
func (s *Session) SetValue(f Field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrClosed
	}
	return s.fields.SetValue(f, value)
}

// Validate runs the field's validator. Remote validators block until the
// platform answers.
func (s *Session) Validate(ctx context.Context, f Field) error {
	if _, ok := fieldSpecs[f]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, f)
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	switch f {
	case FieldActive:
		s.mu.Unlock()
		return nil
	case FieldObjectType:
		value, rev := s.fields.Value(f), s.fields.State(f).Revision
		s.mu.Unlock()
		return s.checkObjectType(ctx, value, rev)
	case FieldDeveloperName:
		value, rev, id := s.fields.Value(f), s.fields.State(f).Revision, s.recordID
		s.mu.Unlock()
		return s.checkDeveloperName(ctx, value, rev, id)
	case FieldHandlerClass:
		s.mu.Unlock()
		return s.checkHandlerClass(ctx)
	case FieldEvent:
		s.validateLocalLocked(f)
		s.autofillLocked()
		hasClass := s.fields.Value(FieldHandlerClass) != ""
		s.mu.Unlock()
		if hasClass {
			return s.checkHandlerClass(ctx)
		}
		return nil
	default:
		s.validateLocalLocked(f)
		s.mu.Unlock()
		return nil
	}
}

// ValidateAll runs every validator. Remote checks go first so the values a
// handler class fills in are validated after it.
func (s *Session) ValidateAll(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.validateLocalLocked(FieldEvent)
	s.mu.Unlock()

	for _, f := range []Field{FieldHandlerClass, FieldObjectType, FieldDeveloperName} {
		if err := s.Validate(ctx, f); err != nil {
			return err
		}
	}
	for _, f := range Fields {
		if fieldSpecs[f].check == checkLocal && f != FieldEvent {
			if err := s.Validate(ctx, f); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Session) validateLocalLocked(f Field) {
	s.fields.ReportValidity(f, validateLocal(f, s.fields.Value(f)))
	switch f {
	case FieldParameters:
		s.refreshParameterWarningsLocked()
	case FieldEvent:
		s.refreshDuplicateLocked()
	}
}

func (s *Session) checkObjectType(ctx context.Context, value string, rev uint64) error {
	exists := false
	if value != "" {
		var err error
		exists, err = s.svc.ObjectTypeExists(ctx, value)
		if err != nil {
			s.notifyError(err)
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		s.fields.ReportValidityAt(FieldObjectType, rev, exists)
	}
	return nil
}

func (s *Session) checkDeveloperName(ctx context.Context, value string, rev uint64, excludingID string) error {
	valid := ValidDeveloperNameFormat(value)
	if valid {
		inUse, err := s.svc.DeveloperNameInUse(ctx, value, excludingID)
		if err != nil {
			s.notifyError(err)
			return err
		}
		valid = !inUse
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		s.fields.ReportValidityAt(FieldDeveloperName, rev, valid)
	}
	return nil
}

func (s *Session) checkHandlerClass(ctx context.Context) error {
	s.mu.Lock()
	class := s.fields.Value(FieldHandlerClass)
	rev := s.fields.State(FieldHandlerClass).Revision
	event := metadata.EventType(s.fields.Value(FieldEvent))
	s.mu.Unlock()

	var details platform.ClassDetails
	if class != "" {
		var err error
		details, err = s.svc.ClassDetails(ctx, class, event)
		if err != nil {
			s.notifyError(err)
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil
	}
	if !s.fields.ReportValidityAt(FieldHandlerClass, rev, details.Usable()) {
		return nil
	}
	s.jsonEnabled = details.IsJSONEnabled
	s.paramSchema = details.ParameterSchema
	s.refreshParameterWarningsLocked()
	if s.fields.Value(FieldDescription) == "" && details.Description != "" {
		s.fields.load(FieldDescription, details.Description)
	}
	s.refreshDuplicateLocked()
	s.autofillLocked()
	return nil
}

// autofillLocked derives label and developer name from a valid handler class
// and event, but only when the user has filled in neither.
func (s *Session) autofillLocked() {
	class := s.fields.State(FieldHandlerClass)
	event := metadata.EventType(s.fields.Value(FieldEvent))
	if class.Value == "" || !class.Validated || class.Invalid || !event.Valid() {
		return
	}
	if s.fields.Value(FieldLabel) != "" || s.fields.Value(FieldDeveloperName) != "" {
		return
	}
	title := metadata.DerivedName(class.Value, event)
	s.fields.fill(FieldLabel, title)
	s.fields.fill(FieldDeveloperName, metadata.DerivedDeveloperName(title))
}

func (s *Session) refreshParameterWarningsLocked() {
	params := s.fields.Value(FieldParameters)
	s.warnings.JSONNotSupported = !s.jsonEnabled && params != ""
	s.warnings.ParameterSchema = ""
	if s.schemas == nil || params == "" || !ValidParameters(params) {
		return
	}
	if err := s.schemas.Check(s.paramSchema, params); err != nil {
		s.warnings.ParameterSchema = err.Error()
	}
}

func (s *Session) refreshDuplicateLocked() {
	class := s.fields.Value(FieldHandlerClass)
	event := metadata.EventType(s.fields.Value(FieldEvent))
	s.warnings.DuplicateHandler = class != "" &&
		metadata.HandlerRegistered(s.records, class, event, s.recordID)
}

// Submit re-checks every field and, when all pass, creates the record on the
// platform. It returns the record as the platform echoed it back; on success
// the session is closed.
func (s *Session) Submit(ctx context.Context) (metadata.Record, error) {
	s.mu.Lock()
	switch s.state {
	case StateClosed:
		s.mu.Unlock()
		return metadata.Record{}, ErrClosed
	case StateValidating, StateSubmitting:
		s.mu.Unlock()
		return metadata.Record{}, ErrSubmitInProgress
	}
	s.state = StateValidating

	class := s.fields.State(FieldHandlerClass)
	object := s.fields.State(FieldObjectType)
	devName := s.fields.State(FieldDeveloperName)
	event := metadata.EventType(s.fields.Value(FieldEvent))
	recordID := s.recordID
	s.mu.Unlock()

	// Wait for all three checks; one failing does not cancel the others.
	var (
		details platform.ClassDetails
		exists  bool
		inUse   bool

		classErr, objectErr, devErr error
	)
	var g errgroup.Group
	g.Go(func() error {
		if class.Value != "" {
			details, classErr = s.svc.ClassDetails(ctx, class.Value, event)
		}
		return nil
	})
	g.Go(func() error {
		if object.Value != "" {
			exists, objectErr = s.svc.ObjectTypeExists(ctx, object.Value)
		}
		return nil
	})
	g.Go(func() error {
		if devName.Value != "" {
			inUse, devErr = s.svc.DeveloperNameInUse(ctx, devName.Value, recordID)
		}
		return nil
	})
	_ = g.Wait()

	for _, err := range []error{classErr, objectErr, devErr} {
		if err != nil {
			s.notifyError(err)
		}
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return metadata.Record{}, ErrClosed
	}
	s.fields.ReportValidityAt(FieldHandlerClass, class.Revision, classErr == nil && details.Usable())
	s.fields.ReportValidityAt(FieldObjectType, object.Revision, objectErr == nil && exists)
	s.fields.ReportValidityAt(FieldDeveloperName, devName.Revision,
		devErr == nil && !inUse && ValidDeveloperNameFormat(devName.Value))
	for _, f := range Fields {
		if fieldSpecs[f].check == checkLocal && s.fields.NeedsValidation(f) {
			s.validateLocalLocked(f)
		}
	}

	if !s.fields.AllValid() {
		problems := s.fields.Problems()
		s.state = StateOpen
		s.mu.Unlock()
		return metadata.Record{}, &ValidationError{Fields: problems}
	}

	rec, err := s.composeLocked()
	if err != nil {
		s.fields.ReportValidity(FieldOrder, false)
		problems := s.fields.Problems()
		s.state = StateOpen
		s.mu.Unlock()
		return metadata.Record{}, &ValidationError{Fields: problems}
	}
	s.state = StateSubmitting
	s.mu.Unlock()

	created, err := s.svc.Create(ctx, []metadata.Record{rec})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if s.state != StateClosed {
			s.state = StateOpen
		}
		s.notifyError(err)
		return metadata.Record{}, err
	}
	s.state = StateClosed
	if len(created) > 0 {
		return created[0], nil
	}
	return rec, nil
}

func (s *Session) composeLocked() (metadata.Record, error) {
	active, err := strconv.ParseBool(s.fields.Value(FieldActive))
	if err != nil {
		return metadata.Record{}, fmt.Errorf("active flag: %w", err)
	}
	order, err := strconv.Atoi(s.fields.Value(FieldOrder))
	if err != nil {
		return metadata.Record{}, fmt.Errorf("order: %w", err)
	}
	return metadata.Record{
		ID:            s.recordID,
		Active:        active,
		Order:         order,
		Label:         s.fields.Value(FieldLabel),
		DeveloperName: s.fields.Value(FieldDeveloperName),
		Description:   s.fields.Value(FieldDescription),
		ObjectType:    s.fields.Value(FieldObjectType),
		Event:         metadata.EventType(s.fields.Value(FieldEvent)),
		HandlerClass:  s.fields.Value(FieldHandlerClass),
		Parameters:    s.fields.Value(FieldParameters),
	}, nil
}

// Close discards the session. Late remote results are ignored.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
}

func (s *Session) notifyError(err error) {
	if s.sink != nil {
		s.sink.Notify("Error", err.Error(), notify.SeverityError)
	}
}

// View is a read-only copy of the session for presentation.
type View struct {
	ID          string               `json:"id"`
	Mode        Mode                 `json:"mode"`
	State       State                `json:"state"`
	Title       string               `json:"title"`
	RecordID    string               `json:"recordId,omitempty"`
	Fields      map[Field]FieldState `json:"fields"`
	Warnings    Warnings             `json:"warnings"`
	JSONEnabled bool                 `json:"jsonEnabled"`
	Submitting  bool                 `json:"submitting"`
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		ID:          s.id,
		Mode:        s.mode,
		State:       s.state,
		Title:       s.titleLocked(),
		RecordID:    s.recordID,
		Fields:      s.fields.Snapshot(),
		Warnings:    s.warnings,
		JSONEnabled: s.jsonEnabled,
		Submitting:  s.state == StateValidating || s.state == StateSubmitting,
	}
}
