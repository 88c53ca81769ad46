package editor

import (
	"fmt"
	"strconv"
)

// Field identifies one input of the record editor.
type Field string

const (
	FieldActive        Field = "isActive"
	FieldOrder         Field = "order"
	FieldLabel         Field = "label"
	FieldDeveloperName Field = "developerName"
	FieldDescription   Field = "description"
	FieldObjectType    Field = "objectType"
	FieldHandlerClass  Field = "handlerClass"
	FieldParameters    Field = "parameters"
	FieldEvent         Field = "event"
)

// Fields lists every editor field in form order.
var Fields = []Field{
	FieldActive, FieldOrder, FieldLabel, FieldDeveloperName, FieldDescription,
	FieldObjectType, FieldHandlerClass, FieldParameters, FieldEvent,
}

type checkKind int

const (
	checkNone checkKind = iota
	checkLocal
	checkRemote
)

type fieldSpec struct {
	check   checkKind
	message string
}

var fieldSpecs = map[Field]fieldSpec{
	FieldActive:        {check: checkNone},
	FieldOrder:         {check: checkLocal, message: "Order must be a whole number"},
	FieldLabel:         {check: checkLocal, message: "Label cannot be left blank"},
	FieldDeveloperName: {check: checkRemote, message: "This name must be unique, be at least 3 characters and start with a letter"},
	FieldDescription:   {check: checkLocal, message: "Description cannot be left blank"},
	FieldObjectType:    {check: checkRemote, message: "This object type does not exist, please check your spelling"},
	FieldHandlerClass:  {check: checkRemote, message: "This handler class does not exist or does not implement the correct interface, please check your spelling"},
	FieldParameters:    {check: checkLocal, message: "Parameters must be in a valid JSON format"},
	FieldEvent:         {check: checkLocal, message: "You must select a trigger event"},
}

// ParseField maps a wire name onto a Field.
func ParseField(name string) (Field, error) {
	f := Field(name)
	if _, ok := fieldSpecs[f]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	return f, nil
}

// FieldState is the validation state of one field.
type FieldState struct {
	Value     string `json:"value"`
	Validated bool   `json:"validated"`
	Invalid   bool   `json:"invalid"`
	Message   string `json:"message,omitempty"`

	// Revision increases on every edit; remote results carry the revision
	// they were computed for.
	Revision uint64 `json:"revision"`
}

// Registry tracks value and validity per field. It is not safe for
// concurrent use; Session serializes access.
type Registry struct {
	fields map[Field]*FieldState
}

// NewRegistry returns a registry with the defaults of a blank form: active,
// order 0, everything else empty. Only the active flag starts validated.
func NewRegistry() *Registry {
	r := &Registry{fields: make(map[Field]*FieldState, len(Fields))}
	for _, f := range Fields {
		r.fields[f] = &FieldState{}
	}
	r.fields[FieldActive].Value = "true"
	r.fields[FieldActive].Validated = true
	r.fields[FieldOrder].Value = "0"
	return r
}

// SetValue stores an edit. Any edit invalidates earlier validation, except
// for the active flag which has nothing to validate.
func (r *Registry) SetValue(f Field, value string) error {
	st, ok := r.fields[f]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, f)
	}
	if f == FieldActive {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: isActive must be true or false", ErrInvalidValue)
		}
		st.Value = strconv.FormatBool(b)
		st.Revision++
		return nil
	}
	st.Value = value
	st.Validated = false
	st.Invalid = false
	st.Message = ""
	st.Revision++
	return nil
}

// fill sets a value produced by the console itself (autofill) and marks it
// validated.
func (r *Registry) fill(f Field, value string) {
	st := r.fields[f]
	st.Value = value
	st.Validated = true
	st.Invalid = false
	st.Message = ""
	st.Revision++
}

// load sets a value copied from an existing record without validating it.
func (r *Registry) load(f Field, value string) {
	r.fields[f].Value = value
}

func (r *Registry) Value(f Field) string {
	return r.fields[f].Value
}

func (r *Registry) State(f Field) FieldState {
	return *r.fields[f]
}

// ReportValidity records a validator outcome for the field.
func (r *Registry) ReportValidity(f Field, passed bool) {
	st := r.fields[f]
	if passed {
		st.Validated = true
		st.Invalid = false
		st.Message = ""
		return
	}
	st.Invalid = true
	st.Message = fieldSpecs[f].message
}

// ReportValidityAt is ReportValidity for a result computed against revision
// rev. It returns false and changes nothing when the field has been edited
// since.
func (r *Registry) ReportValidityAt(f Field, rev uint64, passed bool) bool {
	if r.fields[f].Revision != rev {
		return false
	}
	r.ReportValidity(f, passed)
	return true
}

// NeedsValidation reports whether the field has not passed its validator.
func (r *Registry) NeedsValidation(f Field) bool {
	st := r.fields[f]
	return !st.Validated || st.Invalid
}

// AllValid reports whether every field has passed validation.
func (r *Registry) AllValid() bool {
	for _, f := range Fields {
		if r.NeedsValidation(f) {
			return false
		}
	}
	return true
}

// Problems lists every field that blocks submission.
func (r *Registry) Problems() []FieldError {
	var out []FieldError
	for _, f := range Fields {
		if !r.NeedsValidation(f) {
			continue
		}
		msg := r.fields[f].Message
		if msg == "" {
			msg = fieldSpecs[f].message
		}
		out = append(out, FieldError{Field: f, Message: msg})
	}
	return out
}

// Snapshot copies the state of every field.
func (r *Registry) Snapshot() map[Field]FieldState {
	out := make(map[Field]FieldState, len(r.fields))
	for f, st := range r.fields {
		out[f] = *st
	}
	return out
}
