package editor

import (
	"errors"
	"strings"
)

var (
	ErrUnknownField     = errors.New("unknown field")
	ErrInvalidValue     = errors.New("invalid value")
	ErrSubmitInProgress = errors.New("submission already in progress")
	ErrClosed           = errors.New("editor is closed")
	ErrReadOnly         = errors.New("built-in records are read-only")
	ErrValidation       = errors.New("validation failed")
)

// FieldError names a field that blocked submission.
type FieldError struct {
	Field   Field  `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned by Submit when one or more fields are invalid.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = string(f.Field)
	}
	return "validation failed: " + strings.Join(names, ", ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
