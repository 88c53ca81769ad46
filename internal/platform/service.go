package platform

import (
	"context"
	"encoding/json"
	"fmt"

	"trigger-console/internal/metadata"
)

// Service is the remote platform holding trigger metadata. Every call may
// block on the network and returns a *ServiceError on transport or platform
// failure.
type Service interface {
	FetchAll(ctx context.Context) ([]metadata.Record, error)
	ObjectTypeExists(ctx context.Context, name string) (bool, error)
	ClassDetails(ctx context.Context, className string, event metadata.EventType) (ClassDetails, error)
	DeveloperNameInUse(ctx context.Context, name, excludingID string) (bool, error)
	Create(ctx context.Context, records []metadata.Record) ([]metadata.Record, error)
}

// ClassDetails describes a handler class as seen by the platform.
type ClassDetails struct {
	ClassExists         bool   `json:"classExists"`
	ImplementsInterface bool   `json:"implementsInterface"`
	IsJSONEnabled       bool   `json:"isJSONEnabled"`
	Description         string `json:"description"`

	// ParameterSchema is an optional JSON Schema the handler publishes for
	// its parameters.
	ParameterSchema json.RawMessage `json:"parameterSchema,omitempty"`
}

// Usable reports whether the class can be registered for the event.
func (d ClassDetails) Usable() bool {
	return d.ClassExists && d.ImplementsInterface
}

// ServiceError wraps a failed platform call.
type ServiceError struct {
	Op     string
	Status int
	Err    error
}

func (e *ServiceError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("platform %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("platform %s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}
