package audit

import "time"

const (
	ActionRecordSubmitted     = "record.submitted"
	ActionDeploymentConfirmed = "deployment.confirmed"
	ActionValidationFailed    = "validation.failed"
	ActionRefreshFailed       = "refresh.failed"
)

// Event is one row of the console audit log.
type Event struct {
	ID            string         `json:"id"`
	Action        string         `json:"action"`
	RecordID      string         `json:"record_id,omitempty"`
	DeveloperName string         `json:"developer_name,omitempty"`
	UserID        string         `json:"user_id,omitempty"`
	Status        string         `json:"status,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Recorder accepts audit events. Record must not block on I/O.
type Recorder interface {
	Record(e Event)
}

// Noop discards every event. Used when the audit log is disabled.
type Noop struct{}

func (Noop) Record(Event) {}
