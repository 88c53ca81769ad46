package metadata

import "strings"

// BuiltInNamespace marks records shipped with the base framework. They are
// read-only in the console.
const BuiltInNamespace = "nebc"

// Record is one trigger handler registration.
type Record struct {
	ID              string    `json:"id,omitempty"`
	Active          bool      `json:"active"`
	Order           int       `json:"order"`
	Label           string    `json:"label"`
	DeveloperName   string    `json:"developerName"`
	Description     string    `json:"description"`
	ObjectType      string    `json:"objectType"`
	Event           EventType `json:"event"`
	HandlerClass    string    `json:"handlerClass"`
	Parameters      string    `json:"parameters,omitempty"`
	NamespacePrefix string    `json:"namespacePrefix,omitempty"`

	// Derived by Annotate, never sent to the platform.
	BuiltIn    bool   `json:"builtIn"`
	EventLabel string `json:"eventLabel,omitempty"`
}

// Annotate fills the derived BuiltIn and EventLabel fields in place.
func Annotate(records []Record) {
	for i := range records {
		records[i].BuiltIn = records[i].NamespacePrefix == BuiltInNamespace
		records[i].EventLabel = records[i].Event.Label()
	}
}

// Matches reports whether a fetched record carries every tracked value of a
// submitted one. Descriptions are compared trimmed; IDs and derived fields
// are ignored.
func Matches(fetched, submitted Record) bool {
	return fetched.Event == submitted.Event &&
		fetched.Parameters == submitted.Parameters &&
		fetched.HandlerClass == submitted.HandlerClass &&
		fetched.Order == submitted.Order &&
		fetched.Active == submitted.Active &&
		fetched.ObjectType == submitted.ObjectType &&
		strings.TrimSpace(fetched.Description) == strings.TrimSpace(submitted.Description) &&
		fetched.Label == submitted.Label &&
		fetched.DeveloperName == submitted.DeveloperName
}

// FindByID returns a pointer into records for the given id, or nil.
func FindByID(records []Record, id string) *Record {
	if id == "" {
		return nil
	}
	for i := range records {
		if records[i].ID == id {
			return &records[i]
		}
	}
	return nil
}

// HandlerRegistered reports whether some record other than excludeID already
// registers handlerClass for event.
func HandlerRegistered(records []Record, handlerClass string, event EventType, excludeID string) bool {
	for _, r := range records {
		if r.HandlerClass == handlerClass && r.Event == event && r.ID != excludeID {
			return true
		}
	}
	return false
}
