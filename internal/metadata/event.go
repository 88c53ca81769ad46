package metadata

import (
	"strings"
	"unicode"
)

// EventType is a trigger lifecycle phase. The empty value means "no filter".
type EventType string

const (
	EventAll           EventType = ""
	EventBeforeInsert  EventType = "BEFORE_INSERT"
	EventAfterInsert   EventType = "AFTER_INSERT"
	EventBeforeUpdate  EventType = "BEFORE_UPDATE"
	EventAfterUpdate   EventType = "AFTER_UPDATE"
	EventBeforeDelete  EventType = "BEFORE_DELETE"
	EventAfterDelete   EventType = "AFTER_DELETE"
	EventAfterUndelete EventType = "AFTER_UNDELETE"
)

// EventOption is one row of the event picker.
type EventOption struct {
	Label        string    `json:"label"`
	Value        EventType `json:"value"`
	Abbreviation string    `json:"abbreviation,omitempty"`
}

var eventOptions = []EventOption{
	{Label: AllLabel, Value: EventAll},
	{Label: "Before Insert", Value: EventBeforeInsert, Abbreviation: "BI"},
	{Label: "After Insert", Value: EventAfterInsert, Abbreviation: "AI"},
	{Label: "Before Update", Value: EventBeforeUpdate, Abbreviation: "BU"},
	{Label: "After Update", Value: EventAfterUpdate, Abbreviation: "AU"},
	{Label: "Before Delete", Value: EventBeforeDelete, Abbreviation: "BD"},
	{Label: "After Delete", Value: EventAfterDelete, Abbreviation: "AD"},
	{Label: "After Undelete", Value: EventAfterUndelete, Abbreviation: "AUD"},
}

// EventOptions returns the event picker rows, "All" first.
func EventOptions() []EventOption {
	out := make([]EventOption, len(eventOptions))
	copy(out, eventOptions)
	return out
}

func (e EventType) option() (EventOption, bool) {
	for _, o := range eventOptions {
		if o.Value == e {
			return o, true
		}
	}
	return EventOption{}, false
}

// Valid reports whether e is one of the seven lifecycle phases.
func (e EventType) Valid() bool {
	_, ok := e.option()
	return ok && e != EventAll
}

// Label returns the human-readable name, or "" for an unknown value.
func (e EventType) Label() string {
	o, _ := e.option()
	return o.Label
}

// Abbreviation returns the two or three letter suffix used for derived names.
func (e EventType) Abbreviation() string {
	o, _ := e.option()
	return o.Abbreviation
}

// DerivedName is the default label for a handler registered on event.
func DerivedName(handlerClass string, event EventType) string {
	return handlerClass + event.Abbreviation()
}

// DerivedDeveloperName turns a label into a developer name by replacing every
// non-alphanumeric character with an underscore.
func DerivedDeveloperName(label string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return '_'
	}, label)
}
