package editor

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"trigger-console/internal/metadata"
)

var (
	orderPattern         = regexp.MustCompile(`^-?\d+$`)
	developerNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{2,}$`)
)

// ValidOrder accepts an optional leading minus followed by digits only, and
// the value must fit in an int.
func ValidOrder(s string) bool {
	if !orderPattern.MatchString(s) {
		return false
	}
	_, err := strconv.Atoi(s)
	return err == nil
}

func ValidLabel(s string) bool {
	return strings.TrimSpace(s) != ""
}

func ValidDescription(s string) bool {
	return strings.TrimSpace(s) != ""
}

// ValidParameters accepts an empty string or any well-formed JSON document.
func ValidParameters(s string) bool {
	return s == "" || json.Valid([]byte(s))
}

func ValidEvent(s string) bool {
	return metadata.EventType(s).Valid()
}

// ValidDeveloperNameFormat covers the local part of developer name
// validation: starts with a letter, at least three characters, letters,
// digits and underscores only. Uniqueness is checked remotely.
func ValidDeveloperNameFormat(s string) bool {
	return developerNamePattern.MatchString(s)
}

// validateLocal dispatches the synchronous validators by field.
func validateLocal(f Field, value string) bool {
	switch f {
	case FieldOrder:
		return ValidOrder(value)
	case FieldLabel:
		return ValidLabel(value)
	case FieldDescription:
		return ValidDescription(value)
	case FieldParameters:
		return ValidParameters(value)
	case FieldEvent:
		return ValidEvent(value)
	}
	return true
}
