package editor

import (
	"errors"
	"testing"
)

func TestValidOrder(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"5", true},
		{"-5", true},
		{"0", true},
		{"120", true},
		{"5.0", false},
		{"+5", false},
		{"", false},
		{"five", false},
		{" 5", false},
		{"2147483647", true},
		{"99999999999999999999", false},
		{"-99999999999999999999", false},
	}
	for _, tt := range tests {
		if got := ValidOrder(tt.in); got != tt.want {
			t.Errorf("ValidOrder(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestValidParameters(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"", true},
		{`{"a":1}`, true},
		{`[1,2]`, true},
		{`{bad json`, false},
		{`{"a":}`, false},
	}
	for _, tt := range tests {
		if got := ValidParameters(tt.in); got != tt.want {
			t.Errorf("ValidParameters(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestValidDeveloperNameFormat(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"ab1", true},
		{"a_1", true},
		{"AccountHandlerBI", true},
		{"ab", false},
		{"1ab", false},
		{"_ab", false},
		{"a-b", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidDeveloperNameFormat(tt.in); got != tt.want {
			t.Errorf("ValidDeveloperNameFormat(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLabelAndDescriptionRejectBlank(t *testing.T) {
	for _, in := range []string{"", "   ", "\t\n"} {
		if ValidLabel(in) {
			t.Errorf("ValidLabel(%q) should be false", in)
		}
		if ValidDescription(in) {
			t.Errorf("ValidDescription(%q) should be false", in)
		}
	}
	if !ValidLabel("Account handler") || !ValidDescription("x") {
		t.Error("non-blank values should pass")
	}
}

func TestValidEvent(t *testing.T) {
	if ValidEvent("") {
		t.Error("empty event should be invalid")
	}
	if ValidEvent("BEFORE_MERGE") {
		t.Error("unknown event should be invalid")
	}
	if !ValidEvent("AFTER_UNDELETE") {
		t.Error("AFTER_UNDELETE should be valid")
	}
}

func TestRegistryDefaults(t *testing.T) {
	r := NewRegistry()
	if r.Value(FieldActive) != "true" || r.Value(FieldOrder) != "0" {
		t.Fatalf("unexpected defaults: active=%q order=%q", r.Value(FieldActive), r.Value(FieldOrder))
	}
	if r.NeedsValidation(FieldActive) {
		t.Error("active flag should start validated")
	}
	if !r.NeedsValidation(FieldOrder) {
		t.Error("order should start unvalidated")
	}
	if r.AllValid() {
		t.Error("a blank form must not be valid")
	}
}

func TestRegistryEditResetsValidation(t *testing.T) {
	r := NewRegistry()
	r.SetValue(FieldLabel, "")
	r.ReportValidity(FieldLabel, false)
	st := r.State(FieldLabel)
	if !st.Invalid || st.Message == "" {
		t.Fatalf("expected label invalid with message, got %+v", st)
	}

	if err := r.SetValue(FieldLabel, "Fixed"); err != nil {
		t.Fatalf("set: %v", err)
	}
	st = r.State(FieldLabel)
	if st.Validated || st.Invalid || st.Message != "" {
		t.Errorf("edit should reset validation, got %+v", st)
	}
}

func TestRegistryActiveFlag(t *testing.T) {
	r := NewRegistry()
	if err := r.SetValue(FieldActive, "false"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if r.Value(FieldActive) != "false" || r.NeedsValidation(FieldActive) {
		t.Errorf("active flag should stay validated, got %+v", r.State(FieldActive))
	}
	if err := r.SetValue(FieldActive, "maybe"); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("expected ErrInvalidValue, got %v", err)
	}
}

func TestRegistryUnknownField(t *testing.T) {
	r := NewRegistry()
	if err := r.SetValue("colour", "red"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
	if _, err := ParseField("colour"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField from ParseField, got %v", err)
	}
	if f, err := ParseField("handlerClass"); err != nil || f != FieldHandlerClass {
		t.Errorf("ParseField(handlerClass) = %q, %v", f, err)
	}
}

func TestRegistryStaleResultDiscarded(t *testing.T) {
	r := NewRegistry()
	r.SetValue(FieldObjectType, "Acount")
	rev := r.State(FieldObjectType).Revision

	r.SetValue(FieldObjectType, "Account")
	if r.ReportValidityAt(FieldObjectType, rev, false) {
		t.Fatal("result for an old revision should be discarded")
	}
	if r.State(FieldObjectType).Invalid {
		t.Error("stale result must not mark the field invalid")
	}

	if !r.ReportValidityAt(FieldObjectType, r.State(FieldObjectType).Revision, true) {
		t.Fatal("result for the current revision should apply")
	}
	if r.NeedsValidation(FieldObjectType) {
		t.Error("object type should be validated")
	}
}

func TestRegistryProblems(t *testing.T) {
	r := NewRegistry()
	for _, f := range Fields {
		if f == FieldActive {
			continue
		}
		r.ReportValidity(f, true)
	}
	r.ReportValidity(FieldParameters, false)

	problems := r.Problems()
	if len(problems) != 1 || problems[0].Field != FieldParameters {
		t.Fatalf("expected only parameters to block, got %+v", problems)
	}
	if problems[0].Message != "Parameters must be in a valid JSON format" {
		t.Errorf("unexpected message %q", problems[0].Message)
	}
}

func TestSchemaChecker(t *testing.T) {
	c := NewSchemaChecker()
	schema := []byte(`{"type":"object","required":["threshold"],"properties":{"threshold":{"type":"integer"}}}`)

	if err := c.Check(schema, `{"threshold": 3}`); err != nil {
		t.Errorf("expected valid parameters, got %v", err)
	}
	if err := c.Check(schema, `{"threshold": "high"}`); err == nil {
		t.Error("expected type mismatch")
	}
	if err := c.Check(schema, `{}`); err == nil {
		t.Error("expected missing required property")
	}
	if err := c.Check(nil, `{"anything": true}`); err != nil {
		t.Errorf("no schema should always pass, got %v", err)
	}
	if len(c.cache) != 1 {
		t.Errorf("expected one compiled schema, got %d", len(c.cache))
	}
}
