package metadata

import "testing"

func testRecord() Record {
	return Record{
		ID:            "m-1",
		Active:        true,
		Order:         10,
		Label:         "AccountDefaultsBI",
		DeveloperName: "AccountDefaultsBI",
		Description:   "Sets defaults",
		ObjectType:    "Account",
		Event:         EventBeforeInsert,
		HandlerClass:  "AccountDefaults",
		Parameters:    `{"a":1}`,
	}
}

func TestObjectOptions_AllPinnedAndDeduplicated(t *testing.T) {
	records := []Record{{ObjectType: "Account"}, {ObjectType: "Contact"}, {ObjectType: "Account"}}

	got := ObjectOptions(nil, records)
	want := []string{"All", "Account", "Contact"}
	if len(got) != len(want) {
		t.Fatalf("expected %d options, got %d: %v", len(want), len(got), got)
	}
	for i, label := range want {
		if got[i].Label != label {
			t.Fatalf("option %d: expected %s, got %s", i, label, got[i].Label)
		}
	}
	if got[0].Value != "" {
		t.Fatalf("expected All option to carry empty value, got %q", got[0].Value)
	}
}

func TestObjectOptions_MergesWithExisting(t *testing.T) {
	existing := ObjectOptions(nil, []Record{{ObjectType: "Opportunity"}})

	got := ObjectOptions(existing, []Record{{ObjectType: "contact"}, {ObjectType: "Account"}})
	want := []string{"All", "Account", "contact", "Opportunity"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i, label := range want {
		if got[i].Label != label {
			t.Fatalf("option %d: expected %s, got %s", i, label, got[i].Label)
		}
	}
}

func TestMatches(t *testing.T) {
	submitted := testRecord()
	submitted.ID = ""

	fetched := testRecord()
	fetched.Description = "  Sets defaults \n"
	if !Matches(fetched, submitted) {
		t.Fatal("expected records to match ignoring id and description whitespace")
	}

	mutations := map[string]func(r *Record){
		"object":     func(r *Record) { r.ObjectType = "Contact" },
		"event":      func(r *Record) { r.Event = EventAfterInsert },
		"order":      func(r *Record) { r.Order = 11 },
		"active":     func(r *Record) { r.Active = false },
		"class":      func(r *Record) { r.HandlerClass = "Other" },
		"parameters": func(r *Record) { r.Parameters = "" },
		"label":      func(r *Record) { r.Label = "Other" },
		"devname":    func(r *Record) { r.DeveloperName = "Other" },
	}
	for name, mutate := range mutations {
		r := testRecord()
		mutate(&r)
		if Matches(r, submitted) {
			t.Errorf("%s: expected mismatch", name)
		}
	}
}

func TestAnnotate(t *testing.T) {
	records := []Record{
		{NamespacePrefix: "nebc", Event: EventAfterUndelete},
		{Event: EventBeforeUpdate},
	}
	Annotate(records)

	if !records[0].BuiltIn || records[1].BuiltIn {
		t.Fatalf("unexpected built-in flags: %v, %v", records[0].BuiltIn, records[1].BuiltIn)
	}
	if records[0].EventLabel != "After Undelete" {
		t.Fatalf("expected After Undelete, got %q", records[0].EventLabel)
	}
	if records[1].EventLabel != "Before Update" {
		t.Fatalf("expected Before Update, got %q", records[1].EventLabel)
	}
}

func TestDerivedNames(t *testing.T) {
	cases := []struct {
		class   string
		event   EventType
		label   string
		devName string
	}{
		{"AccountDefaults", EventBeforeInsert, "AccountDefaultsBI", "AccountDefaultsBI"},
		{"ns.Handler", EventAfterUndelete, "ns.HandlerAUD", "ns_HandlerAUD"},
		{"Contact-Sync", EventAfterDelete, "Contact-SyncAD", "Contact_SyncAD"},
	}
	for _, tc := range cases {
		label := DerivedName(tc.class, tc.event)
		if label != tc.label {
			t.Errorf("DerivedName(%s, %s) = %s, want %s", tc.class, tc.event, label, tc.label)
		}
		if dev := DerivedDeveloperName(label); dev != tc.devName {
			t.Errorf("DerivedDeveloperName(%s) = %s, want %s", label, dev, tc.devName)
		}
	}
}

func TestEventTypeValid(t *testing.T) {
	if EventAll.Valid() {
		t.Fatal("the All option is not a lifecycle phase")
	}
	if EventType("AFTER_MERGE").Valid() {
		t.Fatal("unknown event must be invalid")
	}
	for _, o := range EventOptions()[1:] {
		if !o.Value.Valid() {
			t.Errorf("%s should be valid", o.Value)
		}
	}
}

func TestHandlerRegistered(t *testing.T) {
	records := []Record{testRecord()}

	if !HandlerRegistered(records, "AccountDefaults", EventBeforeInsert, "") {
		t.Fatal("expected existing registration to be found")
	}
	if HandlerRegistered(records, "AccountDefaults", EventBeforeInsert, "m-1") {
		t.Fatal("the record itself must be excluded")
	}
	if HandlerRegistered(records, "AccountDefaults", EventAfterInsert, "") {
		t.Fatal("different event must not match")
	}
}
