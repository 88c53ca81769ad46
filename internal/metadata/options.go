package metadata

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// AllLabel is the synthetic "no filter" option shown first in every picker.
const AllLabel = "All"

// Option is one row of the object type picker.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// ObjectOptions merges the object types found in records into existing and
// returns them collated for display, with the "All" option pinned first.
// Options are never dropped: a type that disappears from the data stays
// selectable until the console restarts.
func ObjectOptions(existing []Option, records []Record) []Option {
	seen := make(map[string]bool, len(existing)+len(records))
	merged := make([]Option, 0, len(existing)+len(records))
	for _, o := range existing {
		if o.Label == AllLabel || seen[o.Label] {
			continue
		}
		seen[o.Label] = true
		merged = append(merged, o)
	}
	for _, r := range records {
		if r.ObjectType == "" || seen[r.ObjectType] {
			continue
		}
		seen[r.ObjectType] = true
		merged = append(merged, Option{Label: r.ObjectType, Value: r.ObjectType})
	}

	col := collate.New(language.English)
	sort.SliceStable(merged, func(i, j int) bool {
		return col.CompareString(merged[i].Label, merged[j].Label) < 0
	})

	return append([]Option{{Label: AllLabel, Value: ""}}, merged...)
}
