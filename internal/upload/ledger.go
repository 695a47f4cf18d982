package upload

import (
	"fmt"
	"slices"

	dErrors "claimgate/pkg/domain-errors"
)

// Entry is one uploaded file: the handle the client uses for its preview and
// the name the backend assigned.
type Entry struct {
	PreviewHandle  string `json:"preview_handle"`
	ServerFilename string `json:"server_filename"`
	OriginalName   string `json:"original_name"`
}

// Ledger keeps per-category entries and the flattened submission list. The
// submission list is maintained by index arithmetic over the category order, so
// it stays aligned with Previews however entries are added or removed.
type Ledger struct {
	order  []string
	slots  map[string][]Entry
	images []string
}

// NewLedger fixes the category order. Order decides the submission order.
func NewLedger(categories ...string) *Ledger {
	l := &Ledger{
		order: append([]string(nil), categories...),
		slots: make(map[string][]Entry, len(categories)),
	}
	for _, c := range categories {
		l.slots[c] = nil
	}
	return l
}

func (l *Ledger) Has(category string) bool {
	_, ok := l.slots[category]
	return ok
}

func (l *Ledger) Categories() []string {
	return append([]string(nil), l.order...)
}

// offset is the number of entries in the categories before category.
func (l *Ledger) offset(category string) int {
	n := 0
	for _, c := range l.order {
		if c == category {
			return n
		}
		n += len(l.slots[c])
	}
	return n
}

// Add appends e to category and inserts its server filename at the matching
// global position. It returns that position.
func (l *Ledger) Add(category string, e Entry) (int, error) {
	if !l.Has(category) {
		return 0, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown upload category %q", category))
	}
	idx := l.offset(category) + len(l.slots[category])
	l.slots[category] = append(l.slots[category], e)
	l.images = slices.Insert(l.images, idx, e.ServerFilename)
	return idx, nil
}

// Remove deletes the entry at slot within category from both views.
func (l *Ledger) Remove(category string, slot int) (Entry, error) {
	if !l.Has(category) {
		return Entry{}, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown upload category %q", category))
	}
	entries := l.slots[category]
	if slot < 0 || slot >= len(entries) {
		return Entry{}, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("no file at %s[%d]", category, slot))
	}
	idx := l.offset(category) + slot
	removed := entries[slot]
	l.slots[category] = slices.Delete(slices.Clone(entries), slot, slot+1)
	l.images = slices.Delete(l.images, idx, idx+1)
	return removed, nil
}

// Entries returns a copy of one category's entries.
func (l *Ledger) Entries(category string) []Entry {
	return slices.Clone(l.slots[category])
}

// ImageNames is the server filename list sent with the claim.
func (l *Ledger) ImageNames() []string {
	return slices.Clone(l.images)
}

// Previews flattens all categories in order.
func (l *Ledger) Previews() []Entry {
	var out []Entry
	for _, c := range l.order {
		out = append(out, l.slots[c]...)
	}
	return out
}

func (l *Ledger) Len() int {
	return len(l.images)
}

// Load replaces the contents with a snapshot taken from Snapshot. Unknown
// categories in the snapshot are ignored.
func (l *Ledger) Load(snapshot map[string][]Entry) {
	l.Reset()
	for _, c := range l.order {
		l.slots[c] = slices.Clone(snapshot[c])
		for _, e := range l.slots[c] {
			l.images = append(l.images, e.ServerFilename)
		}
	}
}

// Reset drops every entry, keeping the category order.
func (l *Ledger) Reset() {
	for c := range l.slots {
		l.slots[c] = nil
	}
	l.images = nil
}
