package analytics

import (
	"strings"

	"github.com/felixgeelhaar/farol/pkg/domain/stage"
)

// ItemFilter narrows the card table. Empty fields match everything.
type ItemFilter struct {
	Query    string         // substring of the card name
	Assignee string         // substring of any assignee name
	List     string         // substring of the current list name
	Status   stage.Category // category of the current list
}

// IsZero reports whether the filter matches every item.
func (f ItemFilter) IsZero() bool {
	return f == ItemFilter{}
}

// Match reports whether item passes every set criterion. Text criteria are
// trimmed and case-insensitive.
func (f ItemFilter) Match(item WorkItem, cls stage.Classification) bool {
	if q := fold(f.Query); q != "" && !strings.Contains(fold(item.Name), q) {
		return false
	}
	if a := fold(f.Assignee); a != "" {
		found := false
		for _, name := range item.Assignees {
			if strings.Contains(fold(name), a) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if l := fold(f.List); l != "" && !strings.Contains(fold(item.Stage), l) {
		return false
	}
	if f.Status != stage.None && !cls.Is(item.Stage, f.Status) {
		return false
	}
	return true
}

// Apply returns the items that match, preserving order.
func (f ItemFilter) Apply(items []WorkItem, cls stage.Classification) []WorkItem {
	if f.IsZero() {
		return items
	}
	out := make([]WorkItem, 0, len(items))
	for _, item := range items {
		if f.Match(item, cls) {
			out = append(out, item)
		}
	}
	return out
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
