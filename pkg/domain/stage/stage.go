// Package stage resolves board list names into workflow categories.
package stage

import (
	"fmt"
	"strings"
)

// Category is the canonical workflow bucket a list name belongs to.
type Category string

const (
	// None is returned for list names that are not mapped to any category.
	None    Category = ""
	Backlog Category = "backlog"
	Doing   Category = "doing"
	Waiting Category = "waiting"
	Done    Category = "done"
)

// Categories lists the mapped categories in board order.
func Categories() []Category {
	return []Category{Backlog, Doing, Waiting, Done}
}

// ParseCategory converts user input (case-insensitive) into a Category.
func ParseCategory(s string) (Category, error) {
	switch Category(normalize(s)) {
	case Backlog:
		return Backlog, nil
	case Doing:
		return Doing, nil
	case Waiting:
		return Waiting, nil
	case Done:
		return Done, nil
	}
	return None, fmt.Errorf("unknown stage category: %q", s)
}

func (c Category) String() string {
	if c == None {
		return "none"
	}
	return string(c)
}

// Classification maps list names to categories. It is immutable once built.
type Classification struct {
	aliases map[string]Category
	ignored map[string]struct{}
}

// Aliases holds the raw list names configured for each category.
type Aliases struct {
	Backlog []string
	Doing   []string
	Waiting []string
	Done    []string
	// Ignored lists are informational columns whose cards are not tracked.
	Ignored []string
}

// NewClassification builds a Classification from configured aliases.
// When a name appears under several categories the later category wins,
// in the order Backlog, Doing, Waiting, Done.
func NewClassification(a Aliases) Classification {
	c := Classification{
		aliases: make(map[string]Category),
		ignored: make(map[string]struct{}),
	}
	add := func(names []string, cat Category) {
		for _, n := range names {
			if key := normalize(n); key != "" {
				c.aliases[key] = cat
			}
		}
	}
	add(a.Backlog, Backlog)
	add(a.Doing, Doing)
	add(a.Waiting, Waiting)
	add(a.Done, Done)
	for _, n := range a.Ignored {
		if key := normalize(n); key != "" {
			c.ignored[key] = struct{}{}
		}
	}
	return c
}

// Classify returns the category for a list name, or None when unmapped.
func (c Classification) Classify(name string) Category {
	return c.aliases[normalize(name)]
}

// Is reports whether name classifies as cat. Unmapped names are never
// reported as belonging to a category, including None.
func (c Classification) Is(name string, cat Category) bool {
	if cat == None {
		return false
	}
	return c.Classify(name) == cat
}

// Ignored reports whether name is an informational list.
func (c Classification) Ignored(name string) bool {
	_, ok := c.ignored[normalize(name)]
	return ok
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
