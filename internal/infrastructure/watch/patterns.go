package watch

import (
	"path/filepath"
)

// PatternFilter selects watched paths. Include entries are absolute paths or
// globs; exclude entries are globs matched against the base name.
type PatternFilter struct {
	Include []string
	Exclude []string
}

// NewPatternFilter creates a new pattern filter.
func NewPatternFilter(include, exclude []string) *PatternFilter {
	return &PatternFilter{
		Include: include,
		Exclude: exclude,
	}
}

// Matches returns true if the path passes the filter. With no include
// entries every non-excluded path passes.
func (f *PatternFilter) Matches(path string) bool {
	base := filepath.Base(path)
	clean := filepath.Clean(path)

	for _, pattern := range f.Exclude {
		if matched, _ := filepath.Match(pattern, base); matched {
			return false
		}
	}

	if len(f.Include) == 0 {
		return true
	}

	for _, pattern := range f.Include {
		if filepath.Clean(pattern) == clean {
			return true
		}
		if matched, _ := filepath.Match(pattern, clean); matched {
			return true
		}
	}
	return false
}
