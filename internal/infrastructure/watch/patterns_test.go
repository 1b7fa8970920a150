package watch_test

import (
	"testing"

	"github.com/felixgeelhaar/farol/internal/infrastructure/watch"
)

func TestPatternFilter(t *testing.T) {
	f := watch.NewPatternFilter([]string{"/etc/farol/farol.yaml", "/srv/*.yml"}, []string{"*.tmp", "*.swp"})

	tests := []struct {
		path  string
		match bool
	}{
		{"/etc/farol/farol.yaml", true},
		{"/etc/farol/./farol.yaml", true},
		{"/etc/farol/other.yaml", false},
		{"/srv/boards.yml", true},
		{"/srv/boards.yml.tmp", false},
		{"/srv/.boards.yml.swp", false},
	}

	for _, tt := range tests {
		if got := f.Matches(tt.path); got != tt.match {
			t.Errorf("Matches(%q) = %v, want %v", tt.path, got, tt.match)
		}
	}
}

func TestPatternFilter_NoInclude(t *testing.T) {
	f := watch.NewPatternFilter(nil, []string{"*~"})
	if !f.Matches("/any/file.yaml") {
		t.Error("expected path to pass without include entries")
	}
	if f.Matches("/any/file.yaml~") {
		t.Error("expected backup file to be excluded")
	}
}
