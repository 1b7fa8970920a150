// Package logging builds the structured logger shared by farol components.
package logging

import (
	"fmt"
	"io"
	"time"

	charmlog "github.com/charmbracelet/log"
)

// New returns a text logger writing to w at the given level.
func New(w io.Writer, level string) (*charmlog.Logger, error) {
	lvl, err := charmlog.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse logging level %q: %w", level, err)
	}
	if w == nil {
		w = io.Discard
	}
	return charmlog.NewWithOptions(w, charmlog.Options{
		Level:           lvl,
		Prefix:          "farol",
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       charmlog.TextFormatter,
	}), nil
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *charmlog.Logger {
	return charmlog.NewWithOptions(io.Discard, charmlog.Options{})
}
