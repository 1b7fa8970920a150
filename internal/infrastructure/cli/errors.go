package cli

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/charmbracelet/lipgloss"
	"github.com/felixgeelhaar/farol/internal/infrastructure/config"
	"github.com/felixgeelhaar/farol/pkg/application"
	"github.com/felixgeelhaar/farol/pkg/storage"
	"github.com/felixgeelhaar/farol/pkg/trello"
)

// CLIError wraps domain errors with user-facing messages and actionable hints.
type CLIError struct {
	Message  string
	Hint     string
	Err      error
	ExitCode int
}

func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a CLIError with a default exit code of 1.
func NewCLIError(msg, hint string, err error) *CLIError {
	return &CLIError{
		Message:  msg,
		Hint:     hint,
		Err:      err,
		ExitCode: 1,
	}
}

// MapError converts known domain errors into CLIErrors with actionable hints.
// Unmapped errors are returned as-is.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return err
	}

	var apiErr *trello.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return NewCLIError("trello rejected the credentials",
				"Check trello.key and trello.token, or TRELLO_KEY and TRELLO_TOKEN", err)
		case http.StatusNotFound:
			return NewCLIError("trello board not found",
				"Check the board IDs in trello.boards; use the short ID from the board URL", err)
		case http.StatusTooManyRequests:
			return NewCLIError("trello rate limit reached",
				"Raise throttle_ms or lower max_action_cards", err)
		}
		return NewCLIError("trello request failed", "Retry later; run with --log-level debug for details", err)
	}

	switch {
	case errors.Is(err, config.ErrMissingCredentials), errors.Is(err, trello.ErrMissingCredentials):
		return NewCLIError("trello credentials missing",
			"Set trello.key and trello.token in farol.yaml, or export TRELLO_KEY and TRELLO_TOKEN", err)
	case errors.Is(err, config.ErrNoBoards), errors.Is(err, application.ErrNoBoards):
		return NewCLIError("no boards configured",
			"Add board IDs under trello.boards, or export TRELLO_BOARD_IDS", err)
	case errors.Is(err, storage.ErrSnapshotNotFound), errors.Is(err, application.ErrNoSnapshot):
		return NewCLIError("no saved snapshot",
			"Run 'farol fetch' first, or drop --offline", err)
	}

	return err
}

var (
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

func printError(w io.Writer, err error) {
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		_, _ = fmt.Fprintln(w, errorStyle.Render("Error: ")+cliErr.Error())
		if cliErr.Hint != "" {
			_, _ = fmt.Fprintln(w, hintStyle.Render("Hint: "+cliErr.Hint))
		}
		return
	}
	_, _ = fmt.Fprintln(w, errorStyle.Render("Error: ")+err.Error())
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	var cliErr *CLIError
	if errors.As(MapError(err), &cliErr) {
		return cliErr.ExitCode
	}
	return 1
}
