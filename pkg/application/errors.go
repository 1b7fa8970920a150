package application

import "errors"

var (
	// ErrNoBoards is returned when no board is configured.
	ErrNoBoards = errors.New("no boards configured")
	// ErrNoSnapshot is returned when nothing has been loaded yet.
	ErrNoSnapshot = errors.New("no snapshot available")
	// ErrStaleRefresh is returned by a refresh overtaken by a newer one.
	ErrStaleRefresh = errors.New("refresh superseded by a newer one")
)
