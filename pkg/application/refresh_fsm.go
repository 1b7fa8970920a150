package application

import (
	"fmt"
	"sync"

	"github.com/felixgeelhaar/statekit"
)

// Refresh lifecycle states. Untyped so they convert to statekit.StateID.
const (
	RefreshIdle    = "idle"
	RefreshLoading = "loading"
	RefreshReady   = "ready"
	RefreshFailed  = "failed"
)

const (
	eventFetch  = "fetch"
	eventLoaded = "loaded"
	eventFailed = "fail"
)

type refreshContext struct{}

// refreshMachine tracks whether the dashboard data is loading, usable or
// broken.
type refreshMachine struct {
	mu          sync.Mutex
	interpreter *statekit.Interpreter[refreshContext]
}

func newRefreshMachine() (*refreshMachine, error) {
	builder := statekit.NewMachine[refreshContext]("refresh-machine").
		WithInitial(statekit.StateID(RefreshIdle)).
		WithContext(refreshContext{})

	builder.State(RefreshIdle).
		On(eventFetch).Target(RefreshLoading).
		Done()

	builder.State(RefreshLoading).
		On(eventLoaded).Target(RefreshReady).
		On(eventFailed).Target(RefreshFailed).
		Done()

	builder.State(RefreshReady).
		On(eventFetch).Target(RefreshLoading).
		Done()

	builder.State(RefreshFailed).
		On(eventFetch).Target(RefreshLoading).
		On(eventLoaded).Target(RefreshReady).
		Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build refresh machine: %w", err)
	}

	interpreter := statekit.NewInterpreter(machine)
	interpreter.Start()
	return &refreshMachine{interpreter: interpreter}, nil
}

func (m *refreshMachine) send(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interpreter.Send(statekit.Event{Type: statekit.EventType(event)})
}

func (m *refreshMachine) current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.interpreter.State().Value)
}
