package application_test

import (
	"context"
	"io"
	"sync"

	charmlog "github.com/charmbracelet/log"
	"github.com/felixgeelhaar/farol/pkg/domain/board"
	"github.com/felixgeelhaar/farol/pkg/domain/stage"
	"github.com/felixgeelhaar/farol/pkg/trello"
)

func quietLogger() *charmlog.Logger {
	return charmlog.New(io.Discard)
}

func testClassification() stage.Classification {
	return stage.NewClassification(stage.Aliases{
		Backlog: []string{"A FAZER"},
		Doing:   []string{"FAZENDO"},
		Waiting: []string{"AGUARDANDO"},
		Done:    []string{"FEITO"},
		Ignored: []string{"REFERÊNCIAS"},
	})
}

type FakeSource struct {
	mu       sync.Mutex
	Lists    map[string][]trello.List
	Cards    map[string][]trello.Card
	Members  map[string][]trello.Member
	Moves    map[string][]trello.Action
	BoardErr error
	MoveErr  map[string]error
	MoveCall []string
}

func (f *FakeSource) BoardLists(ctx context.Context, boardID string) ([]trello.List, error) {
	if f.BoardErr != nil {
		return nil, f.BoardErr
	}
	return f.Lists[boardID], nil
}

func (f *FakeSource) BoardCards(ctx context.Context, boardID string) ([]trello.Card, error) {
	return f.Cards[boardID], nil
}

func (f *FakeSource) BoardMembers(ctx context.Context, boardID string) ([]trello.Member, error) {
	return f.Members[boardID], nil
}

func (f *FakeSource) CardMoves(ctx context.Context, cardID string) ([]trello.Action, error) {
	f.mu.Lock()
	f.MoveCall = append(f.MoveCall, cardID)
	f.mu.Unlock()
	if err := f.MoveErr[cardID]; err != nil {
		return nil, err
	}
	return f.Moves[cardID], nil
}

func (f *FakeSource) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.MoveCall...)
}

type FakeLoader struct {
	mu      sync.Mutex
	Exports []*board.Export
	Err     error
	// Gate, when set, blocks each Load until a value is received.
	Gate  chan struct{}
	calls int
}

func (f *FakeLoader) Load(ctx context.Context) (*board.Export, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	gate := f.Gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.Err != nil {
		return nil, f.Err
	}
	if i >= len(f.Exports) {
		i = len(f.Exports) - 1
	}
	return f.Exports[i], nil
}

type MemoryStore struct {
	Saved   *board.Export
	SaveErr error
}

func (m *MemoryStore) SaveSnapshot(export *board.Export) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.Saved = export
	return nil
}

func (m *MemoryStore) LoadSnapshot(ctx context.Context) (*board.Export, error) {
	if m.Saved == nil {
		return nil, context.Canceled
	}
	return m.Saved, nil
}
