package application

import (
	"context"
	"fmt"
	"sort"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/felixgeelhaar/farol/pkg/domain/board"
	"github.com/felixgeelhaar/farol/pkg/domain/stage"
	"github.com/felixgeelhaar/farol/pkg/trello"
	"github.com/sourcegraph/conc/pool"
)

// BoardSource is the subset of the Trello API the dashboard reads.
type BoardSource interface {
	BoardLists(ctx context.Context, boardID string) ([]trello.List, error)
	BoardCards(ctx context.Context, boardID string) ([]trello.Card, error)
	BoardMembers(ctx context.Context, boardID string) ([]trello.Member, error)
	CardMoves(ctx context.Context, cardID string) ([]trello.Action, error)
}

// BoardOptions tunes how boards are loaded.
type BoardOptions struct {
	Boards []string
	// MaxActionCards caps how many cards get their history fetched, most
	// recently active first. Zero means no cap.
	MaxActionCards int
	// Concurrency bounds parallel history fetches. Zero means one at a time.
	Concurrency int
}

// BoardService assembles a board.Export from the upstream API.
type BoardService struct {
	source BoardSource
	cls    stage.Classification
	opts   BoardOptions
	logger *charmlog.Logger
	now    func() time.Time
}

// NewBoardService creates a board loader.
func NewBoardService(source BoardSource, cls stage.Classification, opts BoardOptions, logger *charmlog.Logger) *BoardService {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &BoardService{
		source: source,
		cls:    cls,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// Load fetches every configured board. A failing board-level call fails the
// whole load; a failing card history is logged and the card is kept
// without events.
func (s *BoardService) Load(ctx context.Context) (*board.Export, error) {
	if len(s.opts.Boards) == 0 {
		return nil, ErrNoBoards
	}

	export := &board.Export{Boards: append([]string(nil), s.opts.Boards...)}
	for _, boardID := range s.opts.Boards {
		cards, err := s.loadBoard(ctx, boardID)
		if err != nil {
			return nil, fmt.Errorf("load board %s: %w", boardID, err)
		}
		export.Cards = append(export.Cards, cards...)
	}

	if err := s.loadMoves(ctx, export.Cards); err != nil {
		return nil, err
	}

	export.FetchedAt = s.now()
	s.logger.Info("boards loaded", "boards", len(export.Boards), "cards", len(export.Cards))
	return export, nil
}

func (s *BoardService) loadBoard(ctx context.Context, boardID string) ([]board.Card, error) {
	var (
		lists   []trello.List
		cards   []trello.Card
		members []trello.Member
	)

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) (err error) {
		lists, err = s.source.BoardLists(ctx, boardID)
		return err
	})
	p.Go(func(ctx context.Context) (err error) {
		cards, err = s.source.BoardCards(ctx, boardID)
		return err
	})
	p.Go(func(ctx context.Context) (err error) {
		members, err = s.source.BoardMembers(ctx, boardID)
		return err
	})
	if err := p.Wait(); err != nil {
		return nil, err
	}

	listByID := make(map[string]string, len(lists))
	for _, l := range lists {
		listByID[l.ID] = l.Name
	}
	memberByID := make(map[string]string, len(members))
	for _, m := range members {
		memberByID[m.ID] = m.FullName
	}

	out := make([]board.Card, 0, len(cards))
	for _, c := range cards {
		list := listByID[c.IDList]
		if s.cls.Ignored(list) {
			continue
		}

		var assignees []string
		for _, id := range c.IDMembers {
			if name := memberByID[id]; name != "" {
				assignees = append(assignees, name)
			}
		}
		var labels []string
		for _, l := range c.Labels {
			if l.Name != "" {
				labels = append(labels, l.Name)
			}
		}

		out = append(out, board.Card{
			ID:           c.ID,
			BoardID:      boardID,
			Name:         c.Name,
			List:         list,
			Assignees:    assignees,
			Labels:       labels,
			Due:          c.Due,
			LastActivity: c.DateLastActivity,
			URL:          c.ShortURL,
		})
	}

	s.logger.Debug("board fetched", "board", boardID, "lists", len(lists), "cards", len(out))
	return out, nil
}

// loadMoves fills in card histories in place.
func (s *BoardService) loadMoves(ctx context.Context, cards []board.Card) error {
	selected := s.selectForMoves(cards)

	p := pool.New().WithMaxGoroutines(s.opts.Concurrency)
	for _, idx := range selected {
		card := &cards[idx]
		p.Go(func() {
			actions, err := s.source.CardMoves(ctx, card.ID)
			if err != nil {
				s.logger.Warn("ignoring card history", "card", card.ID, "name", card.Name, "err", err)
				return
			}
			card.Events = trello.StageEvents(actions)
			card.EventsLoaded = true
		})
	}
	p.Wait()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("load card history: %w", err)
	}
	if skipped := len(cards) - len(selected); skipped > 0 {
		s.logger.Info("card history capped", "fetched", len(selected), "skipped", skipped)
	}
	return nil
}

// selectForMoves returns the indexes of cards whose history is fetched.
func (s *BoardService) selectForMoves(cards []board.Card) []int {
	idx := make([]int, len(cards))
	for i := range cards {
		idx[i] = i
	}
	if s.opts.MaxActionCards <= 0 || len(cards) <= s.opts.MaxActionCards {
		return idx
	}

	sort.SliceStable(idx, func(a, b int) bool {
		return cards[idx[a]].LastActivity.After(cards[idx[b]].LastActivity)
	})
	idx = idx[:s.opts.MaxActionCards]
	sort.Ints(idx)
	return idx
}
