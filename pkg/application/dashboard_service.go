package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/felixgeelhaar/farol/pkg/domain/analytics"
	"github.com/felixgeelhaar/farol/pkg/domain/board"
	"github.com/felixgeelhaar/farol/pkg/domain/movement"
	"github.com/felixgeelhaar/farol/pkg/domain/stage"
	"github.com/google/uuid"
)

// Loader produces a fresh board export.
type Loader interface {
	Load(ctx context.Context) (*board.Export, error)
}

// SnapshotStore persists the last good export. Optional.
type SnapshotStore interface {
	SaveSnapshot(export *board.Export) error
	LoadSnapshot(ctx context.Context) (*board.Export, error)
}

// Snapshot is one immutable render-ready view of the boards.
type Snapshot struct {
	ID          string                     `json:"id"`
	Seq         uint64                     `json:"seq"`
	GeneratedAt time.Time                  `json:"generated_at"`
	FetchedAt   time.Time                  `json:"fetched_at"`
	Items       []analytics.WorkItem       `json:"items"`
	Metrics     analytics.DashboardMetrics `json:"metrics"`
}

// Threshold returns the aging threshold the snapshot was computed with.
func (s *Snapshot) Threshold() int {
	return s.Metrics.AgingThresholdDays
}

// DashboardService runs fetch, reduce and aggregate, and keeps the latest
// accepted snapshot.
type DashboardService struct {
	loader Loader
	store  SnapshotStore
	logger *charmlog.Logger
	now    func() time.Time
	fsm    *refreshMachine

	mu          sync.RWMutex
	agg         *analytics.Aggregator
	issued      uint64
	accepted    uint64
	export      *board.Export
	current     *Snapshot
	lastErr     error
	subscribers map[int]func(*Snapshot)
	nextSubID   int
}

// NewDashboardService wires the pipeline. store may be nil.
func NewDashboardService(loader Loader, store SnapshotStore, agg *analytics.Aggregator, logger *charmlog.Logger) (*DashboardService, error) {
	fsm, err := newRefreshMachine()
	if err != nil {
		return nil, err
	}
	return &DashboardService{
		loader:      loader,
		store:       store,
		agg:         agg,
		logger:      logger,
		now:         time.Now,
		fsm:         fsm,
		subscribers: make(map[int]func(*Snapshot)),
	}, nil
}

// State returns the refresh lifecycle state.
func (s *DashboardService) State() string {
	return s.fsm.current()
}

// Classification returns the stage mapping snapshots are computed with.
func (s *DashboardService) Classification() stage.Classification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agg.Classification()
}

// LastError returns the error of the most recent failed refresh, if the
// service is in the failed state.
func (s *DashboardService) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Refresh fetches fresh data and publishes a new snapshot. When a newer
// refresh has already been accepted the result is discarded and
// ErrStaleRefresh is returned.
func (s *DashboardService) Refresh(ctx context.Context) (*Snapshot, error) {
	seq := s.begin()

	export, err := s.loader.Load(ctx)
	if err != nil {
		s.fail(seq, err)
		return nil, fmt.Errorf("refresh: %w", err)
	}

	snap, err := s.accept(seq, export)
	if err != nil {
		return nil, err
	}

	if s.store != nil {
		if err := s.store.SaveSnapshot(export); err != nil {
			s.logger.Warn("failed to save snapshot", "err", err)
		}
	}
	return snap, nil
}

// LoadSaved publishes the export stored by a previous run.
func (s *DashboardService) LoadSaved(ctx context.Context) (*Snapshot, error) {
	if s.store == nil {
		return nil, ErrNoSnapshot
	}
	seq := s.begin()

	export, err := s.store.LoadSnapshot(ctx)
	if err != nil {
		s.fail(seq, err)
		return nil, fmt.Errorf("load saved snapshot: %w", err)
	}
	return s.accept(seq, export)
}

// Current returns the latest accepted snapshot.
func (s *DashboardService) Current() (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, ErrNoSnapshot
	}
	return s.current, nil
}

// View recomputes metrics from the latest export with the given aging
// threshold as of now. It does not refetch and does not replace the current
// snapshot.
func (s *DashboardService) View(threshold int) (*Snapshot, error) {
	s.mu.RLock()
	export, agg, seq := s.export, s.agg, s.accepted
	s.mu.RUnlock()
	if export == nil {
		return nil, ErrNoSnapshot
	}
	return build(agg, export, seq, s.now(), threshold), nil
}

// Reconfigure swaps the aggregator and republishes the latest export under
// it. Used when the stage mapping or limits change at runtime.
func (s *DashboardService) Reconfigure(agg *analytics.Aggregator) {
	s.mu.Lock()
	s.agg = agg
	export, seq := s.export, s.accepted
	if export == nil {
		s.mu.Unlock()
		return
	}
	snap := build(agg, export, seq, s.now(), 0)
	s.current = snap
	subs := s.subscriberList()
	s.mu.Unlock()

	s.logger.Info("dashboard reconfigured", "snapshot", snap.ID)
	notify(subs, snap)
}

// Subscribe registers fn for every published snapshot. The returned function
// unregisters it.
func (s *DashboardService) Subscribe(fn func(*Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// Run refreshes on every tick until ctx is done. Failures are logged and the
// previous snapshot stays in place.
func (s *DashboardService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Refresh(ctx); err != nil && !errors.Is(err, ErrStaleRefresh) && ctx.Err() == nil {
				s.logger.Error("scheduled refresh failed", "err", err)
			}
		}
	}
}

func (s *DashboardService) begin() uint64 {
	s.mu.Lock()
	s.issued++
	seq := s.issued
	s.mu.Unlock()

	if s.fsm.current() != RefreshLoading {
		s.fsm.send(eventFetch)
	}
	return seq
}

func (s *DashboardService) fail(seq uint64, err error) {
	s.mu.Lock()
	latest := seq == s.issued
	if latest {
		s.lastErr = err
	}
	s.mu.Unlock()

	if latest {
		s.fsm.send(eventFailed)
	}
	s.logger.Error("refresh failed", "seq", seq, "err", err)
}

func (s *DashboardService) accept(seq uint64, export *board.Export) (*Snapshot, error) {
	s.mu.Lock()
	if seq < s.accepted {
		s.mu.Unlock()
		s.logger.Debug("discarding stale refresh", "seq", seq, "accepted", s.accepted)
		return nil, ErrStaleRefresh
	}
	snap := build(s.agg, export, seq, s.now(), 0)
	s.export = export
	s.current = snap
	s.accepted = seq
	latest := seq == s.issued
	if latest {
		s.lastErr = nil
	}
	subs := s.subscriberList()
	s.mu.Unlock()

	if latest {
		s.fsm.send(eventLoaded)
	}
	s.logger.Info("snapshot published",
		"snapshot", snap.ID,
		"items", len(snap.Items),
		"health", snap.Metrics.HealthScore)
	notify(subs, snap)
	return snap, nil
}

func (s *DashboardService) subscriberList() []func(*Snapshot) {
	subs := make([]func(*Snapshot), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	return subs
}

func notify(subs []func(*Snapshot), snap *Snapshot) {
	for _, fn := range subs {
		fn(snap)
	}
}

// build enriches every card and aggregates the result.
func build(agg *analytics.Aggregator, export *board.Export, seq uint64, now time.Time, threshold int) *Snapshot {
	cls := agg.Classification()
	items := make([]analytics.WorkItem, 0, len(export.Cards))
	for _, card := range export.Cards {
		if cls.Ignored(card.List) {
			continue
		}
		summary := movement.Reduce(card.Events, cls)
		items = append(items, analytics.Enrich(card.WorkItem(), summary, now))
	}

	return &Snapshot{
		ID:          uuid.NewString(),
		Seq:         seq,
		GeneratedAt: now,
		FetchedAt:   export.FetchedAt,
		Items:       items,
		Metrics:     agg.Aggregate(items, now, threshold, analytics.WeekRange(now)),
	}
}
