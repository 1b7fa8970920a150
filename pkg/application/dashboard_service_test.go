package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/farol/pkg/application"
	"github.com/felixgeelhaar/farol/pkg/domain/analytics"
	"github.com/felixgeelhaar/farol/pkg/domain/board"
	"github.com/felixgeelhaar/farol/pkg/domain/movement"
)

func sampleExport(names ...string) *board.Export {
	export := &board.Export{FetchedAt: time.Now(), Boards: []string{"b1"}}
	for i, n := range names {
		export.Cards = append(export.Cards, board.Card{
			ID:           n,
			Name:         n,
			List:         "FAZENDO",
			LastActivity: time.Now().Add(-time.Duration(i) * 24 * time.Hour),
			EventsLoaded: true,
			Events: []movement.StageEvent{
				{OccurredAt: time.Now().Add(-10 * 24 * time.Hour), StageBefore: "A FAZER", StageAfter: "FAZENDO"},
			},
		})
	}
	export.Cards = append(export.Cards, board.Card{ID: "ref", List: "REFERÊNCIAS"})
	return export
}

func newDashboard(t *testing.T, loader application.Loader, store application.SnapshotStore) *application.DashboardService {
	t.Helper()
	agg := analytics.NewAggregator(testClassification(), analytics.Options{})
	svc, err := application.NewDashboardService(loader, store, agg, quietLogger())
	if err != nil {
		t.Fatalf("NewDashboardService: %v", err)
	}
	return svc
}

func TestDashboardService_Refresh(t *testing.T) {
	store := &MemoryStore{}
	svc := newDashboard(t, &FakeLoader{Exports: []*board.Export{sampleExport("a", "b")}}, store)

	if svc.State() != application.RefreshIdle {
		t.Fatalf("initial state = %s", svc.State())
	}
	if _, err := svc.Current(); !errors.Is(err, application.ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot before first refresh, got %v", err)
	}

	snap, err := svc.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if snap.ID == "" || snap.Seq != 1 {
		t.Errorf("unexpected snapshot identity: %s/%d", snap.ID, snap.Seq)
	}
	if len(snap.Items) != 2 {
		t.Fatalf("ignored cards must not become items, got %d", len(snap.Items))
	}
	if snap.Metrics.TotalItems != 2 || len(snap.Metrics.DoingNow) != 2 {
		t.Errorf("unexpected metrics: %+v", snap.Metrics)
	}
	if snap.Threshold() != analytics.DefaultAgingThresholdDays {
		t.Errorf("threshold = %d", snap.Threshold())
	}
	if svc.State() != application.RefreshReady {
		t.Errorf("state = %s, want ready", svc.State())
	}
	if store.Saved == nil {
		t.Error("export not persisted")
	}

	cur, _ := svc.Current()
	if cur != snap {
		t.Error("Current should return the published snapshot")
	}
}

func TestDashboardService_RefreshFailureKeepsPrevious(t *testing.T) {
	loader := &FakeLoader{Exports: []*board.Export{sampleExport("a")}}
	svc := newDashboard(t, loader, nil)

	first, err := svc.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	loader.Err = errors.New("HTTP 503")
	if _, err := svc.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if svc.State() != application.RefreshFailed {
		t.Errorf("state = %s, want failed", svc.State())
	}
	if svc.LastError() == nil {
		t.Error("LastError not recorded")
	}

	cur, err := svc.Current()
	if err != nil || cur != first {
		t.Error("failed refresh must keep the previous snapshot")
	}

	loader.Err = nil
	if _, err := svc.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if svc.State() != application.RefreshReady || svc.LastError() != nil {
		t.Errorf("recovery not reflected: %s %v", svc.State(), svc.LastError())
	}
}

func TestDashboardService_LastWriteWins(t *testing.T) {
	gate := make(chan struct{})
	loader := &FakeLoader{Exports: []*board.Export{sampleExport("old"), sampleExport("new1", "new2")}, Gate: gate}
	svc := newDashboard(t, loader, nil)

	var (
		wg       sync.WaitGroup
		firstErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = svc.Refresh(context.Background())
	}()

	// Wait until the first refresh is parked on the gate.
	deadline := time.Now().Add(time.Second)
	for svc.State() != application.RefreshLoading && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	secondDone := make(chan error, 1)
	go func() {
		_, err := svc.Refresh(context.Background())
		secondDone <- err
	}()

	// Both loads block on the gate; release them one at a time. The call
	// order of Load decides which export each refresh receives, so the
	// later-issued refresh must end up current either way.
	gate <- struct{}{}
	gate <- struct{}{}
	wg.Wait()
	secondErr := <-secondDone

	if firstErr != nil && !errors.Is(firstErr, application.ErrStaleRefresh) {
		t.Fatalf("unexpected first error: %v", firstErr)
	}
	if secondErr != nil && !errors.Is(secondErr, application.ErrStaleRefresh) {
		t.Fatalf("unexpected second error: %v", secondErr)
	}

	cur, err := svc.Current()
	if err != nil {
		t.Fatal(err)
	}
	if cur.Seq != 2 {
		t.Errorf("current snapshot seq = %d, want the latest issued refresh", cur.Seq)
	}
	if svc.State() != application.RefreshReady {
		t.Errorf("state = %s", svc.State())
	}
}

func TestDashboardService_View(t *testing.T) {
	svc := newDashboard(t, &FakeLoader{Exports: []*board.Export{sampleExport("a", "b", "c")}}, nil)

	if _, err := svc.View(3); !errors.Is(err, application.ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}

	snap, err := svc.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	// Cards last moved 10 days ago are aged under both thresholds.
	view, err := svc.View(1)
	if err != nil {
		t.Fatal(err)
	}
	if view.Threshold() != 1 || len(view.Metrics.AgedNow) != 3 {
		t.Errorf("unexpected view: threshold=%d aged=%d", view.Threshold(), len(view.Metrics.AgedNow))
	}

	view, _ = svc.View(30)
	if len(view.Metrics.AgedNow) != 0 {
		t.Errorf("nothing should be aged at 30 days, got %d", len(view.Metrics.AgedNow))
	}

	cur, _ := svc.Current()
	if cur != snap {
		t.Error("View must not replace the current snapshot")
	}
}

func TestDashboardService_Subscribe(t *testing.T) {
	svc := newDashboard(t, &FakeLoader{Exports: []*board.Export{sampleExport("a")}}, nil)

	var got []*application.Snapshot
	unsubscribe := svc.Subscribe(func(s *application.Snapshot) { got = append(got, s) })

	if _, err := svc.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(got))
	}

	unsubscribe()
	if _, err := svc.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("unsubscribed listener still notified")
	}
}

func TestDashboardService_LoadSaved(t *testing.T) {
	store := &MemoryStore{Saved: sampleExport("cached")}
	svc := newDashboard(t, &FakeLoader{Err: errors.New("offline")}, store)

	snap, err := svc.LoadSaved(context.Background())
	if err != nil {
		t.Fatalf("LoadSaved: %v", err)
	}
	if len(snap.Items) != 1 || snap.Items[0].Name != "cached" {
		t.Errorf("unexpected items %+v", snap.Items)
	}

	noStore := newDashboard(t, &FakeLoader{}, nil)
	if _, err := noStore.LoadSaved(context.Background()); !errors.Is(err, application.ErrNoSnapshot) {
		t.Errorf("expected ErrNoSnapshot without a store, got %v", err)
	}
}

func TestDashboardService_Reconfigure(t *testing.T) {
	svc := newDashboard(t, &FakeLoader{Exports: []*board.Export{sampleExport("a")}}, nil)
	if _, err := svc.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	notified := 0
	svc.Subscribe(func(*application.Snapshot) { notified++ })

	svc.Reconfigure(analytics.NewAggregator(testClassification(), analytics.Options{AgingThresholdDays: 20}))

	cur, _ := svc.Current()
	if cur.Threshold() != 20 || len(cur.Metrics.AgedNow) != 0 {
		t.Errorf("reconfigured snapshot not published: threshold=%d", cur.Threshold())
	}
	if notified != 1 {
		t.Errorf("expected subscribers to be notified, got %d", notified)
	}
}

func TestDashboardService_Run(t *testing.T) {
	loader := &FakeLoader{Exports: []*board.Export{sampleExport("a")}}
	svc := newDashboard(t, loader, nil)

	ctx, cancel := context.WithCancel(context.Background())
	refreshed := make(chan struct{}, 1)
	svc.Subscribe(func(*application.Snapshot) {
		select {
		case refreshed <- struct{}{}:
		default:
		}
	})

	done := make(chan struct{})
	go func() {
		svc.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	select {
	case <-refreshed:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled refresh never ran")
	}
	cancel()
	<-done
}
