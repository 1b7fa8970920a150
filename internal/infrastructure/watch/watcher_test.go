package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func startWatcher(t *testing.T, path string, onChange func(ChangeEvent)) context.CancelFunc {
	t.Helper()
	w, err := NewFSWatcher(50*time.Millisecond, onChange)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WatchFile(path); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = w.Run(ctx)
	}()

	// Give watcher time to start
	time.Sleep(50 * time.Millisecond)
	return cancel
}

func TestFSWatcher_DetectsFileWrite(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "farol.yaml")
	if err := os.WriteFile(cfg, []byte("aging_days: 7\n"), 0600); err != nil {
		t.Fatal(err)
	}

	var eventCount atomic.Int32
	var lastPath atomic.Value
	cancel := startWatcher(t, cfg, func(e ChangeEvent) {
		eventCount.Add(1)
		lastPath.Store(e.Path)
	})
	defer cancel()

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(cfg, []byte("aging_days: 9\n"), 0600); err != nil {
			t.Fatal(err)
		}
	}

	time.Sleep(300 * time.Millisecond)

	if got := eventCount.Load(); got != 1 {
		t.Errorf("expected burst to coalesce into 1 event, got %d", got)
	}
	if p, _ := lastPath.Load().(string); filepath.Base(p) != "farol.yaml" {
		t.Errorf("unexpected path %q", p)
	}
}

func TestFSWatcher_IgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "farol.yaml")

	var eventCount atomic.Int32
	cancel := startWatcher(t, cfg, func(ChangeEvent) { eventCount.Add(1) })
	defer cancel()

	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)

	if got := eventCount.Load(); got != 0 {
		t.Errorf("expected no events for unrelated files, got %d", got)
	}
}

func TestFSWatcher_DetectsCreatedFile(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "farol.yaml")

	var eventCount atomic.Int32
	cancel := startWatcher(t, cfg, func(ChangeEvent) { eventCount.Add(1) })
	defer cancel()

	if err := os.WriteFile(cfg, []byte("aging_days: 3\n"), 0600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)

	if eventCount.Load() == 0 {
		t.Error("expected an event for a file created after watching began")
	}
}

func TestFSWatcher_ContextCancellation(t *testing.T) {
	dir := t.TempDir()

	w, err := NewFSWatcher(50*time.Millisecond, func(e ChangeEvent) {})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WatchFile(filepath.Join(dir, "farol.yaml")); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("watcher did not stop after context cancellation")
	}
}

func TestNewFSWatcher_DefaultDebounce(t *testing.T) {
	w, err := NewFSWatcher(0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.watcher.Close()
	if w.debounce != DefaultDebounce {
		t.Errorf("debounce = %v", w.debounce)
	}
}
