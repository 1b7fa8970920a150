package sse_test

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/farol/internal/infrastructure/sse"
	"github.com/felixgeelhaar/farol/pkg/application"
	"github.com/felixgeelhaar/farol/pkg/domain/analytics"
)

type fakeNotifier struct {
	mu   sync.Mutex
	subs []func(*application.Snapshot)
}

func (f *fakeNotifier) Subscribe(fn func(*application.Snapshot)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, fn)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.subs = nil
	}
}

func (f *fakeNotifier) publish(s *application.Snapshot) {
	f.mu.Lock()
	subs := append([]func(*application.Snapshot){}, f.subs...)
	f.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}

func TestSSEHandler_StreamsSnapshots(t *testing.T) {
	notifier := &fakeNotifier{}
	handler := sse.NewSSEHandler(notifier)
	defer handler.Close()

	server := httptest.NewServer(handler)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Errorf("expected text/event-stream, got %s", resp.Header.Get("Content-Type"))
	}

	for handler.Clients() == 0 && ctx.Err() == nil {
		time.Sleep(time.Millisecond)
	}
	notifier.publish(&application.Snapshot{
		ID:      "snap-7",
		Items:   make([]analytics.WorkItem, 3),
		Metrics: analytics.DashboardMetrics{HealthScore: 81},
	})

	var lines []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" && len(lines) > 0 {
			break
		}
		lines = append(lines, line)
	}

	got := strings.Join(lines, "\n")
	for _, want := range []string{"id: snap-7", "event: snapshot", `"health_score":81`, `"items":3`} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in stream, got:\n%s", want, got)
		}
	}
}

func TestSSEHandler_Close(t *testing.T) {
	notifier := &fakeNotifier{}
	handler := sse.NewSSEHandler(notifier)
	handler.Close()

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.subs) != 0 {
		t.Error("Close should unsubscribe")
	}
}
