// Package sse streams dashboard snapshot notifications via Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/felixgeelhaar/farol/pkg/application"
)

// Notifier publishes snapshots to subscribers.
type Notifier interface {
	Subscribe(fn func(*application.Snapshot)) func()
}

// Message is the data payload of a snapshot event.
type Message struct {
	SnapshotID  string    `json:"snapshot_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Items       int       `json:"items"`
	HealthScore int       `json:"health_score"`
	Aged        int       `json:"aged"`
}

// SSEHandler streams snapshot events via Server-Sent Events.
type SSEHandler struct {
	mu          sync.RWMutex
	clients     map[chan *application.Snapshot]struct{}
	unsubscribe func()
}

// NewSSEHandler creates a new SSE handler subscribed to the notifier.
func NewSSEHandler(notifier Notifier) *SSEHandler {
	h := &SSEHandler{
		clients: make(map[chan *application.Snapshot]struct{}),
	}

	h.unsubscribe = notifier.Subscribe(func(snap *application.Snapshot) {
		h.mu.RLock()
		defer h.mu.RUnlock()
		for ch := range h.clients {
			select {
			case ch <- snap:
			default:
				// Drop if client is slow
			}
		}
	})

	return h
}

// Close detaches the handler from its notifier.
func (h *SSEHandler) Close() {
	h.unsubscribe()
}

// Clients returns the number of connected streams.
func (h *SSEHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP handles SSE connections.
func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := make(chan *application.Snapshot, 16)

	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, ch)
		h.mu.Unlock()
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-ch:
			data, err := json.Marshal(NewMessage(snap))
			if err != nil {
				continue
			}
			_, _ = fmt.Fprintf(w, "id: %s\n", snap.ID)
			_, _ = fmt.Fprintf(w, "event: snapshot\n")
			_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// NewMessage summarizes a snapshot for the stream.
func NewMessage(snap *application.Snapshot) Message {
	return Message{
		SnapshotID:  snap.ID,
		GeneratedAt: snap.GeneratedAt,
		Items:       len(snap.Items),
		HealthScore: snap.Metrics.HealthScore,
		Aged:        len(snap.Metrics.AgedNow),
	}
}
