// Package webhook receives Trello webhook callbacks and turns board activity
// into refresh requests.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	charmlog "github.com/charmbracelet/log"
)

const (
	maxBody      = 1 << 20
	recentEvents = 100
)

// Event is one board action reported by the upstream.
type Event struct {
	Provider   string    `json:"provider"`
	ActionID   string    `json:"action_id"`
	ActionType string    `json:"action_type"`
	BoardID    string    `json:"board_id,omitempty"`
	CardID     string    `json:"card_id,omitempty"`
	CardName   string    `json:"card_name,omitempty"`
	ListBefore string    `json:"list_before,omitempty"`
	ListAfter  string    `json:"list_after,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Handler verifies and decodes callbacks from a specific provider.
type Handler interface {
	Provider() string
	ValidateSignature(body []byte, signature string) bool
	SignatureHeader() string
	ParseEvent(body []byte) (*Event, error)
}

// EventProcessor reacts to verified events.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, event *Event) error
}

// ProcessorFunc adapts a function to EventProcessor.
type ProcessorFunc func(ctx context.Context, event *Event) error

func (f ProcessorFunc) ProcessEvent(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// Receiver is the http.Handler for one provider's callback endpoint.
type Receiver struct {
	handler   Handler
	processor EventProcessor
	logger    *charmlog.Logger

	mu     sync.RWMutex
	events []Event
}

// NewReceiver creates a receiver. processor may be nil.
func NewReceiver(handler Handler, processor EventProcessor, logger *charmlog.Logger) *Receiver {
	return &Receiver{
		handler:   handler,
		processor: processor,
		logger:    logger,
		events:    make([]Event, 0, recentEvents),
	}
}

func (rc *Receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodHead:
		// Trello probes the callback URL with HEAD when a webhook is created.
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodGet:
		rc.handleRecent(w)
		return
	case http.MethodPost:
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	provider := rc.handler.Provider()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if !rc.handler.ValidateSignature(body, r.Header.Get(rc.handler.SignatureHeader())) {
		rc.logger.Warn("invalid webhook signature", "provider", provider)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	event, err := rc.handler.ParseEvent(body)
	if err != nil {
		rc.logger.Warn("failed to parse webhook", "provider", provider, "err", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rc.storeEvent(event)

	if rc.processor != nil {
		if err := rc.processor.ProcessEvent(r.Context(), event); err != nil {
			rc.logger.Error("failed to process webhook", "provider", provider, "action", event.ActionType, "err", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	rc.logger.Debug("webhook processed", "provider", provider, "action", event.ActionType, "card", event.CardID)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (rc *Receiver) handleRecent(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rc.RecentEvents())
}

func (rc *Receiver) storeEvent(event *Event) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if len(rc.events) >= recentEvents {
		rc.events = rc.events[1:]
	}
	rc.events = append(rc.events, *event)
}

// RecentEvents returns the last verified events, oldest first.
func (rc *Receiver) RecentEvents() []Event {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	events := make([]Event, len(rc.events))
	copy(events, rc.events)
	return events
}
