// Package webhook delivers outgoing notifications about published snapshots.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sync"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/felixgeelhaar/farol/pkg/application"
	"github.com/felixgeelhaar/fortify/retry"
)

// Event types sent to endpoints.
const (
	EventSnapshotPublished = "snapshot.published"
	EventHealthDegraded    = "health.degraded"
	EventHealthRecovered   = "health.recovered"
)

// Endpoint is one notification target.
type Endpoint struct {
	Name   string
	URL    string
	Secret string
	// Events filters the event types delivered. Empty means all.
	Events []string
	// MinHealth is the score below which health.degraded fires.
	MinHealth  int
	MaxRetries int
	RetryDelay time.Duration
}

// Payload is the JSON body sent to endpoints.
type Payload struct {
	EventType  string    `json:"event_type"`
	Timestamp  time.Time `json:"timestamp"`
	SnapshotID string    `json:"snapshot_id"`
	Data       Summary   `json:"data"`
}

// Summary is the headline of a snapshot.
type Summary struct {
	HealthScore  int  `json:"health_score"`
	Items        int  `json:"items"`
	DoingNow     int  `json:"doing_now"`
	WaitingNow   int  `json:"waiting_now"`
	AgedNow      int  `json:"aged_now"`
	DoneToday    int  `json:"done_today"`
	DoneThisWeek int  `json:"done_this_week"`
	BypassRate   int  `json:"bypass_rate"`
	LeadAverage  *int `json:"lead_average,omitempty"`
}

func summarize(snap *application.Snapshot) Summary {
	m := snap.Metrics
	return Summary{
		HealthScore:  m.HealthScore,
		Items:        m.TotalItems,
		DoingNow:     len(m.DoingNow),
		WaitingNow:   len(m.WaitingNow),
		AgedNow:      len(m.AgedNow),
		DoneToday:    len(m.DoneToday),
		DoneThisWeek: len(m.DoneThisWeek),
		BypassRate:   m.BypassRate,
		LeadAverage:  m.LeadAverage,
	}
}

// Notifier posts snapshot events to the configured endpoints.
type Notifier struct {
	endpoints  []Endpoint
	client     *http.Client
	deadLetter *DeadLetterStore
	logger     *charmlog.Logger

	mu         sync.Mutex
	lastHealth *int
	wg         sync.WaitGroup
}

// NewNotifier creates a notifier. deadLetter may be nil.
func NewNotifier(endpoints []Endpoint, deadLetter *DeadLetterStore, logger *charmlog.Logger) *Notifier {
	return &Notifier{
		endpoints:  endpoints,
		client:     &http.Client{Timeout: 10 * time.Second},
		deadLetter: deadLetter,
		logger:     logger,
	}
}

// Observe derives events from a published snapshot and delivers them in the
// background.
func (n *Notifier) Observe(ctx context.Context, snap *application.Snapshot) {
	n.mu.Lock()
	prev := n.lastHealth
	score := snap.Metrics.HealthScore
	n.lastHealth = &score
	n.mu.Unlock()

	summary := summarize(snap)
	for _, ep := range n.endpoints {
		types := []string{EventSnapshotPublished}
		if ep.MinHealth > 0 {
			switch {
			case score < ep.MinHealth && (prev == nil || *prev >= ep.MinHealth):
				types = append(types, EventHealthDegraded)
			case score >= ep.MinHealth && prev != nil && *prev < ep.MinHealth:
				types = append(types, EventHealthRecovered)
			}
		}
		for _, t := range types {
			if !matches(ep, t) {
				continue
			}
			body, err := json.Marshal(Payload{
				EventType:  t,
				Timestamp:  snap.GeneratedAt,
				SnapshotID: snap.ID,
				Data:       summary,
			})
			if err != nil {
				n.logger.Error("failed to encode notification", "err", err)
				continue
			}
			n.wg.Add(1)
			go func() {
				defer n.wg.Done()
				n.deliver(ctx, ep, t, body)
			}()
		}
	}
}

// Wait blocks until every in-flight delivery has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func matches(ep Endpoint, eventType string) bool {
	return len(ep.Events) == 0 || slices.Contains(ep.Events, eventType)
}

func (n *Notifier) deliver(ctx context.Context, ep Endpoint, eventType string, body []byte) {
	attempts := ep.MaxRetries
	if attempts <= 0 {
		attempts = 3
	}
	delay := ep.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}

	retryer := retry.New[struct{}](retry.Config{
		MaxAttempts:   attempts,
		InitialDelay:  delay,
		BackoffPolicy: retry.BackoffExponential,
	})
	_, err := retryer.Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, n.send(ctx, ep, body)
	})
	if err == nil {
		n.logger.Debug("notification delivered", "endpoint", ep.Name, "event", eventType)
		return
	}

	n.logger.Warn("notification failed", "endpoint", ep.Name, "event", eventType, "attempts", attempts, "err", err)
	if n.deadLetter == nil {
		return
	}
	if err := n.deadLetter.Append(DeadLetter{
		Timestamp: time.Now(),
		Endpoint:  ep.Name,
		URL:       ep.URL,
		EventType: eventType,
		Payload:   string(body),
		Error:     err.Error(),
		Attempts:  attempts,
	}); err != nil {
		n.logger.Error("failed to record dead letter", "err", err)
	}
}

func (n *Notifier) send(ctx context.Context, ep Endpoint, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "farol-notify/1.0")
	if ep.Secret != "" {
		req.Header.Set("X-Farol-Signature", Sign(body, ep.Secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the X-Farol-Signature header value for body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
