package analytics

import (
	"math"
	"time"

	"github.com/felixgeelhaar/farol/pkg/domain/movement"
)

const dayDuration = 24 * time.Hour

// WorkItem is a card enriched with its movement summary and derived ages.
type WorkItem struct {
	ID           string           `json:"id"`
	BoardID      string           `json:"board_id,omitempty"`
	Name         string           `json:"name"`
	Stage        string           `json:"stage"`
	Assignees    []string         `json:"assignees,omitempty"`
	Due          *time.Time       `json:"due,omitempty"`
	LastActivity time.Time        `json:"last_activity"`
	URL          string           `json:"url,omitempty"`
	Movement     movement.Summary `json:"movement"`
	// LeadDays is set only when both the doing and done entries are known.
	LeadDays  *int `json:"lead_days,omitempty"`
	AgingDays int  `json:"aging_days"`
}

// Enrich attaches a movement summary to item and derives lead and aging days
// relative to now.
func Enrich(item WorkItem, summary movement.Summary, now time.Time) WorkItem {
	item.Movement = summary
	item.LeadDays = nil
	if summary.FirstEnteredDoing != nil && summary.FirstEnteredDone != nil {
		lead := DiffDays(*summary.FirstEnteredDoing, *summary.FirstEnteredDone)
		item.LeadDays = &lead
	}
	item.AgingDays = item.AgingAt(now)
	return item
}

// AgingAt returns the whole days between the item's last move (or last
// activity when no move was observed) and now. Items with no reference
// time age zero days.
func (w WorkItem) AgingAt(now time.Time) int {
	ref := w.LastActivity
	if w.Movement.LastMoveAt != nil {
		ref = *w.Movement.LastMoveAt
	}
	if ref.IsZero() {
		return 0
	}
	return DiffDays(ref, now)
}

// Finished reports whether the item ever entered done.
func (w WorkItem) Finished() bool {
	return w.Movement.Finished()
}

// DiffDays returns (b - a) in days, rounded half up.
func DiffDays(a, b time.Time) int {
	return roundHalfUp(float64(b.Sub(a)) / float64(dayDuration))
}

func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
