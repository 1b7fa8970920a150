// Package board holds the raw data assembled from the upstream board API.
// It is the only state that outlives a single refresh.
package board

import (
	"time"

	"github.com/felixgeelhaar/farol/pkg/domain/analytics"
	"github.com/felixgeelhaar/farol/pkg/domain/movement"
)

// Card is a card's static fields plus its list-move history.
type Card struct {
	ID           string                `json:"id"`
	BoardID      string                `json:"board_id"`
	Name         string                `json:"name"`
	List         string                `json:"list"`
	Assignees    []string              `json:"assignees,omitempty"`
	Labels       []string              `json:"labels,omitempty"`
	Due          *time.Time            `json:"due,omitempty"`
	LastActivity time.Time             `json:"last_activity"`
	URL          string                `json:"url,omitempty"`
	Events       []movement.StageEvent `json:"events,omitempty"`
	// EventsLoaded is false when the history was skipped or failed to load.
	EventsLoaded bool `json:"events_loaded"`
}

// WorkItem returns the card's static fields as an unenriched work item.
func (c Card) WorkItem() analytics.WorkItem {
	return analytics.WorkItem{
		ID:           c.ID,
		BoardID:      c.BoardID,
		Name:         c.Name,
		Stage:        c.List,
		Assignees:    c.Assignees,
		Due:          c.Due,
		LastActivity: c.LastActivity,
		URL:          c.URL,
	}
}

// Export is a fully assembled fetch of every configured board.
type Export struct {
	FetchedAt time.Time `json:"fetched_at"`
	Boards    []string  `json:"boards"`
	Cards     []Card    `json:"cards"`
}
