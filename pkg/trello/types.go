package trello

import (
	"time"

	"github.com/felixgeelhaar/farol/pkg/domain/movement"
)

// ActionUpdateCard is the action type Trello records for list moves.
const ActionUpdateCard = "updateCard"

// List is a board column.
type List struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Closed bool   `json:"closed"`
}

// Label is a card label.
type Label struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Card is a board card with the fields the dashboard reads.
type Card struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	IDList           string     `json:"idList"`
	Due              *time.Time `json:"due"`
	DateLastActivity time.Time  `json:"dateLastActivity"`
	Labels           []Label    `json:"labels"`
	IDMembers        []string   `json:"idMembers"`
	ShortURL         string     `json:"shortUrl"`
}

// Member is a board member.
type Member struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
}

// ListRef is the list snapshot embedded in an action.
type ListRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ActionData carries the before/after lists of a move.
type ActionData struct {
	ListBefore *ListRef `json:"listBefore"`
	ListAfter  *ListRef `json:"listAfter"`
}

// Action is one entry of a card's audit log.
type Action struct {
	ID   string     `json:"id"`
	Type string     `json:"type"`
	Date time.Time  `json:"date"`
	Data ActionData `json:"data"`
}

// StageEvent converts a list-move action. The second result is false for
// actions that are not list moves.
func (a Action) StageEvent() (movement.StageEvent, bool) {
	if a.Type != ActionUpdateCard || a.Data.ListBefore == nil || a.Data.ListAfter == nil {
		return movement.StageEvent{}, false
	}
	return movement.StageEvent{
		OccurredAt:  a.Date,
		StageBefore: a.Data.ListBefore.Name,
		StageAfter:  a.Data.ListAfter.Name,
	}, true
}

// StageEvents converts every list move in actions, keeping their order.
func StageEvents(actions []Action) []movement.StageEvent {
	events := make([]movement.StageEvent, 0, len(actions))
	for _, a := range actions {
		if ev, ok := a.StageEvent(); ok {
			events = append(events, ev)
		}
	}
	return events
}
