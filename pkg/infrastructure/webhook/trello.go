package webhook

import (
	"crypto/hmac"
	"crypto/sha1" // #nosec G505 -- Trello signs callbacks with HMAC-SHA1
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// TrelloHandler verifies and decodes Trello webhook callbacks.
type TrelloHandler struct {
	secret      string
	callbackURL string
}

// NewTrelloHandler creates a handler. With an empty secret every callback is
// accepted; otherwise callbackURL must be the URL registered with Trello.
func NewTrelloHandler(secret, callbackURL string) *TrelloHandler {
	return &TrelloHandler{secret: secret, callbackURL: callbackURL}
}

func (h *TrelloHandler) Provider() string { return "trello" }

func (h *TrelloHandler) SignatureHeader() string { return "X-Trello-Webhook" }

// ValidateSignature checks base64(HMAC-SHA1(secret, body + callbackURL)).
func (h *TrelloHandler) ValidateSignature(body []byte, signature string) bool {
	if h.secret == "" {
		return true
	}
	if signature == "" {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(Sign(h.secret, h.callbackURL, body)))
}

// Sign computes the Trello callback signature.
func Sign(secret, callbackURL string, body []byte) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	mac.Write([]byte(callbackURL))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type trelloPayload struct {
	Action struct {
		ID   string    `json:"id"`
		Type string    `json:"type"`
		Date time.Time `json:"date"`
		Data struct {
			Board struct {
				ID string `json:"id"`
			} `json:"board"`
			Card struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"card"`
			ListBefore struct {
				Name string `json:"name"`
			} `json:"listBefore"`
			ListAfter struct {
				Name string `json:"name"`
			} `json:"listAfter"`
		} `json:"data"`
	} `json:"action"`
	Model struct {
		ID string `json:"id"`
	} `json:"model"`
}

// ParseEvent decodes a callback body.
func (h *TrelloHandler) ParseEvent(body []byte) (*Event, error) {
	var p trelloPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("parse trello payload: %w", err)
	}
	if p.Action.Type == "" {
		return nil, fmt.Errorf("trello payload has no action type")
	}

	boardID := p.Action.Data.Board.ID
	if boardID == "" {
		boardID = p.Model.ID
	}
	ts := p.Action.Date
	if ts.IsZero() {
		ts = time.Now()
	}
	return &Event{
		Provider:   h.Provider(),
		ActionID:   p.Action.ID,
		ActionType: p.Action.Type,
		BoardID:    boardID,
		CardID:     p.Action.Data.Card.ID,
		CardName:   p.Action.Data.Card.Name,
		ListBefore: p.Action.Data.ListBefore.Name,
		ListAfter:  p.Action.Data.ListAfter.Name,
		Timestamp:  ts,
	}, nil
}

// affectsDashboard lists the action types that change cards, lists or members.
var affectsDashboard = map[string]bool{
	"createCard":           true,
	"updateCard":           true,
	"deleteCard":           true,
	"copyCard":             true,
	"moveCardToBoard":      true,
	"moveCardFromBoard":    true,
	"addMemberToCard":      true,
	"removeMemberFromCard": true,
	"addLabelToCard":       true,
	"removeLabelFromCard":  true,
	"createList":           true,
	"updateList":           true,
	"moveListToBoard":      true,
	"moveListFromBoard":    true,
	"addMemberToBoard":     true,
	"updateMember":         true,
}

// AffectsDashboard reports whether the event can change any computed metric.
func (e *Event) AffectsDashboard() bool {
	return affectsDashboard[e.ActionType]
}
