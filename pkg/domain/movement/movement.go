// Package movement reconstructs when a card first entered the doing and done
// stages from its list-move history.
package movement

import (
	"sort"
	"time"

	"github.com/felixgeelhaar/farol/pkg/domain/stage"
)

// StageEvent is one observed move of a card between two lists.
// An empty StageBefore or StageAfter means the side is unknown.
type StageEvent struct {
	OccurredAt  time.Time `json:"occurred_at"`
	StageBefore string    `json:"stage_before,omitempty"`
	StageAfter  string    `json:"stage_after,omitempty"`
}

// IsMove reports whether both sides of the transition are known.
func (e StageEvent) IsMove() bool {
	return e.StageBefore != "" && e.StageAfter != ""
}

// Summary is the compact movement record of a single card.
type Summary struct {
	FirstEnteredDoing  *time.Time `json:"first_entered_doing,omitempty"`
	FirstEnteredDone   *time.Time `json:"first_entered_done,omitempty"`
	LastMoveAt         *time.Time `json:"last_move_at,omitempty"`
	LastStageAfterMove string     `json:"last_stage_after_move,omitempty"`
	// Bypass is set when a card reached done without passing through doing.
	Bypass bool `json:"bypass"`
}

// Finished reports whether the card has ever entered done.
func (s Summary) Finished() bool {
	return s.FirstEnteredDone != nil
}

// Reduce folds events into a Summary. The input slice is not modified.
// Events are processed in ascending time order; equal timestamps keep their
// input order. Events missing either side are skipped.
func Reduce(events []StageEvent, cls stage.Classification) Summary {
	sorted := make([]StageEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OccurredAt.Before(sorted[j].OccurredAt)
	})

	var s Summary
	for _, ev := range sorted {
		if !ev.IsMove() {
			continue
		}
		at := ev.OccurredAt

		s.LastMoveAt = &at
		s.LastStageAfterMove = ev.StageAfter

		if s.FirstEnteredDoing == nil && cls.Is(ev.StageAfter, stage.Doing) {
			s.FirstEnteredDoing = &at
		}
		if s.FirstEnteredDone == nil && cls.Is(ev.StageAfter, stage.Done) {
			s.FirstEnteredDone = &at
			if s.FirstEnteredDoing == nil && !cls.Is(ev.StageBefore, stage.Doing) {
				s.Bypass = true
			}
		}
	}
	return s
}
