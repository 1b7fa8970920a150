package analytics

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/farol/pkg/domain/movement"
)

func TestDiffDays(t *testing.T) {
	base := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		b    time.Time
		want int
	}{
		{"same instant", base, 0},
		{"three days", base.Add(72 * time.Hour), 3},
		{"rounds down below half", base.Add(35 * time.Hour), 1},
		{"rounds half up", base.Add(36 * time.Hour), 2},
		{"negative half rounds toward zero", base.Add(-36 * time.Hour), -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DiffDays(base, tt.b); got != tt.want {
				t.Errorf("DiffDays() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEnrich_LeadAndAging(t *testing.T) {
	doing := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	done := doing.Add(3 * 24 * time.Hour)
	now := done.Add(2 * 24 * time.Hour)

	item := Enrich(WorkItem{ID: "a"}, movement.Summary{
		FirstEnteredDoing: &doing,
		FirstEnteredDone:  &done,
		LastMoveAt:        &done,
	}, now)

	if item.LeadDays == nil || *item.LeadDays != 3 {
		t.Fatalf("LeadDays = %v, want 3", item.LeadDays)
	}
	if item.AgingDays != 2 {
		t.Errorf("AgingDays = %d, want 2", item.AgingDays)
	}
}

func TestEnrich_NoLeadWithoutBothEnds(t *testing.T) {
	doing := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	item := Enrich(WorkItem{ID: "a"}, movement.Summary{FirstEnteredDoing: &doing}, doing)
	if item.LeadDays != nil {
		t.Errorf("expected nil LeadDays, got %d", *item.LeadDays)
	}

	item = Enrich(WorkItem{ID: "b"}, movement.Summary{}, doing)
	if item.LeadDays != nil {
		t.Error("empty summary must have no lead time")
	}
}

func TestWorkItem_AgingFallsBackToLastActivity(t *testing.T) {
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	item := WorkItem{LastActivity: now.Add(-4 * 24 * time.Hour)}

	if got := item.AgingAt(now); got != 4 {
		t.Errorf("AgingAt() = %d, want 4", got)
	}
}

func TestWorkItem_AgingWithoutReference(t *testing.T) {
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	if got := (WorkItem{}).AgingAt(now); got != 0 {
		t.Errorf("AgingAt() = %d, want 0", got)
	}
}

func TestWorkItem_AgingPrefersLastMove(t *testing.T) {
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	moved := now.Add(-10 * 24 * time.Hour)
	item := WorkItem{
		LastActivity: now.Add(-1 * time.Hour),
		Movement:     movement.Summary{LastMoveAt: &moved},
	}

	if got := item.AgingAt(now); got != 10 {
		t.Errorf("AgingAt() = %d, want 10", got)
	}
}

func TestWeekRange(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)

	tests := []struct {
		name      string
		now       time.Time
		wantStart time.Time
	}{
		{"wednesday", time.Date(2026, 10, 14, 15, 0, 0, 0, loc), time.Date(2026, 10, 12, 0, 0, 0, 0, loc)},
		{"monday midnight", time.Date(2026, 10, 12, 0, 0, 0, 0, loc), time.Date(2026, 10, 12, 0, 0, 0, 0, loc)},
		{"sunday night", time.Date(2026, 10, 18, 23, 30, 0, 0, loc), time.Date(2026, 10, 12, 0, 0, 0, 0, loc)},
		{"across month", time.Date(2026, 11, 1, 8, 0, 0, 0, loc), time.Date(2026, 10, 26, 0, 0, 0, 0, loc)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := WeekRange(tt.now)
			if !w.Start.Equal(tt.wantStart) {
				t.Errorf("Start = %s, want %s", w.Start, tt.wantStart)
			}
			wantEnd := tt.wantStart.AddDate(0, 0, 7).Add(-time.Nanosecond)
			if !w.End.Equal(wantEnd) {
				t.Errorf("End = %s, want %s", w.End, wantEnd)
			}
			if !w.Contains(tt.now) {
				t.Error("week must contain the reference time")
			}
		})
	}
}

func TestWeek_ContainsBounds(t *testing.T) {
	w := WeekRange(time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC))

	if !w.Contains(w.Start) || !w.Contains(w.End) {
		t.Error("bounds are inclusive")
	}
	if w.Contains(w.Start.Add(-time.Nanosecond)) {
		t.Error("previous Sunday is outside")
	}
	if w.Contains(w.End.Add(time.Nanosecond)) {
		t.Error("next Monday is outside")
	}
}

func TestWeekdayIndex(t *testing.T) {
	monday := time.Date(2026, 10, 12, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		if got := WeekdayIndex(monday.AddDate(0, 0, i)); got != i {
			t.Errorf("WeekdayIndex(+%d) = %d", i, got)
		}
	}
}
