package analytics

import "time"

// Week is an inclusive Monday-to-Sunday range.
type Week struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// WeekRange returns the week containing t: Monday 00:00:00 through the last
// nanosecond of Sunday, in t's location.
func WeekRange(t time.Time) Week {
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.Date()
	start := time.Date(y, m, d-offset, 0, 0, 0, 0, t.Location())
	end := time.Date(y, m, d-offset+7, 0, 0, 0, 0, t.Location()).Add(-time.Nanosecond)
	return Week{Start: start, End: end}
}

// Contains reports whether t lies within the week, bounds included.
func (w Week) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// WeekdayIndex maps a time to Monday=0 ... Sunday=6.
func WeekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
