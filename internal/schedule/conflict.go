package schedule

import (
	"fmt"
	"time"
)

// ConflictError reports a rejected schedule write, naming the slot already
// occupying the room. Staff-facing, so it is allowed to be specific.
type ConflictError struct {
	Conflicting *Slot
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("schedule conflicts with existing schedule %d in the same room", e.Conflicting.ID)
}

// parseClock parses "HH:MM" or "HH:MM:SS" into minutes since midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		t, err = time.Parse("15:04:05", s)
		if err != nil {
			return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
		}
	}
	return t.Hour()*60 + t.Minute(), nil
}

// overlaps reports whether the half-open intervals [s, e) and [s2, e2)
// intersect. A slot ending exactly when another starts does not conflict.
func overlaps(s, e, s2, e2 int) bool {
	return s < e2 && e > s2
}

// firstConflict scans candidate slots sharing a room and day and returns the
// first whose interval overlaps [start, end), or nil. Candidates with
// unparseable times cannot be compared and are skipped.
func firstConflict(candidates []Slot, start, end int) *Slot {
	for i := range candidates {
		cs, err := parseClock(candidates[i].StartTime)
		if err != nil {
			continue
		}
		ce, err := parseClock(candidates[i].EndTime)
		if err != nil {
			continue
		}
		if overlaps(start, end, cs, ce) {
			return &candidates[i]
		}
	}
	return nil
}
