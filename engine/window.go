package engine

import "time"

// =============================================================================
// TIME WINDOW - [Start, End) occupied by one tour occurrence
// =============================================================================

// TimeWindow is the half-open interval a tour keeps its guide, driver and bus.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// NewTimeWindow derives the window from a departure and a duration.
// A non-positive duration panics.
func NewTimeWindow(departure time.Time, duration time.Duration) TimeWindow {
	w := TimeWindow{Start: departure, End: departure.Add(duration)}
	w.mustBeValid()
	return w
}

func (w TimeWindow) mustBeValid() {
	if !w.End.After(w.Start) {
		violate("window_end_after_start", "end %s is not after start %s",
			w.End.Format(time.RFC3339), w.Start.Format(time.RFC3339))
	}
}

func (w TimeWindow) Duration() time.Duration { return w.End.Sub(w.Start) }

// Contains reports whether t falls in [Start, End).
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w TimeWindow) String() string {
	return "[" + w.Start.Format(time.RFC3339) + ", " + w.End.Format(time.RFC3339) + ")"
}

// =============================================================================
// OVERLAP POLICY
// =============================================================================

// Conflicts reports whether a resource committed to existing is still busy
// when candidate starts: existing.End >= candidate.Start.
//
// This is deliberately one-sided. existing.Start and candidate.End play no
// part, so a commitment that lies entirely after the candidate also counts
// as a conflict. A resource only becomes free strictly before the next
// tour begins (an existing tour ending exactly at candidate.Start blocks).
func Conflicts(existing, candidate TimeWindow) bool {
	return !existing.End.Before(candidate.Start)
}
