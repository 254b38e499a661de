// Package window defines window identity and the time-based windowing
// strategies used by keyed, windowed operators. A window is a half-open
// interval [Start, End) identified purely by its bounds: two windows with
// equal bounds are the same window. Strategies come in two flavors, plain
// assignment (fixed, sliding, global) and merging assignment (session),
// where provisionally assigned windows may later collapse into one.
package window

import (
	"fmt"
	"math"
	"time"
)

// EndOfTime is the largest timestamp the engine reasons about. A watermark
// at or past EndOfTime fires every window, including global ones.
var EndOfTime = time.Unix(0, math.MaxInt64)

// Window is a half-open time interval [Start, End). It is a comparable
// value type and must be used as such; windows are never shared by pointer.
type Window struct {
	Start time.Time
	End   time.Time
}

// New returns the window [start, end).
func New(start, end time.Time) Window {
	return Window{Start: start, End: end}
}

// Covers reports whether t falls inside the window.
func (w Window) Covers(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Overlaps reports whether the two windows share any instant.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

// Span returns the smallest window covering both w and o.
func (w Window) Span(o Window) Window {
	s := w
	if o.Start.Before(s.Start) {
		s.Start = o.Start
	}
	if o.End.After(s.End) {
		s.End = o.End
	}
	return s
}

// Canonical strips monotonic-clock readings and normalizes both bounds to
// UTC so that windows covering the same span are equal as Go values.
func (w Window) Canonical() Window {
	return Window{Start: w.Start.Round(0).UTC(), End: w.End.Round(0).UTC()}
}

func (w Window) String() string {
	return fmt.Sprintf("[%d,%d)", w.Start.UnixMilli(), w.End.UnixMilli())
}

// Compare orders windows chronologically by start time, ties broken by end
// time. Used for eviction and garbage policy; windows compare equal only
// when they are the same window.
func Compare(a, b Window) int {
	if c := a.Start.Compare(b.Start); c != 0 {
		return c
	}
	return a.End.Compare(b.End)
}

// Merge instructs the windowing engine to retire every window in Sources,
// fold its state into Target, and track Target in their place. A strategy
// must never list Target among Sources.
type Merge struct {
	Sources []Window
	Target  Window
}

// Strategy assigns an element to the set of windows it belongs to, derived
// from its event time alone. Assignment is pure: the same event time always
// yields the same window set.
type Strategy interface {
	AssignWindows(eventTime time.Time) []Window
}

// MergingStrategy is a Strategy whose per-element windows are provisional.
// After assignment the engine hands it the full set of windows currently
// open for a key and applies whatever merges it reports.
type MergingStrategy interface {
	Strategy

	// MergeWindows inspects the given window set and returns instructions
	// collapsing overlapping windows. Every source window it names must be
	// a member of the input set.
	MergeWindows(active []Window) []Merge
}
