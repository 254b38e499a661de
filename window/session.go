package window

import (
	"sort"
	"time"
)

// Session implements session windows: each element opens a provisional
// window [t, t+Gap), and windows for the same key that overlap are merged
// into their covering span. Two elements belong to the same session when
// they are separated by less than Gap.
type Session struct {
	// Gap is the inactivity gap that closes a session.
	Gap time.Duration
}

var _ MergingStrategy = Session{}

// NewSession returns a session windowing strategy with the given gap. A
// non-positive gap panics.
func NewSession(gap time.Duration) Session {
	if gap <= 0 {
		panic("window: session gap must be positive")
	}
	return Session{Gap: gap}
}

// AssignWindows assigns a provisional single-element session window.
func (s Session) AssignWindows(eventTime time.Time) []Window {
	return []Window{{Start: eventTime, End: eventTime.Add(s.Gap)}}
}

// MergeWindows groups overlapping windows and reports one merge per group
// of two or more. The merge target is the covering span of the group; when
// the span coincides with an existing member that member is kept as the
// target rather than retired.
func (s Session) MergeWindows(active []Window) []Merge {
	if len(active) < 2 {
		return nil
	}

	sorted := make([]Window, len(active))
	copy(sorted, active)
	sort.Slice(sorted, func(i, j int) bool {
		return Compare(sorted[i], sorted[j]) < 0
	})

	var merges []Merge
	i := 0
	for i < len(sorted) {
		group := []Window{sorted[i]}
		span := sorted[i]
		j := i + 1
		for j < len(sorted) && sorted[j].Start.Before(span.End) {
			group = append(group, sorted[j])
			span = span.Span(sorted[j])
			j++
		}
		if len(group) > 1 {
			sources := make([]Window, 0, len(group))
			for _, w := range group {
				if w != span {
					sources = append(sources, w)
				}
			}
			merges = append(merges, Merge{Sources: sources, Target: span})
		}
		i = j
	}

	return merges
}
