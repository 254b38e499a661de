package window

import "time"

// Fixed implements fixed (tumbling) windows of a static length. Windows are
// aligned: every element with an event time in the same length-sized bucket
// lands in the same window.
type Fixed struct {
	// Length is the temporal length of the window.
	Length time.Duration
}

var _ Strategy = Fixed{}

// NewFixed returns a fixed windowing strategy of the given length. A
// non-positive length panics.
func NewFixed(length time.Duration) Fixed {
	if length <= 0 {
		panic("window: fixed length must be positive")
	}
	return Fixed{Length: length}
}

// AssignWindows assigns a single window for the given event time.
//
// Assignment follows a left inclusive and right exclusive principle. Since
// we use truncate here, any element on the boundary automatically falls
// into the window to the right of the boundary.
func (f Fixed) AssignWindows(eventTime time.Time) []Window {
	start := eventTime.Truncate(f.Length)
	return []Window{{Start: start, End: start.Add(f.Length)}}
}
