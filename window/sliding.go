package window

import "time"

// Sliding implements sliding windows: fixed-length windows opened every
// Slide interval, so an element belongs to Length/Slide windows at once.
type Sliding struct {
	// Length is the temporal length of each window.
	Length time.Duration
	// Slide is the interval between consecutive window starts.
	Slide time.Duration
}

var _ Strategy = Sliding{}

// NewSliding returns a sliding windowing strategy. Non-positive durations
// panic; assignment divides by the slide.
func NewSliding(length, slide time.Duration) Sliding {
	if length <= 0 || slide <= 0 {
		panic("window: sliding length and slide must be positive")
	}
	return Sliding{Length: length, Slide: slide}
}

// AssignWindows returns every window containing the given event time, most
// recent first.
func (s Sliding) AssignWindows(eventTime time.Time) []Window {
	windows := make([]Window, 0, s.Length/s.Slide)

	// Use the highest integer multiple of the slide length not after the
	// event time as the start of the most recent window, then walk
	// backwards one slide at a time. Deriving every start from the event
	// time keeps assignment consistent across elements.
	start := eventTime.Truncate(s.Slide)
	end := start.Add(s.Length)

	for !start.After(eventTime) && end.After(eventTime) {
		windows = append(windows, Window{Start: start, End: end})
		start = start.Add(-s.Slide)
		end = end.Add(-s.Slide)
	}

	return windows
}
