package window

import "time"

// Global assigns every element to one window spanning all of time. It only
// fires once the watermark reaches EndOfTime, i.e. at end of input.
type Global struct{}

var _ Strategy = Global{}

// NewGlobal returns the global windowing strategy.
func NewGlobal() Global {
	return Global{}
}

// AssignWindows assigns the single all-covering window.
func (Global) AssignWindows(time.Time) []Window {
	return []Window{{Start: time.Time{}, End: EndOfTime}}
}
