package flow

import (
	"time"

	"github.com/tarungka/loom/window"
)

// WindowedElement is a value tagged with its event timestamp and the
// candidate windows it currently belongs to. An element is "multi-windowed"
// until merge resolution pins it to exactly one window; elements flowing
// between non-windowed operators carry no windows at all.
type WindowedElement struct {
	Windows   []window.Window
	Timestamp time.Time
	Value     any
}

// Timestamped returns an element carrying just a value and its event time.
func Timestamped(value any, ts time.Time) WindowedElement {
	return WindowedElement{Value: value, Timestamp: ts}
}

// KV is the output shape of keyed aggregations.
type KV struct {
	Key   any
	Value any
}
