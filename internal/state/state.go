// Package state implements the keyed, windowed state store backing
// aggregation operators. Every accumulator lives under a (key, window)
// address. The store keeps a bounded number of recently touched entries in
// memory; the coldest entry is exchanged to a spill store when the bound is
// exceeded and reloaded on its next access, so residency never grows past
// the configured capacity.
//
// The store does no internal locking. It is meant to be confined to the
// single worker owning a key partition; callers that share a store across
// goroutines must synchronize externally.
package state

import (
	"errors"
	"fmt"

	"github.com/tarungka/loom/window"
)

// ErrSpillIO marks a failed read or write against the spill store. It is
// propagated, never retried; picking another spill location is a backend
// policy decision.
var ErrSpillIO = errors.New("state: spill io failure")

// CorruptionError reports a (key, window) entry whose spilled bytes could
// not be decoded back into an accumulator. The entry is lost; processing of
// other keys continues.
type CorruptionError struct {
	Key    any
	Window window.Window
	Err    error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("state: corrupt spill record for key %v window %v: %v", e.Key, e.Window, e.Err)
}

func (e *CorruptionError) Unwrap() error {
	return e.Err
}

// CombineFunc folds the accumulator of a retired window into the
// accumulator of its merge target.
type CombineFunc func(into, from any) any
