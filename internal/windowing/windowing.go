// Package windowing drives the key-window lifecycle of one keyed, windowed
// operator: it assigns incoming elements to windows, reconciles merges
// reported by merging strategies, folds element values into per-(key,
// window) state and fires windows once the caller's watermark says no
// earlier element can arrive.
//
// The engine tracks no wall-clock time of its own. Absent watermark
// advances, windows never fire and memory growth is absorbed by the state
// store's spill policy.
package windowing

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/tarungka/loom/internal/logger"
	"github.com/tarungka/loom/internal/state"
	"github.com/tarungka/loom/window"
)

// MergeConsistencyError reports a merge instruction whose source window was
// not tracked for the key. The key's processing for that window set is
// abandoned; other keys are unaffected.
type MergeConsistencyError struct {
	Key    any
	Window window.Window
}

func (e *MergeConsistencyError) Error() string {
	return fmt.Sprintf("windowing: merge names untracked window %v for key %v", e.Window, e.Key)
}

// Emission is the final result of one fired (key, window).
type Emission struct {
	Key    any
	Window window.Window
	Value  any
}

type Options struct {
	// Strategy assigns windows. A MergingStrategy additionally gets a
	// merge pass per element.
	Strategy window.Strategy
	// Key extracts the grouping key from an element value.
	Key func(value any) any
	// Fold accumulates an element value.
	Fold func(acc, value any) any
	// Store holds the keyed windowed state. Its combine function performs
	// merge relocation.
	Store *state.Store
}

// Engine implements the windowing semantics for a single operator
// partition. It is single-threaded by contract: all elements of a key must
// be processed by the same engine.
type Engine struct {
	strategy window.Strategy
	merging  window.MergingStrategy // nil for non-merging strategies
	key      func(value any) any
	fold     func(acc, value any) any
	store    *state.Store

	// tracked open windows: refcount of keys holding each window, plus
	// the per-key view used by merge reconciliation
	open   map[window.Window]int
	perKey map[any]map[window.Window]struct{}
	logger zerolog.Logger
}

// New returns an engine with no open windows.
func New(opts Options) *Engine {
	e := &Engine{
		strategy: opts.Strategy,
		key:      opts.Key,
		fold:     opts.Fold,
		store:    opts.Store,
		open:     make(map[window.Window]int),
		perKey:   make(map[any]map[window.Window]struct{}),
		logger:   logger.GetLogger("windowing"),
	}
	if m, ok := opts.Strategy.(window.MergingStrategy); ok {
		e.merging = m
	}
	return e
}

// Process routes one element: key extraction, window assignment, merge
// reconciliation for merging strategies, then accumulation. Merges are
// applied strictly before the element's value is folded in, so the element
// always lands in a post-merge window.
func (e *Engine) Process(value any, eventTime time.Time) error {
	key := e.key(value)

	assigned := e.strategy.AssignWindows(eventTime)
	resolved := make([]window.Window, 0, len(assigned))
	for _, w := range assigned {
		resolved = append(resolved, w.Canonical())
	}

	if e.merging != nil {
		var err error
		resolved, err = e.mergeFor(key, resolved)
		if err != nil {
			return err
		}
	}

	for _, w := range resolved {
		e.track(key, w)
		acc, err := e.store.Get(key, w)
		if err != nil {
			return err
		}
		if err := e.store.Put(key, w, e.fold(acc, value)); err != nil {
			return err
		}
	}
	return nil
}

// mergeFor runs the strategy's merge pass over the key's tracked windows
// plus the new candidates and applies every reported merge, relocating
// state from each source window into its target. It returns the candidate
// windows mapped through the merges.
func (e *Engine) mergeFor(key any, candidates []window.Window) ([]window.Window, error) {
	tracked := e.perKey[key]

	union := make([]window.Window, 0, len(tracked)+len(candidates))
	seen := make(map[window.Window]struct{}, len(tracked)+len(candidates))
	for w := range tracked {
		union = append(union, w)
		seen[w] = struct{}{}
	}
	for _, w := range candidates {
		if _, dup := seen[w]; !dup {
			union = append(union, w)
			seen[w] = struct{}{}
		}
	}
	// stable input order for the strategy
	sort.Slice(union, func(i, j int) bool {
		return window.Compare(union[i], union[j]) < 0
	})

	target := make(map[window.Window]window.Window)
	for _, m := range e.merging.MergeWindows(union) {
		dst := m.Target.Canonical()
		for _, src := range m.Sources {
			src = src.Canonical()
			if _, ok := seen[src]; !ok {
				e.abandonKey(key)
				return nil, &MergeConsistencyError{Key: key, Window: src}
			}
			if err := e.store.RelocateKey(key, src, dst); err != nil {
				return nil, err
			}
			e.untrack(key, src)
			target[src] = dst
		}
		e.track(key, dst)
	}

	resolved := make([]window.Window, 0, len(candidates))
	for _, w := range candidates {
		if dst, merged := target[w]; merged {
			w = dst
		}
		resolved = append(resolved, w)
	}
	return resolved, nil
}

// abandonKey drops everything tracked and stored for the key after a
// consistency violation.
func (e *Engine) abandonKey(key any) {
	for w := range e.perKey[key] {
		if err := e.store.Remove(key, w); err != nil {
			e.logger.Err(err).Msgf("error discarding state for abandoned key %v", key)
		}
		e.untrack(key, w)
	}
}

// AdvanceWatermark fires every open window whose end is at or before wm and
// purges its state. Returned emissions are ordered by window; per-window
// key order is unspecified. A corrupt state entry loses only that entry;
// firing continues for the remaining keys and the corruption is reported in
// the joined error.
func (e *Engine) AdvanceWatermark(wm time.Time) ([]Emission, error) {
	var fired []window.Window
	for w := range e.open {
		if !w.End.After(wm) {
			fired = append(fired, w)
		}
	}
	sort.Slice(fired, func(i, j int) bool {
		return window.Compare(fired[i], fired[j]) < 0
	})

	var emissions []Emission
	var errs []error
	for _, w := range fired {
		for {
			values := make(map[any]any)
			err := e.store.ForEachInWindow(w, func(key, acc any) error {
				values[key] = acc
				return nil
			})
			if err != nil {
				var cerr *state.CorruptionError
				if errors.As(err, &cerr) {
					// the store already dropped the corrupt entry; stop
					// tracking its key and rescan for the survivors
					e.untrack(cerr.Key, w)
					errs = append(errs, cerr)
					continue
				}
				return emissions, err
			}
			for key, acc := range values {
				emissions = append(emissions, Emission{Key: key, Window: w, Value: acc})
				e.untrack(key, w)
			}
			break
		}
		if err := e.store.DropWindow(w); err != nil {
			return emissions, err
		}
		delete(e.open, w)
	}
	return emissions, errors.Join(errs...)
}

// OpenWindows returns the number of windows still tracked.
func (e *Engine) OpenWindows() int {
	return len(e.open)
}

func (e *Engine) track(key any, w window.Window) {
	kw, ok := e.perKey[key]
	if !ok {
		kw = make(map[window.Window]struct{})
		e.perKey[key] = kw
	}
	if _, ok := kw[w]; ok {
		return
	}
	kw[w] = struct{}{}
	e.open[w]++
}

func (e *Engine) untrack(key any, w window.Window) {
	kw, ok := e.perKey[key]
	if !ok {
		return
	}
	if _, held := kw[w]; !held {
		return
	}
	delete(kw, w)
	if len(kw) == 0 {
		delete(e.perKey, key)
	}
	if e.open[w]--; e.open[w] <= 0 {
		delete(e.open, w)
	}
}
