package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/tarungka/loom/config"
	"github.com/tarungka/loom/flow"
	"github.com/tarungka/loom/internal/spill"
	"github.com/tarungka/loom/internal/spill/badgerdb"
	"github.com/tarungka/loom/internal/spill/fsdir"
	"github.com/tarungka/loom/internal/state"
	"github.com/tarungka/loom/internal/windowing"
	"github.com/tarungka/loom/translate"
	"github.com/tarungka/loom/window"
)

// defaultRules builds the engine's translation rule table. Registration
// order is the tie-break, so the broadcast join strategy sits ahead of the
// generic join fallback for the same kind.
func (e *Executor) defaultRules() []translate.Rule {
	return []translate.Rule{
		{Kind: flow.KindInput, Name: "input", Run: runInput},
		{Kind: flow.KindFlatMap, Name: "flatmap", Run: runFlatMap},
		{Kind: flow.KindUnion, Name: "union", Run: runUnion},
		{Kind: flow.KindReduceStateByKey, Name: "reduce-state-by-key", Run: e.runReduceStateByKey},
		{Kind: flow.KindJoin, Name: "broadcast-hash-join", Accept: acceptBroadcastJoin, Run: e.runBroadcastJoin},
		{Kind: flow.KindJoin, Name: "join", Run: e.runJoin},
	}
}

func runInput(op *flow.Operator, _ [][]flow.WindowedElement) ([]flow.WindowedElement, error) {
	return op.Elements, nil
}

func runFlatMap(op *flow.Operator, inputs [][]flow.WindowedElement) ([]flow.WindowedElement, error) {
	var out []flow.WindowedElement
	for _, elem := range inputs[0] {
		op.FlatMapFn(elem.Value, func(v any) {
			out = append(out, flow.WindowedElement{
				Windows:   elem.Windows,
				Timestamp: elem.Timestamp,
				Value:     v,
			})
		})
	}
	return out, nil
}

func runUnion(_ *flow.Operator, inputs [][]flow.WindowedElement) ([]flow.WindowedElement, error) {
	var out []flow.WindowedElement
	for _, in := range inputs {
		out = append(out, in...)
	}
	return out, nil
}

// runReduceStateByKey drives a windowing engine plus state store over the
// input and emits one KV per fired (key, window). Per-key failures (merge
// inconsistency, corrupt spill records) abandon only the affected key;
// spill I/O failures abort the whole node.
func (e *Executor) runReduceStateByKey(op *flow.Operator, inputs [][]flow.WindowedElement) ([]flow.WindowedElement, error) {
	sp, cleanup, err := e.newSpillStore(op.Name)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	initial := op.Initial
	if initial == nil {
		initial = func() any { return nil }
	}
	combine := state.CombineFunc(nil)
	if op.Combine != nil {
		combine = func(into, from any) any {
			if into == nil {
				return from
			}
			return op.Combine(into, from)
		}
	}
	st := state.NewStore(state.Options{
		Capacity:       e.cfg.StateCapacity,
		Spill:          sp,
		NewAccumulator: initial,
		Combine:        combine,
	})

	strategy := op.Windowing
	if strategy == nil {
		strategy = window.NewGlobal()
	}
	weng := windowing.New(windowing.Options{
		Strategy: strategy,
		Key:      op.Key,
		Fold:     op.Reduce,
		Store:    st,
	})

	var errs []error
	for _, elem := range inputs[0] {
		if err := weng.Process(elem.Value, elem.Timestamp); err != nil {
			if errors.Is(err, state.ErrSpillIO) {
				return nil, err
			}
			// per-key failure: the engine already abandoned the key
			e.logger.Err(err).Msgf("abandoning key during %s", op)
			errs = append(errs, err)
		}
	}

	emissions, err := weng.AdvanceWatermark(window.EndOfTime)
	if err != nil {
		if errors.Is(err, state.ErrSpillIO) {
			return nil, err
		}
		errs = append(errs, err)
	}

	out := make([]flow.WindowedElement, 0, len(emissions))
	for _, em := range emissions {
		out = append(out, flow.WindowedElement{
			Windows:   []window.Window{em.Window},
			Timestamp: em.Window.End,
			Value:     flow.KV{Key: em.Key, Value: em.Value},
		})
	}
	return out, errors.Join(errs...)
}

// newSpillStore opens the configured spill backend for one aggregation
// node. The cleanup func releases the backing storage with it.
func (e *Executor) newSpillStore(name string) (spill.Store, func(), error) {
	if e.cfg.StateCapacity <= 0 {
		return nil, func() {}, nil
	}
	switch e.cfg.SpillBackend {
	case config.BackendBadger:
		dir := ""
		if e.cfg.SpillDir != "" {
			d, err := os.MkdirTemp(e.cfg.SpillDir, name+"-*")
			if err != nil {
				return nil, nil, err
			}
			dir = d
		}
		s := badgerdb.New(&badgerdb.Config{Dir: dir})
		if err := s.Open(); err != nil {
			return nil, nil, err
		}
		return s, func() {
			s.Close()
			if dir != "" {
				os.RemoveAll(dir)
			}
		}, nil
	case config.BackendFsdir:
		dir := ""
		if e.cfg.SpillDir != "" {
			dir = filepath.Join(e.cfg.SpillDir, fmt.Sprintf("%s-%d", name, time.Now().UnixNano()))
		}
		s, err := fsdir.New(dir)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("engine: unknown spill backend %q", e.cfg.SpillBackend)
	}
}

// joinGroup collects one window's left and right values for one key.
type joinGroup struct {
	key    any
	win    window.Window
	lefts  []any
	rights []any
}

type joinGroupKey struct {
	key any
	win window.Window
}

// collectJoinGroups windows both join sides and buckets values by (key,
// window).
func collectJoinGroups(op *flow.Operator, inputs [][]flow.WindowedElement) map[joinGroupKey]*joinGroup {
	strategy := op.Windowing
	if strategy == nil {
		strategy = window.NewGlobal()
	}
	groups := make(map[joinGroupKey]*joinGroup)

	bucket := func(key any, ts time.Time) []*joinGroup {
		var out []*joinGroup
		for _, w := range strategy.AssignWindows(ts) {
			w = w.Canonical()
			gk := joinGroupKey{key: key, win: w}
			g, ok := groups[gk]
			if !ok {
				g = &joinGroup{key: key, win: w}
				groups[gk] = g
			}
			out = append(out, g)
		}
		return out
	}

	for _, elem := range inputs[0] {
		for _, g := range bucket(op.Key(elem.Value), elem.Timestamp) {
			g.lefts = append(g.lefts, elem.Value)
		}
	}
	for _, elem := range inputs[1] {
		for _, g := range bucket(op.RightKey(elem.Value), elem.Timestamp) {
			g.rights = append(g.rights, elem.Value)
		}
	}
	return groups
}

func emitJoinPairs(op *flow.Operator, groups map[joinGroupKey]*joinGroup) []flow.WindowedElement {
	var out []flow.WindowedElement
	for _, g := range groups {
		for _, l := range g.lefts {
			for _, r := range g.rights {
				out = append(out, flow.WindowedElement{
					Windows:   []window.Window{g.win},
					Timestamp: g.win.End,
					Value:     flow.KV{Key: g.key, Value: op.JoinFn(l, r)},
				})
			}
		}
	}
	return out
}

// runJoin is the generic windowed hash equi-join.
func (e *Executor) runJoin(op *flow.Operator, inputs [][]flow.WindowedElement) ([]flow.WindowedElement, error) {
	return emitJoinPairs(op, collectJoinGroups(op, inputs)), nil
}

// acceptBroadcastJoin gates the broadcast strategy: the right side must be
// estimated small enough and the key type must have a registered ordering
// comparator the strategy can sort with.
func acceptBroadcastJoin(op *flow.Operator, ctx *translate.AcceptorContext) bool {
	return op.RightSizeHint > 0 &&
		op.RightSizeHint <= ctx.BroadcastJoinMaxBytes() &&
		ctx.HasComparator(op.KeyType)
}

// runBroadcastJoin sorts the small right side with the registered key
// comparator and probes it per left element, the batch analog of
// broadcasting the small side to every worker.
func (e *Executor) runBroadcastJoin(op *flow.Operator, inputs [][]flow.WindowedElement) ([]flow.WindowedElement, error) {
	cmp, ok := e.translator.Context().Comparator(op.KeyType)
	if !ok {
		return nil, fmt.Errorf("engine: broadcast join accepted without comparator for key type %q", op.KeyType)
	}

	strategy := op.Windowing
	if strategy == nil {
		strategy = window.NewGlobal()
	}

	// broadcast table: right values sorted by (window, key)
	type rightEntry struct {
		key   any
		win   window.Window
		value any
	}
	var table []rightEntry
	for _, elem := range inputs[1] {
		for _, w := range strategy.AssignWindows(elem.Timestamp) {
			table = append(table, rightEntry{key: op.RightKey(elem.Value), win: w.Canonical(), value: elem.Value})
		}
	}
	sort.SliceStable(table, func(i, j int) bool {
		if c := window.Compare(table[i].win, table[j].win); c != 0 {
			return c < 0
		}
		return cmp(table[i].key, table[j].key) < 0
	})

	var out []flow.WindowedElement
	for _, elem := range inputs[0] {
		key := op.Key(elem.Value)
		for _, w := range strategy.AssignWindows(elem.Timestamp) {
			w = w.Canonical()
			lo := sort.Search(len(table), func(i int) bool {
				if c := window.Compare(table[i].win, w); c != 0 {
					return c > 0
				}
				return cmp(table[i].key, key) >= 0
			})
			for i := lo; i < len(table) && window.Compare(table[i].win, w) == 0 && cmp(table[i].key, key) == 0; i++ {
				out = append(out, flow.WindowedElement{
					Windows:   []window.Window{w},
					Timestamp: w.End,
					Value:     flow.KV{Key: key, Value: op.JoinFn(elem.Value, table[i].value)},
				})
			}
		}
	}
	return out, nil
}
