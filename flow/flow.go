// Package flow models a user-authored dataflow computation as a graph of
// high-level declarative operators, independent of where it eventually
// runs. A Flow is built once through the constructor methods and handed to
// the lowering engine; it is not mutated afterwards.
//
// Operator kinds split into primitives (input, flat-map, union,
// reduce-state-by-key) and derived operators (map, filter, reduce-by-key,
// sum-by-key, count-by-key) that carry a decomposition into primitives.
// Join is primitive-like: backends register translation rules for it
// directly.
package flow

import (
	"fmt"

	"github.com/tarungka/loom/window"
)

// Kind tags an operator with its runtime class. Translation rules are
// looked up by kind.
type Kind int

const (
	KindInput Kind = iota
	KindFlatMap
	KindUnion
	KindReduceStateByKey
	KindMap
	KindFilter
	KindReduceByKey
	KindSumByKey
	KindCountByKey
	KindJoin
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "Input"
	case KindFlatMap:
		return "FlatMap"
	case KindUnion:
		return "Union"
	case KindReduceStateByKey:
		return "ReduceStateByKey"
	case KindMap:
		return "Map"
	case KindFilter:
		return "Filter"
	case KindReduceByKey:
		return "ReduceByKey"
	case KindSumByKey:
		return "SumByKey"
	case KindCountByKey:
		return "CountByKey"
	case KindJoin:
		return "Join"
	default:
		return "Unknown"
	}
}

// User function signatures. The engine treats all of these as opaque
// callables; it never inspects what they compute.
type (
	// UnaryFunc maps one value to another.
	UnaryFunc func(value any) any
	// PredicateFunc decides whether a value passes a filter.
	PredicateFunc func(value any) bool
	// FlatMapFunc maps one value to zero or more values via emit.
	FlatMapFunc func(value any, emit func(any))
	// KeyFunc extracts the grouping key from a value. Keys must be
	// comparable Go values.
	KeyFunc func(value any) any
	// ReduceFunc folds an element value into an accumulator.
	ReduceFunc func(acc, value any) any
	// CombineFunc merges two accumulators, used when windows merge.
	CombineFunc func(a, b any) any
	// BinaryFunc combines a matched left and right value of a join.
	BinaryFunc func(left, right any) any
)

// Operator is one node of a Flow. Which payload fields are set depends on
// the Kind; unused fields stay nil.
type Operator struct {
	Kind   Kind
	Name   string
	Inputs []*Operator

	// Elements is the bounded input of a KindInput operator.
	Elements []WindowedElement

	FlatMapFn FlatMapFunc
	MapFn     UnaryFunc
	Predicate PredicateFunc

	Key     KeyFunc
	Initial func() any
	Reduce  ReduceFunc
	Combine CombineFunc
	ValueFn func(value any) int64 // sum-by-key value extractor

	RightKey      KeyFunc
	JoinFn        BinaryFunc
	KeyType       string // type tag for comparator lookup during lowering
	RightSizeHint int64  // estimated bytes of the join's right side

	Windowing window.Strategy

	// Expensive marks the operator's output as costly to recompute; with
	// more than one consumer the coordinator materializes it once.
	Expensive bool

	Sink Sink

	flow *Flow
}

// Output attaches a sink to the operator, marking it as a sink-bearing
// leaf.
func (o *Operator) Output(sink Sink) {
	o.Sink = sink
}

func (o *Operator) String() string {
	return fmt.Sprintf("%s(%s)", o.Kind, o.Name)
}

// Flow is an acyclic graph of operators. Operators only ever reference
// previously constructed operators of the same flow, so the construction
// order is a valid topological order.
type Flow struct {
	name      string
	operators []*Operator
}

// New returns an empty flow.
func New(name string) *Flow {
	return &Flow{name: name}
}

// Name returns the flow's name.
func (f *Flow) Name() string {
	return f.name
}

// Operators returns the flow's operators in construction order, sources
// before consumers.
func (f *Flow) Operators() []*Operator {
	return f.operators
}

func (f *Flow) add(op *Operator) *Operator {
	for _, in := range op.Inputs {
		if in.flow != f {
			panic(fmt.Sprintf("flow: operator %s consumes %s from a different flow", op, in))
		}
	}
	op.flow = f
	f.operators = append(f.operators, op)
	return op
}

// Input adds a bounded input operator carrying the given elements.
func (f *Flow) Input(name string, elements []WindowedElement) *Operator {
	return f.add(&Operator{Kind: KindInput, Name: name, Elements: elements})
}

// Map adds a one-to-one transformation of the input.
func (f *Flow) Map(name string, input *Operator, fn UnaryFunc) *Operator {
	return f.add(&Operator{Kind: KindMap, Name: name, Inputs: []*Operator{input}, MapFn: fn})
}

// Filter keeps only the input values the predicate accepts.
func (f *Flow) Filter(name string, input *Operator, pred PredicateFunc) *Operator {
	return f.add(&Operator{Kind: KindFilter, Name: name, Inputs: []*Operator{input}, Predicate: pred})
}

// FlatMap adds a one-to-many transformation of the input.
func (f *Flow) FlatMap(name string, input *Operator, fn FlatMapFunc) *Operator {
	return f.add(&Operator{Kind: KindFlatMap, Name: name, Inputs: []*Operator{input}, FlatMapFn: fn})
}

// Union merges two or more inputs into one dataset. No ordering is implied.
func (f *Flow) Union(name string, inputs ...*Operator) *Operator {
	if len(inputs) < 2 {
		panic("flow: union needs at least two inputs")
	}
	return f.add(&Operator{Kind: KindUnion, Name: name, Inputs: inputs})
}

// ReduceParams configures keyed aggregations.
type ReduceParams struct {
	// Key extracts the grouping key.
	Key KeyFunc
	// Initial creates the starting accumulator for a fresh (key, window).
	Initial func() any
	// Reduce folds an element value into the accumulator.
	Reduce ReduceFunc
	// Combine merges two accumulators when windows merge. Required for
	// merging windowing strategies.
	Combine CombineFunc
	// Windowing is the windowing strategy; nil means one global window.
	Windowing window.Strategy
}

// ReduceStateByKey adds the primitive keyed, windowed stateful
// aggregation. Emits one KV per (key, window) when the window fires.
func (f *Flow) ReduceStateByKey(name string, input *Operator, p ReduceParams) *Operator {
	if p.Key == nil || p.Reduce == nil {
		panic("flow: reduce-state-by-key needs Key and Reduce")
	}
	return f.add(&Operator{
		Kind:      KindReduceStateByKey,
		Name:      name,
		Inputs:    []*Operator{input},
		Key:       p.Key,
		Initial:   p.Initial,
		Reduce:    p.Reduce,
		Combine:   p.Combine,
		Windowing: p.Windowing,
	})
}

// ReduceByKey adds a keyed aggregation; compared to ReduceStateByKey it is
// a derived operator a backend may translate with a combining shortcut.
func (f *Flow) ReduceByKey(name string, input *Operator, p ReduceParams) *Operator {
	if p.Key == nil || p.Reduce == nil {
		panic("flow: reduce-by-key needs Key and Reduce")
	}
	return f.add(&Operator{
		Kind:      KindReduceByKey,
		Name:      name,
		Inputs:    []*Operator{input},
		Key:       p.Key,
		Initial:   p.Initial,
		Reduce:    p.Reduce,
		Combine:   p.Combine,
		Windowing: p.Windowing,
	})
}

// SumByKey sums an extracted int64 per key and window.
func (f *Flow) SumByKey(name string, input *Operator, key KeyFunc, value func(any) int64, strategy window.Strategy) *Operator {
	return f.add(&Operator{
		Kind:      KindSumByKey,
		Name:      name,
		Inputs:    []*Operator{input},
		Key:       key,
		ValueFn:   value,
		Windowing: strategy,
	})
}

// CountByKey counts elements per key and window.
func (f *Flow) CountByKey(name string, input *Operator, key KeyFunc, strategy window.Strategy) *Operator {
	return f.add(&Operator{
		Kind:      KindCountByKey,
		Name:      name,
		Inputs:    []*Operator{input},
		Key:       key,
		Windowing: strategy,
	})
}

// JoinParams configures a windowed equi-join.
type JoinParams struct {
	LeftKey  KeyFunc
	RightKey KeyFunc
	// Fn combines each matched left/right pair.
	Fn BinaryFunc
	// Windowing scopes the join; nil means one global window.
	Windowing window.Strategy
	// KeyType names the key's type for comparator lookup during lowering.
	KeyType string
	// RightSizeHint estimates the serialized size of the right side in
	// bytes; small sides qualify for the broadcast strategy.
	RightSizeHint int64
}

// Join adds a windowed inner equi-join of two inputs. Emits one KV per
// matched pair.
func (f *Flow) Join(name string, left, right *Operator, p JoinParams) *Operator {
	if p.LeftKey == nil || p.RightKey == nil || p.Fn == nil {
		panic("flow: join needs LeftKey, RightKey and Fn")
	}
	return f.add(&Operator{
		Kind:          KindJoin,
		Name:          name,
		Inputs:        []*Operator{left, right},
		Key:           p.LeftKey,
		RightKey:      p.RightKey,
		JoinFn:        p.Fn,
		Windowing:     p.Windowing,
		KeyType:       p.KeyType,
		RightSizeHint: p.RightSizeHint,
	})
}
