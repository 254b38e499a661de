package flow

// Subgraph is an equivalent rewrite of a single operator in terms of more
// primitive ones. Ops are listed sources-first; the roots consume the
// original operator's inputs and Output stands in for the original
// operator's output.
type Subgraph struct {
	Ops    []*Operator
	Output *Operator
}

// Decompose returns the operator's decomposition into basic operators, or
// false when the kind has none and must be accepted by a translation rule
// directly.
func Decompose(op *Operator) (*Subgraph, bool) {
	switch op.Kind {
	case KindMap:
		fn := op.MapFn
		fm := &Operator{
			Kind:      KindFlatMap,
			Name:      op.Name,
			Inputs:    op.Inputs,
			Expensive: op.Expensive,
			FlatMapFn: func(value any, emit func(any)) {
				emit(fn(value))
			},
		}
		return &Subgraph{Ops: []*Operator{fm}, Output: fm}, true

	case KindFilter:
		pred := op.Predicate
		fm := &Operator{
			Kind:      KindFlatMap,
			Name:      op.Name,
			Inputs:    op.Inputs,
			Expensive: op.Expensive,
			FlatMapFn: func(value any, emit func(any)) {
				if pred(value) {
					emit(value)
				}
			},
		}
		return &Subgraph{Ops: []*Operator{fm}, Output: fm}, true

	case KindReduceByKey:
		rsbk := &Operator{
			Kind:      KindReduceStateByKey,
			Name:      op.Name,
			Inputs:    op.Inputs,
			Key:       op.Key,
			Initial:   op.Initial,
			Reduce:    op.Reduce,
			Combine:   op.Combine,
			Windowing: op.Windowing,
			Expensive: op.Expensive,
		}
		return &Subgraph{Ops: []*Operator{rsbk}, Output: rsbk}, true

	case KindSumByKey:
		value := op.ValueFn
		if value == nil {
			value = func(any) int64 { return 1 }
		}
		rsbk := &Operator{
			Kind:    KindReduceStateByKey,
			Name:    op.Name,
			Inputs:  op.Inputs,
			Key:     op.Key,
			Initial: func() any { return int64(0) },
			Reduce: func(acc, v any) any {
				return acc.(int64) + value(v)
			},
			Combine: func(a, b any) any {
				return a.(int64) + b.(int64)
			},
			Windowing: op.Windowing,
			Expensive: op.Expensive,
		}
		return &Subgraph{Ops: []*Operator{rsbk}, Output: rsbk}, true

	case KindCountByKey:
		rsbk := &Operator{
			Kind:    KindReduceStateByKey,
			Name:    op.Name,
			Inputs:  op.Inputs,
			Key:     op.Key,
			Initial: func() any { return int64(0) },
			Reduce: func(acc, _ any) any {
				return acc.(int64) + 1
			},
			Combine: func(a, b any) any {
				return a.(int64) + b.(int64)
			},
			Windowing: op.Windowing,
			Expensive: op.Expensive,
		}
		return &Subgraph{Ops: []*Operator{rsbk}, Output: rsbk}, true

	default:
		return nil, false
	}
}
