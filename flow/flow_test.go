package flow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarungka/loom/window"
)

func TestFlow_ConstructionOrderIsTopological(t *testing.T) {
	f := New("order")
	in := f.Input("in", nil)
	m := f.Map("m", in, func(v any) any { return v })
	u := f.Union("u", in, m)

	ops := f.Operators()
	require.Len(t, ops, 3)
	assert.Same(t, in, ops[0])
	assert.Same(t, m, ops[1])
	assert.Same(t, u, ops[2])
}

func TestFlow_RejectsCrossFlowInputs(t *testing.T) {
	f1 := New("one")
	f2 := New("two")
	in := f1.Input("in", nil)

	assert.Panics(t, func() {
		f2.Map("m", in, func(v any) any { return v })
	})
}

func TestFlow_BuilderValidation(t *testing.T) {
	f := New("invalid")
	in := f.Input("in", nil)

	tests := []struct {
		name  string
		build func()
	}{
		{"union_single_input", func() { f.Union("u", in) }},
		{"reduce_without_key", func() {
			f.ReduceStateByKey("r", in, ReduceParams{Reduce: func(acc, v any) any { return v }})
		}},
		{"reduce_without_reduce", func() {
			f.ReduceStateByKey("r", in, ReduceParams{Key: func(v any) any { return v }})
		}},
		{"join_without_fn", func() {
			f.Join("j", in, in, JoinParams{
				LeftKey:  func(v any) any { return v },
				RightKey: func(v any) any { return v },
			})
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Panics(t, tc.build)
		})
	}
}

func TestDecompose_MapEmitsOnce(t *testing.T) {
	f := New("d")
	in := f.Input("in", nil)
	m := f.Map("double", in, func(v any) any { return v.(int) * 2 })

	sub, ok := Decompose(m)
	require.True(t, ok)
	require.Len(t, sub.Ops, 1)
	fm := sub.Output
	assert.Equal(t, KindFlatMap, fm.Kind)
	assert.Equal(t, m.Inputs, fm.Inputs)

	var got []any
	fm.FlatMapFn(21, func(v any) { got = append(got, v) })
	assert.Equal(t, []any{42}, got)
}

func TestDecompose_FilterDropsRejected(t *testing.T) {
	f := New("d")
	in := f.Input("in", nil)
	fl := f.Filter("odd", in, func(v any) bool { return v.(int)%2 == 1 })

	sub, ok := Decompose(fl)
	require.True(t, ok)
	fm := sub.Output

	var got []any
	fm.FlatMapFn(3, func(v any) { got = append(got, v) })
	fm.FlatMapFn(4, func(v any) { got = append(got, v) })
	assert.Equal(t, []any{3}, got)
}

func TestDecompose_CountByKeyFolds(t *testing.T) {
	f := New("d")
	in := f.Input("in", nil)
	c := f.CountByKey("count", in, func(v any) any { return v }, window.NewFixed(time.Second))

	sub, ok := Decompose(c)
	require.True(t, ok)
	rsbk := sub.Output
	require.Equal(t, KindReduceStateByKey, rsbk.Kind)
	assert.Equal(t, c.Windowing, rsbk.Windowing)

	acc := rsbk.Initial()
	acc = rsbk.Reduce(acc, "x")
	acc = rsbk.Reduce(acc, "y")
	assert.Equal(t, int64(2), acc)
	assert.Equal(t, int64(5), rsbk.Combine(int64(2), int64(3)))
}

func TestDecompose_SumByKeyUsesValueFn(t *testing.T) {
	f := New("d")
	in := f.Input("in", nil)
	s := f.SumByKey("sum", in, func(v any) any { return "k" }, func(v any) int64 { return int64(v.(int)) }, nil)

	sub, ok := Decompose(s)
	require.True(t, ok)
	rsbk := sub.Output

	acc := rsbk.Initial()
	acc = rsbk.Reduce(acc, 3)
	acc = rsbk.Reduce(acc, 4)
	assert.Equal(t, int64(7), acc)
}

func TestDecompose_CarriesExpensiveFlag(t *testing.T) {
	f := New("d")
	in := f.Input("in", nil)
	m := f.Map("m", in, func(v any) any { return v })
	m.Expensive = true

	sub, ok := Decompose(m)
	require.True(t, ok)
	assert.True(t, sub.Output.Expensive)
}

func TestDecompose_PrimitivesHaveNone(t *testing.T) {
	f := New("d")
	in := f.Input("in", nil)
	fm := f.FlatMap("fm", in, func(v any, emit func(any)) { emit(v) })

	for _, op := range []*Operator{in, fm} {
		_, ok := Decompose(op)
		assert.False(t, ok, "%s must not decompose", op)
	}
}

func TestCollectSink(t *testing.T) {
	c := &Collect{}
	require.NoError(t, c.Write("a"))
	require.NoError(t, c.Write("b"))
	assert.False(t, c.Closed())
	require.NoError(t, c.Close())
	assert.True(t, c.Closed())
	assert.Equal(t, []any{"a", "b"}, c.Values)
}
