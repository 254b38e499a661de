// Package translate rewrites a user-authored Flow into a canonical DAG of
// primitive operators a backend can execute. Rules are registered once at
// construction, indexed by operator kind in registration order; the first
// rule whose acceptance predicate passes claims the operator. Operators no
// rule accepts are expanded through their decomposition into basic
// operators instead, recursively.
package translate

import (
	"fmt"

	"github.com/tarungka/loom/flow"
)

// UnsupportedOperatorError is fatal: the named operator kind has no
// accepted translation rule and no decomposition. Lowering aborts and no
// partial DAG is produced.
type UnsupportedOperatorError struct {
	Kind flow.Kind
	Name string
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("translate: operator %s(%s) not supported: no accepted rule and no decomposition", e.Kind, e.Name)
}

// Comparator orders two keys of one key type.
type Comparator func(a, b any) int

// AcceptorContext is shared state acceptance predicates consult, e.g.
// whether a custom ordering comparator exists for an operator's key type.
type AcceptorContext struct {
	comparators           map[string]Comparator
	broadcastJoinMaxBytes int64
}

// NewAcceptorContext returns a context with no registered comparators.
func NewAcceptorContext(broadcastJoinMaxBytes int64) *AcceptorContext {
	return &AcceptorContext{
		comparators:           make(map[string]Comparator),
		broadcastJoinMaxBytes: broadcastJoinMaxBytes,
	}
}

// RegisterComparator makes a key-type ordering available to acceptance
// predicates and translation strategies.
func (c *AcceptorContext) RegisterComparator(keyType string, cmp Comparator) {
	c.comparators[keyType] = cmp
}

// HasComparator reports whether a comparator is registered for the key
// type.
func (c *AcceptorContext) HasComparator(keyType string) bool {
	_, ok := c.comparators[keyType]
	return ok
}

// Comparator returns the comparator registered for the key type.
func (c *AcceptorContext) Comparator(keyType string) (Comparator, bool) {
	cmp, ok := c.comparators[keyType]
	return cmp, ok
}

// BroadcastJoinMaxBytes is the configured small-side threshold for the
// broadcast join strategy.
func (c *AcceptorContext) BroadcastJoinMaxBytes() int64 {
	return c.broadcastJoinMaxBytes
}

// RunFunc is a rule's execution logic: it receives the operator and the
// already-computed outputs of its dependencies, in input order, and
// produces the operator's output.
//
// A RunFunc that fails completely returns a nil slice and an error; the
// job aborts. Returning a non-nil (possibly empty) slice together with an
// error reports a partial, per-key failure: the coordinator records the
// error and keeps going with the produced output.
type RunFunc func(op *flow.Operator, inputs [][]flow.WindowedElement) ([]flow.WindowedElement, error)

// Rule translates operators of one kind. A nil Accept accepts every
// instance.
type Rule struct {
	Kind   flow.Kind
	Name   string
	Accept func(op *flow.Operator, ctx *AcceptorContext) bool
	Run    RunFunc
}

// Node is one operator of the canonical DAG, bound to the rule that
// accepted it.
type Node struct {
	Op     *flow.Operator
	Rule   *Rule
	Inputs []*Node
	// Consumers is the number of downstream nodes reading this node's
	// output.
	Consumers int
}

// SinkBinding attaches an external sink to the node standing in for a
// sink-bearing leaf of the original flow.
type SinkBinding struct {
	Node *Node
	Sink flow.Sink
}

// DAG is the output of lowering: nodes in a valid topological order, every
// node bound to exactly one accepted rule.
type DAG struct {
	nodes []*Node
	sinks []SinkBinding
}

// Nodes returns the DAG's nodes, dependencies before dependents.
func (d *DAG) Nodes() []*Node {
	return d.nodes
}

// Sinks returns the sink bindings of the original flow's leaves.
func (d *DAG) Sinks() []SinkBinding {
	return d.sinks
}
