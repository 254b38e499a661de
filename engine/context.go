package engine

import (
	"github.com/tarungka/loom/flow"
	"github.com/tarungka/loom/translate"
)

// Context carries per-run execution state: the output of every computed
// node, plus which outputs were explicitly materialized for sharing.
type Context struct {
	outputs      map[*translate.Node][]flow.WindowedElement
	materialized map[*translate.Node]struct{}
}

func newContext() *Context {
	return &Context{
		outputs:      make(map[*translate.Node][]flow.WindowedElement),
		materialized: make(map[*translate.Node]struct{}),
	}
}

// SetOutput records a node's computed output.
func (c *Context) SetOutput(n *translate.Node, out []flow.WindowedElement) {
	c.outputs[n] = out
}

// Output returns a node's computed output.
func (c *Context) Output(n *translate.Node) []flow.WindowedElement {
	return c.outputs[n]
}

// Materialize pins a node's output for reuse by multiple consumers. In
// this in-process executor outputs are already concrete slices, so the
// call only records the decision; a distributed backend would persist the
// dataset here.
func (c *Context) Materialize(n *translate.Node) {
	c.materialized[n] = struct{}{}
}

// Materialized reports whether the coordinator pinned the node's output.
func (c *Context) Materialized(n *translate.Node) bool {
	_, ok := c.materialized[n]
	return ok
}
