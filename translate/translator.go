package translate

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tarungka/loom/flow"
	"github.com/tarungka/loom/internal/logger"
)

// maxUnfoldDepth caps recursive decomposition. Well-formed operators
// bottom out in primitives after a handful of rewrites; hitting the cap
// means a decomposition cycle.
const maxUnfoldDepth = 64

// Translator lowers flows against a fixed rule table. The table is built
// once and never mutated, so a translator is safe to reuse across flows.
type Translator struct {
	rules  map[flow.Kind][]*Rule
	ctx    *AcceptorContext
	logger zerolog.Logger
}

// NewTranslator indexes the rules by kind, preserving registration order
// within each kind. Order is the tie-break: register specific rules ahead
// of general fallbacks.
func NewTranslator(ctx *AcceptorContext, rules []Rule) *Translator {
	idx := make(map[flow.Kind][]*Rule, len(rules))
	for i := range rules {
		r := rules[i]
		idx[r.Kind] = append(idx[r.Kind], &r)
	}
	return &Translator{
		rules:  idx,
		ctx:    ctx,
		logger: logger.GetLogger("translate"),
	}
}

// Context returns the acceptor context rules are evaluated against.
func (t *Translator) Context() *AcceptorContext {
	return t.ctx
}

// Translate lowers the flow into a canonical DAG. On any error the whole
// pass fails and no partial DAG is returned.
func (t *Translator) Translate(f *flow.Flow) (*DAG, error) {
	dag := &DAG{}
	resolved := make(map[*flow.Operator]*Node)

	for _, op := range f.Operators() {
		if _, err := t.lower(op, resolved, dag, 0); err != nil {
			return nil, err
		}
	}

	for _, n := range dag.nodes {
		for _, in := range n.Inputs {
			in.Consumers++
		}
	}

	for _, op := range f.Operators() {
		if op.Sink != nil {
			dag.sinks = append(dag.sinks, SinkBinding{Node: resolved[op], Sink: op.Sink})
		}
	}

	t.logger.Debug().Msgf("lowered flow %q: %d operators to %d nodes", f.Name(), len(f.Operators()), len(dag.nodes))
	return dag, nil
}

// lower resolves one operator to a DAG node: either a rule accepts it
// as-is, or its decomposition is lowered recursively and the resulting
// subgraph spliced in its place.
func (t *Translator) lower(op *flow.Operator, resolved map[*flow.Operator]*Node, dag *DAG, depth int) (*Node, error) {
	if n, ok := resolved[op]; ok {
		return n, nil
	}
	if depth > maxUnfoldDepth {
		return nil, fmt.Errorf("translate: decomposition of %s exceeds depth %d, cycle suspected", op, maxUnfoldDepth)
	}

	inputs := make([]*Node, len(op.Inputs))
	for i, in := range op.Inputs {
		n, ok := resolved[in]
		if !ok {
			return nil, fmt.Errorf("translate: operator %s consumes unresolved input %s", op, in)
		}
		inputs[i] = n
	}

	if rule := t.selectRule(op); rule != nil {
		n := &Node{Op: op, Rule: rule, Inputs: inputs}
		dag.nodes = append(dag.nodes, n)
		resolved[op] = n
		t.logger.Trace().Msgf("operator %s accepted by rule %q", op, rule.Name)
		return n, nil
	}

	sub, ok := flow.Decompose(op)
	if !ok {
		return nil, &UnsupportedOperatorError{Kind: op.Kind, Name: op.Name}
	}
	t.logger.Trace().Msgf("operator %s has no accepting rule, lowering its decomposition", op)
	for _, sop := range sub.Ops {
		if _, err := t.lower(sop, resolved, dag, depth+1); err != nil {
			return nil, err
		}
	}
	out := resolved[sub.Output]
	resolved[op] = out
	return out, nil
}

// selectRule returns the first registered rule for the operator's kind
// whose predicate passes, or nil.
func (t *Translator) selectRule(op *flow.Operator) *Rule {
	for _, r := range t.rules[op.Kind] {
		if r.Accept == nil || r.Accept(op, t.ctx) {
			return r
		}
	}
	return nil
}
