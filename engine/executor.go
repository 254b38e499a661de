// Package engine executes lowered flows in-process: it owns the default
// rule table, drives the canonical DAG node by node in topological order
// and hands leaf outputs to their bound sinks.
package engine

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tarungka/loom/config"
	"github.com/tarungka/loom/flow"
	"github.com/tarungka/loom/internal/logger"
	"github.com/tarungka/loom/translate"
)

// Executor lowers and runs flows against one configuration. It is safe to
// reuse across flows; each Run gets a fresh execution context.
type Executor struct {
	cfg        *config.Config
	translator *translate.Translator
	logger     zerolog.Logger

	extraRules []translate.Rule
}

// Option customizes an executor at construction.
type Option func(*Executor)

// WithComparator registers an ordering for a key type, unlocking
// translation strategies that need sorted keys, e.g. the broadcast join.
func WithComparator(keyType string, cmp translate.Comparator) Option {
	return func(e *Executor) {
		e.translator.Context().RegisterComparator(keyType, cmp)
	}
}

// WithRule registers an extra translation rule ahead of the defaults for
// its kind, so it wins ties against them.
func WithRule(r translate.Rule) Option {
	return func(e *Executor) {
		e.extraRules = append(e.extraRules, r)
	}
}

// New returns an executor for the given configuration. A nil cfg uses the
// defaults.
func New(cfg *config.Config, opts ...Option) (*Executor, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Executor{
		cfg:        cfg,
		translator: translate.NewTranslator(translate.NewAcceptorContext(cfg.BroadcastJoinMaxBytes), nil),
		logger:     logger.GetLogger("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	// rebuild the translator now that options have contributed rules;
	// the acceptor context carries over so registered comparators stick
	rules := append(e.extraRules, e.defaultRules()...)
	e.translator = translate.NewTranslator(e.translator.Context(), rules)
	return e, nil
}

// Run lowers the flow and executes the resulting DAG. Lowering failures
// are fatal and nothing executes. Runtime failures scoped to single keys
// are aggregated and returned after the run completes; every sink still
// receives the output that was produced.
func (e *Executor) Run(f *flow.Flow) error {
	dag, err := e.translator.Translate(f)
	if err != nil {
		return err
	}

	ctx := newContext()
	var errs []error
	for _, n := range dag.Nodes() {
		inputs := make([][]flow.WindowedElement, len(n.Inputs))
		for i, in := range n.Inputs {
			inputs[i] = ctx.Output(in)
		}
		out, err := n.Rule.Run(n.Op, inputs)
		if err != nil {
			if out == nil {
				e.logger.Err(err).Msgf("node %s failed, aborting run", n.Op)
				return fmt.Errorf("engine: running %s: %w", n.Op, err)
			}
			e.logger.Err(err).Msgf("node %s reported partial failure", n.Op)
			errs = append(errs, err)
		}
		ctx.SetOutput(n, out)
		if n.Consumers > 1 && n.Op.Expensive {
			ctx.Materialize(n)
			e.logger.Debug().Msgf("materialized output of %s for %d consumers", n.Op, n.Consumers)
		}
	}

	for _, sb := range dag.Sinks() {
		for _, elem := range ctx.Output(sb.Node) {
			if err := sb.Sink.Write(elem.Value); err != nil {
				errs = append(errs, fmt.Errorf("engine: writing to sink of %s: %w", sb.Node.Op, err))
				break
			}
		}
		if err := sb.Sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("engine: closing sink of %s: %w", sb.Node.Op, err))
		}
	}
	return errors.Join(errs...)
}
