// Package mutate is the relation-aware mutation engine: it turns one
// logical create/update/delete call, possibly carrying nested relation
// payloads, into a correctly ordered sequence of primitive table
// operations. Parent rows are written before children reference them,
// implicit join tables are kept consistent, and delegate hierarchies are
// walked on every operation.
package mutate

import (
	"context"
	"database/sql"
	"time"

	"ormcore/internal/dbexec"
	"ormcore/internal/defaults"
	"ormcore/internal/dialect"
	"ormcore/internal/jointable"
	"ormcore/internal/logging"
	"ormcore/internal/observability"
	"ormcore/internal/schema"
	"ormcore/internal/txn"
)

// Entity is one row as a field-name keyed value map. Entities live only
// for the duration of a mutation call tree.
type Entity = map[string]any

// Event describes one top-level mutation to the hook call-outs.
type Event struct {
	Model     string
	Operation string
	Where     Entity
	Data      Entity
}

// Hooks are the engine's interception points. All fields are optional.
// The engine invokes them around every top-level mutation; it never
// interprets their behavior beyond propagating errors.
type Hooks struct {
	// BeforeMutation runs before the first statement; an error aborts
	// the mutation.
	BeforeMutation func(ctx context.Context, ev Event) error
	// AfterMutation runs after the last statement of a successful
	// mutation.
	AfterMutation func(ctx context.Context, ev Event, result any) error
	// Wrap intercepts the whole operation; implementations must call
	// next exactly once to proceed.
	Wrap func(ctx context.Context, ev Event, next func(context.Context) (any, error)) (any, error)
}

// Orchestrator coordinates all mutation primitives for one schema and
// one backend.
type Orchestrator struct {
	schema    *schema.Schema
	dialect   *dialect.Dialect
	exec      *dbexec.Executor
	defaults  *defaults.Resolver
	joins     *jointable.Coordinator
	hooks     Hooks
	log       *logging.Logger
	metrics   *observability.MutationMetrics
	isolation sql.IsolationLevel
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithHooks installs the interception call-outs.
func WithHooks(h Hooks) Option {
	return func(o *Orchestrator) { o.hooks = h }
}

// WithLogger overrides the default logger.
func WithLogger(log *logging.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// WithMetrics enables mutation metrics recording.
func WithMetrics(m *observability.MutationMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithDefaults overrides the generated-value resolver, mainly to pin
// clocks and id generators in tests.
func WithDefaults(r *defaults.Resolver) Option {
	return func(o *Orchestrator) { o.defaults = r }
}

// WithIsolation sets the isolation level used when the orchestrator
// itself opens a transaction.
func WithIsolation(level sql.IsolationLevel) Option {
	return func(o *Orchestrator) { o.isolation = level }
}

// New builds an orchestrator over a validated schema, a dialect, and an
// executor.
func New(s *schema.Schema, d *dialect.Dialect, exec *dbexec.Executor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		schema:    s,
		dialect:   d,
		exec:      exec,
		defaults:  defaults.NewResolver(),
		joins:     jointable.New(d, exec),
		log:       logging.FromContext(context.Background()),
		isolation: sql.LevelDefault,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Transaction runs fn atomically. When the context already carries a
// transaction it is reused (flattened) and commit/rollback remain with
// the outer owner; otherwise a new transaction is opened at the
// configured isolation level.
func (o *Orchestrator) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return txn.Run(ctx, o.exec.DB(), o.isolation, fn)
}

// instrument wraps one top-level operation with span, hook, metric, and
// log plumbing.
func (o *Orchestrator) instrument(ctx context.Context, ev Event, op func(ctx context.Context) (any, error)) (any, error) {
	ctx, span := startMutationSpan(ctx, "orm.mutation."+ev.Operation, ev.Model)
	defer span.End()

	start := time.Now()
	run := func(ctx context.Context) (any, error) {
		if o.hooks.BeforeMutation != nil {
			if err := o.hooks.BeforeMutation(ctx, ev); err != nil {
				return nil, err
			}
		}
		result, err := op(ctx)
		if err != nil {
			return nil, err
		}
		if o.hooks.AfterMutation != nil {
			if err := o.hooks.AfterMutation(ctx, ev, result); err != nil {
				return nil, err
			}
		}
		return result, nil
	}

	var result any
	var err error
	if o.hooks.Wrap != nil {
		result, err = o.hooks.Wrap(ctx, ev, run)
	} else {
		result, err = run(ctx)
	}

	elapsed := time.Since(start)
	o.metrics.Observe(ev.Model, ev.Operation, elapsed, err)
	finishMutationSpan(span, err)
	if err != nil {
		o.log.ErrorContext(ctx, "mutation failed",
			"model", ev.Model, "operation", ev.Operation, "error", err)
	} else {
		o.log.DebugContext(ctx, "mutation completed",
			"model", ev.Model, "operation", ev.Operation, "elapsed", elapsed)
	}
	return result, err
}
