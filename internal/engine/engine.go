package engine

import (
	"context"
	"time"

	"github.com/specialistvlad/esxigrid/internal/graph"
	"github.com/specialistvlad/esxigrid/internal/metrics"
	"github.com/specialistvlad/esxigrid/internal/provider"
	"github.com/specialistvlad/esxigrid/internal/schema"
	"github.com/specialistvlad/esxigrid/internal/state"
)

const (
	// DefaultWorkers bounds concurrent provider calls.
	DefaultWorkers = 4
	// DefaultCallTimeout applies to provider calls whose resource sets no
	// lifecycle timeout.
	DefaultCallTimeout = 10 * time.Minute
)

// StateStore is the persistence the engine needs. *state.DB implements it.
type StateStore interface {
	List(ctx context.Context) ([]*state.Record, error)
	Put(ctx context.Context, r *state.Record) error
	Delete(ctx context.Context, name string) error
}

// Engine drives resources to their desired state.
type Engine struct {
	provider    provider.Provider
	store       StateStore
	table       *schema.Table
	metrics     *metrics.Metrics
	workers     int
	callTimeout time.Duration
	onPlan      func(command string, g *graph.Graph)
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets the worker pool size. Values below one mean one.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n < 1 {
			n = 1
		}
		e.workers = n
	}
}

// WithCallTimeout sets the default per-call timeout.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.callTimeout = d
		}
	}
}

// WithMetrics records resource outcomes and run durations in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithPlanHook calls fn with the graph of every run once its configuration
// is accepted and before any provider call.
func WithPlanHook(fn func(command string, g *graph.Graph)) Option {
	return func(e *Engine) { e.onPlan = fn }
}

// WithTable replaces the built-in kind table.
func WithTable(t *schema.Table) Option {
	return func(e *Engine) { e.table = t }
}

// New returns an engine applying changes through p and recording them in store.
func New(p provider.Provider, store StateStore, opts ...Option) *Engine {
	e := &Engine{
		provider:    p,
		store:       store,
		workers:     DefaultWorkers,
		callTimeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.table == nil {
		e.table = schema.Builtin()
	}
	return e
}

func (e *Engine) observe(res *Result) {
	if e.metrics == nil {
		return
	}
	for _, o := range res.Outcomes {
		e.metrics.ObserveResource(string(o.Action), string(o.Status))
	}
	e.metrics.ObserveRun(res.Command, res.Summary().Failed, res.Elapsed)
}
