package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/esxigrid/internal/config"
	"github.com/specialistvlad/esxigrid/internal/ctxlog"
	"github.com/specialistvlad/esxigrid/internal/graph"
	"github.com/specialistvlad/esxigrid/internal/property"
	"github.com/specialistvlad/esxigrid/internal/provider"
	"github.com/specialistvlad/esxigrid/internal/state"
)

// Refresh reads every recorded resource back from the provider and stores
// the outputs it reports. Records of objects that no longer exist are
// dropped.
func (e *Engine) Refresh(ctx context.Context) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	ctx, logger := ctxlog.With(ctx, "runID", runID, "command", "refresh")

	records, err := e.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}
	g := graph.New()
	byName := make(map[string]*state.Record, len(records))
	for _, rec := range records {
		g.AddNode(rec.Name)
		byName[rec.Name] = rec
	}

	logger.Info("▶️ Refreshing state.", "records", len(records))
	res := &Result{
		RunID:    runID,
		Command:  "refresh",
		Outcomes: e.schedule(ctx, g, &refreshRunner{engine: e, records: byName}),
		Elapsed:  time.Since(start),
	}
	e.observe(res)
	logger.Info("✅ Refresh finished.", "summary", res.Summary().String())
	return res, res.Err()
}

type refreshRunner struct {
	engine  *Engine
	records map[string]*state.Record
}

func (r *refreshRunner) skip(id string, cause error) *Outcome {
	return &Outcome{Name: id, Kind: r.records[id].Kind, Action: ActionRead, Status: StatusSkipped, Err: cause}
}

func (r *refreshRunner) run(ctx context.Context, id string) *Outcome {
	e := r.engine
	rec := r.records[id]
	ctx, logger := ctxlog.With(ctx, "resource", rec.Name, "kind", rec.Kind)
	start := time.Now()
	o := &Outcome{Name: rec.Name, Kind: rec.Kind, Action: ActionRead, Identity: rec.Identity}

	if rec.Identity == "" {
		logger.Warn("Record has no identity yet, leaving it for the next apply.")
		o.Action = ActionNoop
		return finish(ctx, o, start, nil)
	}

	var (
		outputs property.Bag
		err     error
	)
	err = e.call(ctx, rec.Name, provider.OpRead, 0, func(ctx context.Context) error {
		outputs, err = e.provider.Read(ctx, rec.Kind, rec.Identity)
		return err
	})
	if errors.Is(err, provider.ErrNotFound) {
		logger.Warn("🔥 Object is gone, dropping its record.", "identity", rec.Identity)
		o.Action = ActionDelete
		return finish(ctx, o, start, e.store.Delete(context.WithoutCancel(ctx), rec.Name))
	}
	if err != nil {
		return finish(ctx, o, start, err)
	}

	o.Outputs = outputs
	updated := *rec
	updated.Outputs = outputs
	return finish(ctx, o, start, e.put(ctx, &updated))
}

// Graph validates model and returns its dependency graph without
// consulting state or the provider.
func (e *Engine) Graph(ctx context.Context, model *config.Model) (*graph.Graph, error) {
	p, err := e.prepare(ctx, model, nil)
	if err != nil {
		return nil, err
	}
	return p.graph, nil
}
