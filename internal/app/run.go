package app

import (
	"context"
	"fmt"

	"github.com/specialistvlad/esxigrid/internal/config"
	"github.com/specialistvlad/esxigrid/internal/ctxlog"
	"github.com/specialistvlad/esxigrid/internal/engine"
	"github.com/specialistvlad/esxigrid/internal/graph"
	"github.com/specialistvlad/esxigrid/internal/state"
)

// Load reads the configured HCL paths into a model.
func (a *App) Load(ctx context.Context) (*config.Model, error) {
	ctx = a.Context(ctx)
	if len(a.config.ConfigPaths) == 0 {
		return nil, fmt.Errorf("%w: no configuration paths given", ErrInvalidConfig)
	}
	model, err := a.loader.Load(ctx, a.config.ConfigPaths...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	ctxlog.FromContext(ctx).Debug("Configuration loaded.", "paths", a.config.ConfigPaths, "resources", len(model.Resources))
	return model, nil
}

// Up converges the infrastructure on the configuration.
func (a *App) Up(ctx context.Context) (*engine.Result, error) {
	model, err := a.Load(ctx)
	if err != nil {
		return nil, err
	}
	return a.engine.Apply(a.Context(ctx), model)
}

// Preview reports what Up would do without changing anything.
func (a *App) Preview(ctx context.Context) (*engine.Result, error) {
	model, err := a.Load(ctx)
	if err != nil {
		return nil, err
	}
	return a.engine.Preview(a.Context(ctx), model)
}

// Destroy deletes every recorded resource.
func (a *App) Destroy(ctx context.Context) (*engine.Result, error) {
	return a.engine.Destroy(a.Context(ctx))
}

// Refresh reads every recorded resource back from the provider.
func (a *App) Refresh(ctx context.Context) (*engine.Result, error) {
	return a.engine.Refresh(a.Context(ctx))
}

// Graph loads and validates the configuration and returns its dependency
// graph.
func (a *App) Graph(ctx context.Context) (*graph.Graph, error) {
	model, err := a.Load(ctx)
	if err != nil {
		return nil, err
	}
	g, err := a.engine.Graph(a.Context(ctx), model)
	if err != nil {
		return nil, err
	}
	a.setGraph(g)
	return g, nil
}

// Records lists the state store.
func (a *App) Records(ctx context.Context) ([]*state.Record, error) {
	return a.store.List(a.Context(ctx))
}

// publishGraph keeps the graph of the latest configuration for the HTTP
// surface. Destroy and refresh graphs hold only recorded resources and are
// not published.
func (a *App) publishGraph(command string, g *graph.Graph) {
	if command == "up" || command == "preview" {
		a.setGraph(g)
	}
}

func (a *App) setGraph(g *graph.Graph) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastGraph = g
}

func (a *App) graph() *graph.Graph {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastGraph
}
