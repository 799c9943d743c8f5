package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/specialistvlad/esxigrid/internal/config"
	"github.com/specialistvlad/esxigrid/internal/ctxlog"
	"github.com/specialistvlad/esxigrid/internal/engine"
	"github.com/specialistvlad/esxigrid/internal/graph"
	"github.com/specialistvlad/esxigrid/internal/hclconfig"
	"github.com/specialistvlad/esxigrid/internal/metrics"
	"github.com/specialistvlad/esxigrid/internal/provider"
	"github.com/specialistvlad/esxigrid/internal/provider/memory"
	"github.com/specialistvlad/esxigrid/internal/provider/vsphere"
	"github.com/specialistvlad/esxigrid/internal/state"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	loader   config.Loader
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	store    *state.DB
	provider provider.Provider
	engine   *engine.Engine

	// closeProvider ends the provider session, when there is one.
	closeProvider func(context.Context) error

	mu        sync.RWMutex
	lastGraph *graph.Graph

	httpServer *http.Server
}

// Option customises NewApp, mostly for tests.
type Option func(*App)

// WithProvider replaces the backend selected by the configuration.
func WithProvider(p provider.Provider) Option {
	return func(a *App) { a.provider = p }
}

// WithLoader replaces the HCL loader.
func WithLoader(l config.Loader) Option {
	return func(a *App) { a.loader = l }
}

// NewApp is the constructor for the main application. It opens the state
// store, connects the provider and returns a ready engine. Logs go to outW.
func NewApp(ctx context.Context, outW io.Writer, cfg *Config, opts ...Option) (*App, error) {
	logger := newLogger(cfg, outW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	a := &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.loader == nil {
		a.loader = hclconfig.NewLoader()
	}

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)

	store, err := state.Open(ctx, cfg.State.Driver, cfg.State.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	a.store = store
	logger.Debug("State store opened.", "driver", cfg.State.Driver)

	if a.provider == nil {
		if err := a.connect(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	a.engine = engine.New(
		provider.Instrument(a.provider, a.metrics),
		a.store,
		engine.WithWorkers(cfg.Workers),
		engine.WithCallTimeout(cfg.CallTimeout),
		engine.WithMetrics(a.metrics),
		engine.WithPlanHook(a.publishGraph),
	)
	logger.Debug("Engine configured.", "workers", cfg.Workers, "call_timeout", cfg.CallTimeout)
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	switch a.config.Provider.Type {
	case ProviderMemory:
		a.logger.Warn("Using the in-memory provider: nothing is created on a host.")
		a.provider = memory.New()
	case ProviderVSphere:
		pc := a.config.Provider
		p, err := vsphere.Dial(ctx, vsphere.Options{
			Host:     pc.Host,
			Port:     pc.Port,
			Username: pc.Username,
			Password: pc.Password,
			Insecure: pc.Insecure,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to ESXi host: %w", err)
		}
		a.provider = p
		a.closeProvider = p.Close
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, a.config.Provider.Type)
	}
	return nil
}

// Context returns ctx carrying the application logger.
func (a *App) Context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}

// Close stops the healthcheck server and releases the provider session
// and the state store.
func (a *App) Close(ctx context.Context) error {
	ctx = a.Context(ctx)
	var errs []error
	if err := a.closeHealthCheckServer(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.closeProvider != nil {
		if err := a.closeProvider(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close provider session: %w", err))
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close state store: %w", err))
	}
	return errors.Join(errs...)
}
