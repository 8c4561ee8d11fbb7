package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/vk/matrixgrid/internal/config"
	"github.com/vk/matrixgrid/internal/ctxlog"
	"github.com/vk/matrixgrid/internal/inmemorystore"
	"github.com/vk/matrixgrid/internal/registry"
	"github.com/vk/matrixgrid/internal/result"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	ctx      context.Context
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	registry *registry.Registry
	model    *config.Model
	states   *inmemorystore.Store

	mu         sync.Mutex
	results    *result.Aggregator
	httpServer *http.Server
}

// NewApp is the constructor for the main application. It builds the App's own
// logger and registry, loads and validates every declaration and selects the
// jobs to run. Any problem is returned wrapped in config.ErrConfiguration.
func NewApp(outW io.Writer, cfg *Config, modules ...registry.Module) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	reg.RegisterModules(modules...)
	logger.Debug("All Go modules registered.", "count", len(modules))

	app := &App{
		ctx:      ctx,
		outW:     outW,
		logger:   logger,
		config:   cfg,
		registry: reg,
		states:   inmemorystore.New(),
	}
	if err := app.load(ctx); err != nil {
		return nil, err
	}
	return app, nil
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Jobs returns the jobs selected for the run.
func (a *App) Jobs() []*config.Job {
	return a.model.Jobs
}

func (a *App) setResults(agg *result.Aggregator) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results = agg
}

func (a *App) currentResults() *result.Aggregator {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.results
}
