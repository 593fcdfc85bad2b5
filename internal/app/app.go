package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/raulk/clock"
	"github.com/specialistvlad/taskgrid/internal/config"
	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/metrics"
	"github.com/specialistvlad/taskgrid/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	registry *registry.Registry
	grid     *config.Grid
	clock    clock.Clock

	promRegistry *prometheus.Registry
	metrics      *metrics.Recorder
}

// NewRegistry builds the function registry from modules, falling back to
// CoreModules when none are given.
func NewRegistry(modules ...registry.Module) *registry.Registry {
	if len(modules) == 0 {
		modules = CoreModules()
	}
	return registry.NewWithModules(modules...)
}

// NewApp is the constructor for the main application. The run summary goes
// to outW and logs go to logW. The grid is loaded and checked against the
// registered functions before NewApp returns.
func NewApp(ctx context.Context, outW, logW io.Writer, appConfig *Config, modules ...registry.Module) (*App, error) {
	logger := NewLogger(appConfig, logW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	grid, err := config.Load(ctx, appConfig.GridPaths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Debug("Configuration loaded.", "data_nodes", len(grid.DataNodes), "tasks", len(grid.Tasks))

	reg := NewRegistry(modules...)
	logger.Debug("All Go modules registered.", "functions", reg.Names())

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder, err := metrics.New(promRegistry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return &App{
		outW:         outW,
		logger:       logger,
		config:       appConfig,
		registry:     reg,
		grid:         grid,
		clock:        clock.New(),
		promRegistry: promRegistry,
		metrics:      recorder,
	}, nil
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Gatherer exposes the application's metrics.
func (a *App) Gatherer() prometheus.Gatherer {
	return a.promRegistry
}
