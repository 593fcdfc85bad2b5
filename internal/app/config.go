package app

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/specialistvlad/taskgrid/internal/config"
)

// Config holds all the necessary configuration for an App instance to run.
// Empty execution fields leave the grid file and environment values in
// place.
type Config struct {
	GridPaths []string

	ExecutionMode string
	NbOfWorkers   int
	Isolation     string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int

	// JobStoreDir persists job records in a LevelDB database. Empty keeps
	// them in memory.
	JobStoreDir string
	// NotifyURL is a Socket.IO server that receives job status events.
	NotifyURL string
}

// NewConfig validates cfg and returns a copy.
func NewConfig(cfg Config) (*Config, error) {
	var result *multierror.Error
	if len(cfg.GridPaths) == 0 {
		result = multierror.Append(result, errors.New("at least one grid path is required"))
	}
	switch cfg.LogFormat {
	case "", "text", "json":
	default:
		result = multierror.Append(result, fmt.Errorf("invalid log-format '%s': must be 'text' or 'json'", cfg.LogFormat))
	}
	if _, ok := logLevels[cfg.LogLevel]; !ok && cfg.LogLevel != "" {
		result = multierror.Append(result, fmt.Errorf("invalid log-level '%s': must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel))
	}
	if cfg.NbOfWorkers < 0 {
		result = multierror.Append(result, fmt.Errorf("workers must not be negative, got %d", cfg.NbOfWorkers))
	}
	if cfg.HealthcheckPort < 0 {
		result = multierror.Append(result, fmt.Errorf("healthcheck-port must not be negative, got %d", cfg.HealthcheckPort))
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyTo layers the configuration over core, which already holds the grid
// file and environment values.
func (c *Config) applyTo(core *config.Core) {
	if c.ExecutionMode != "" {
		core.ExecutionMode = c.ExecutionMode
	}
	if c.NbOfWorkers != 0 {
		core.NbOfWorkers = c.NbOfWorkers
	}
	if c.Isolation != "" {
		core.Isolation = c.Isolation
	}
}
