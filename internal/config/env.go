package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment variable the configuration reads.
const EnvPrefix = "TASKGRID"

// envOverrides are the TASKGRID_* variables. Zero values mean unset.
type envOverrides struct {
	ExecutionMode string `envconfig:"EXECUTION_MODE"`
	NbOfWorkers   int    `envconfig:"NB_OF_WORKERS"`
	Isolation     string `envconfig:"ISOLATION"`
}

// ApplyEnv overlays TASKGRID_EXECUTION_MODE, TASKGRID_NB_OF_WORKERS and
// TASKGRID_ISOLATION onto c.
func ApplyEnv(c *Core) error {
	var o envOverrides
	if err := envconfig.Process(EnvPrefix, &o); err != nil {
		return fmt.Errorf("failed to read %s_* environment: %w", EnvPrefix, err)
	}
	if o.ExecutionMode != "" {
		c.ExecutionMode = o.ExecutionMode
	}
	if o.NbOfWorkers != 0 {
		c.NbOfWorkers = o.NbOfWorkers
	}
	if o.Isolation != "" {
		c.Isolation = o.Isolation
	}
	return nil
}
