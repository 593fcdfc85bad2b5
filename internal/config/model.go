package config

import (
	"time"

	"github.com/specialistvlad/taskgrid/internal/scheduler"
)

// Grid is the format-agnostic result of loading configuration.
type Grid struct {
	Core      Core
	DataNodes []*DataNode
	Tasks     []*Task
}

// Core holds the execution settings.
type Core struct {
	ExecutionMode string
	NbOfWorkers   int
	Isolation     string
}

// DefaultCore returns the built-in settings.
func DefaultCore() Core {
	d := scheduler.DefaultConfig()
	return Core{
		ExecutionMode: string(d.Mode),
		NbOfWorkers:   d.Workers,
		Isolation:     string(d.Isolation),
	}
}

// SchedulerConfig converts the settings for scheduler.New.
func (c Core) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		Mode:      scheduler.Mode(c.ExecutionMode),
		Workers:   c.NbOfWorkers,
		Isolation: scheduler.Isolation(c.Isolation),
	}
}

// DataNode declares one data node.
type DataNode struct {
	ID             string
	Default        any
	HasDefault     bool
	Cacheable      bool
	ValidityPeriod time.Duration
}

// Task declares one task. Inputs and Outputs are data node IDs.
type Task struct {
	ID        string
	Function  string
	Inputs    []string
	Outputs   []string
	Skippable bool
}
