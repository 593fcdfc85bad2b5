package scheduler

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/raulk/clock"
	"github.com/specialistvlad/taskgrid/internal/executor"
	"github.com/specialistvlad/taskgrid/internal/job"
	"github.com/specialistvlad/taskgrid/internal/jobstore"
	"github.com/specialistvlad/taskgrid/internal/metrics"
	"github.com/specialistvlad/taskgrid/internal/registry"
)

// Mode selects the executor backend.
type Mode string

const (
	// ModeInline runs every task synchronously in the submitting goroutine.
	ModeInline Mode = "inline"
	// ModeIsolatedPool runs up to Workers tasks in parallel.
	ModeIsolatedPool Mode = "isolated-pool"
)

// Isolation selects how an isolated pool separates task executions.
type Isolation string

const (
	// IsolationProcess runs each task in its own worker process.
	IsolationProcess Isolation = "process"
	// IsolationGoroutine runs each task on a goroutine with panic recovery.
	// A crash or runaway loop in a task affects the whole process.
	IsolationGoroutine Isolation = "goroutine"
)

// Config is fixed for the lifetime of a Scheduler.
type Config struct {
	Mode      Mode
	Workers   int
	Isolation Isolation
}

// DefaultConfig returns an inline configuration.
func DefaultConfig() Config {
	return Config{
		Mode:      ModeInline,
		Workers:   1,
		Isolation: IsolationProcess,
	}
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var result *multierror.Error
	switch c.Mode {
	case ModeInline:
	case ModeIsolatedPool:
		if c.Workers < 1 {
			result = multierror.Append(result, fmt.Errorf("nb_of_workers must be at least 1, got %d", c.Workers))
		}
		switch c.Isolation {
		case IsolationProcess, IsolationGoroutine:
		default:
			result = multierror.Append(result, fmt.Errorf("unknown isolation %q, expected %q or %q",
				c.Isolation, IsolationProcess, IsolationGoroutine))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unknown execution mode %q, expected %q or %q",
			c.Mode, ModeInline, ModeIsolatedPool))
	}
	return result.ErrorOrNil()
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithJobStore sets where job records are persisted. Defaults to an
// in-memory store.
func WithJobStore(s jobstore.Store) Option {
	return func(sc *Scheduler) { sc.store = s }
}

// WithClock sets the clock used for job timestamps and data node edits.
func WithClock(c clock.Clock) Option {
	return func(sc *Scheduler) { sc.clock = c }
}

// WithMetrics publishes scheduler metrics to r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(sc *Scheduler) { sc.metrics = r }
}

// WithRegistry makes SubmitTask reject tasks whose function is not
// registered, which matters when tasks run in worker processes that resolve
// functions by name.
func WithRegistry(r *registry.Registry) Option {
	return func(sc *Scheduler) { sc.registry = r }
}

// WithCommand sets how worker processes are started under process isolation.
// Defaults to executor.SelfCommand().
func WithCommand(f executor.CommandFactory) Option {
	return func(sc *Scheduler) { sc.command = f }
}

// WithExecutor replaces the executor built from Config.
func WithExecutor(e executor.Executor) Option {
	return func(sc *Scheduler) { sc.exec = e }
}

type submitOptions struct {
	callbacks []job.Callback
}

// SubmitOption configures a single submission.
type SubmitOption func(*submitOptions)

// WithCallbacks registers observers on the job before its first transition.
func WithCallbacks(cbs ...job.Callback) SubmitOption {
	return func(o *submitOptions) {
		o.callbacks = append(o.callbacks, cbs...)
	}
}

func newExecutor(cfg Config, command executor.CommandFactory) (executor.Executor, error) {
	if cfg.Mode == ModeInline {
		return executor.NewInline(), nil
	}
	var opts []executor.PoolOption
	if cfg.Isolation == IsolationProcess {
		if command == nil {
			command = executor.SelfCommand()
		}
		opts = append(opts, executor.WithProcessIsolation(command))
	}
	return executor.NewPool(cfg.Workers, opts...)
}
