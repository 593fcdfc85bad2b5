package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/specialistvlad/taskgrid/internal/config"
	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/datanode"
	"github.com/specialistvlad/taskgrid/internal/job"
	"github.com/specialistvlad/taskgrid/internal/jobstore"
	"github.com/specialistvlad/taskgrid/internal/jobstore/dsstore"
	"github.com/specialistvlad/taskgrid/internal/jobstore/memstore"
	"github.com/specialistvlad/taskgrid/internal/notify"
	"github.com/specialistvlad/taskgrid/internal/scheduler"
	"golang.org/x/sync/errgroup"
)

// ErrRunFailed is returned by Run when a job did not succeed.
var ErrRunFailed = errors.New("run failed")

// Run executes every task of the grid as one submission, waits until no
// job can make progress and writes a summary. The health check server, when
// configured, lives exactly as long as the run.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)

	if port := a.config.HealthcheckPort; port > 0 {
		g.Go(func() error { return a.serveHealthcheck(runCtx, port) })
	} else {
		a.logger.Debug("Health check server not started: disabled")
	}
	g.Go(func() error {
		defer stop()
		return a.execute(runCtx)
	})

	err := g.Wait()
	a.logger.Debug("App.Run method finished.")
	return err
}

func (a *App) execute(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	core := a.grid.Core
	if err := config.ApplyEnv(&core); err != nil {
		return err
	}
	a.config.applyTo(&core)
	a.grid.Core = core

	nodes, tasks, err := a.grid.Build(a.registry, a.clock)
	if err != nil {
		return fmt.Errorf("failed to build grid: %w", err)
	}
	if len(tasks) == 0 {
		logger.Warn("No tasks found in grid, execution not required.")
		return nil
	}

	store, closeStore, err := a.openJobStore()
	if err != nil {
		return err
	}
	defer closeStore()

	sched, err := scheduler.New(ctx, core.SchedulerConfig(),
		scheduler.WithJobStore(store),
		scheduler.WithClock(a.clock),
		scheduler.WithMetrics(a.metrics),
		scheduler.WithRegistry(a.registry),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := sched.Close(); err != nil {
			logger.Error("Scheduler close failed", "error", err)
		}
	}()

	progress := make(chan struct{}, 1)
	callbacks := []job.Callback{func(*job.Job, job.Status, job.Status) {
		select {
		case progress <- struct{}{}:
		default:
		}
	}}
	if a.config.NotifyURL != "" {
		client, err := notify.Dial(ctx, a.config.NotifyURL, notify.ClientOptions{Logger: logger})
		if err != nil {
			return fmt.Errorf("failed to connect notifier: %w", err)
		}
		defer client.Close()
		callbacks = append(callbacks, notify.New(client, logger).Callback())
	}

	logger.Info("🚀 Submitting tasks...", "tasks", len(tasks), "mode", core.ExecutionMode, "workers", core.NbOfWorkers)
	sub, err := sched.SubmitTasks(ctx, tasks, scheduler.WithCallbacks(callbacks...))
	if err != nil {
		return fmt.Errorf("failed to submit tasks: %w", err)
	}

	if err := a.await(ctx, sched, sub, progress); err != nil {
		return err
	}
	logger.Info("🏁 Execution finished.", "submission", sub.ID, "status", sub.Status())

	if err := writeSummary(a.outW, sub, nodes); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return submissionError(sub)
}

// await returns once every job of sub is terminal. Jobs left blocked with
// nothing in flight can never run; they are canceled so the run ends.
func (a *App) await(ctx context.Context, sched *scheduler.Scheduler, sub *job.Submission, progress <-chan struct{}) error {
	logger := ctxlog.FromContext(ctx)
	for {
		if allTerminal(sub) {
			return nil
		}
		if stalled := sched.Stalled(); len(stalled) > 0 {
			for _, j := range stalled {
				logger.Warn("Job inputs can never become ready, canceling.", "job", j.ID(), "task", j.Task().ID)
				err := sched.CancelJob(ctx, j.ID(), true)
				if err != nil && !errors.Is(err, scheduler.ErrJobFinished) {
					return fmt.Errorf("failed to cancel stalled job %s: %w", j.ID(), err)
				}
			}
			continue
		}
		select {
		case <-progress:
		case <-ctx.Done():
			return fmt.Errorf("waiting for jobs: %w", ctx.Err())
		}
	}
}

func allTerminal(sub *job.Submission) bool {
	for _, j := range sub.Jobs {
		if !j.Status().IsTerminal() {
			return false
		}
	}
	return true
}

func submissionError(sub *job.Submission) error {
	var failed int
	for _, j := range sub.Jobs {
		if !j.Status().IsSuccessful() {
			failed++
		}
	}
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d of %d jobs did not succeed", ErrRunFailed, failed, len(sub.Jobs))
}

// openJobStore returns the job store and its cleanup.
func (a *App) openJobStore() (jobstore.Store, func(), error) {
	if a.config.JobStoreDir == "" {
		return memstore.New(), func() {}, nil
	}
	store, err := dsstore.OpenLevelDB(a.config.JobStoreDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open job store: %w", err)
	}
	a.logger.Debug("Job store opened.", "dir", a.config.JobStoreDir)
	return store, func() { closeLogged(a.logger, "job store", store) }, nil
}

func closeLogged(logger *slog.Logger, what string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Error("Close failed", "what", what, "error", err)
	}
}

// dataNodes is the part of datanode.Manager the summary reads.
type dataNodes interface {
	All() []*datanode.DataNode
}
