package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/raulk/clock"
	"github.com/samber/lo"
	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/datanode"
	"github.com/specialistvlad/taskgrid/internal/dispatcher"
	"github.com/specialistvlad/taskgrid/internal/executor"
	"github.com/specialistvlad/taskgrid/internal/job"
	"github.com/specialistvlad/taskgrid/internal/jobstore"
	"github.com/specialistvlad/taskgrid/internal/jobstore/memstore"
	"github.com/specialistvlad/taskgrid/internal/metrics"
	"github.com/specialistvlad/taskgrid/internal/registry"
	"github.com/specialistvlad/taskgrid/internal/task"
)

var (
	// ErrJobNotFound is returned for an unknown job ID.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobUnfinished is returned when canceling or deleting a job that is
	// not terminal without forcing it.
	ErrJobUnfinished = errors.New("job is not finished")
	// ErrJobFinished is returned when canceling a job that is already
	// terminal.
	ErrJobFinished = errors.New("job is already finished")
	// ErrOutputArity is recorded on jobs whose function result does not fit
	// their outputs.
	ErrOutputArity = errors.New("output arity mismatch")
	// ErrClosed is returned by SubmitTask after Close.
	ErrClosed = errors.New("scheduler is closed")
)

// Scheduler orchestrates jobs. Create it with New.
type Scheduler struct {
	cfg      Config
	ctx      context.Context
	clock    clock.Clock
	store    jobstore.Store
	metrics  *metrics.Recorder
	registry *registry.Registry
	command  executor.CommandFactory
	exec     executor.Executor

	dispatcher *dispatcher.Dispatcher

	mu         sync.Mutex
	jobs       map[job.ID]*job.Job
	order      []*job.Job
	blocked    []*job.Job
	blockedIDs map[job.ID]struct{}
	closed     bool
}

// New builds a Scheduler and the executor described by cfg. The logger
// carried by ctx is used for everything the scheduler does in the
// background.
func New(ctx context.Context, cfg Config, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scheduler configuration: %w", err)
	}

	s := &Scheduler{
		cfg:        cfg,
		ctx:        context.WithoutCancel(ctx),
		clock:      clock.New(),
		jobs:       make(map[job.ID]*job.Job),
		blockedIDs: make(map[job.ID]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = memstore.New()
	}
	if s.exec == nil {
		exec, err := newExecutor(cfg, s.command)
		if err != nil {
			return nil, err
		}
		s.exec = exec
	}

	s.dispatcher = dispatcher.New(s.exec,
		dispatcher.WithClock(s.clock),
		dispatcher.WithMetrics(s.metrics),
	)
	s.dispatcher.Bind(s.handleResult, s.park, &s.mu)

	ctxlog.FromContext(ctx).Debug("Scheduler created.",
		"mode", cfg.Mode, "workers", s.dispatcher.Slots(), "isolation", cfg.Isolation)
	return s, nil
}

// Config returns the configuration the scheduler was built with.
func (s *Scheduler) Config() Config { return s.cfg }

// Store returns the job store the scheduler writes to.
func (s *Scheduler) Store() jobstore.Store { return s.store }

// NeedsToRun reports whether t has to execute. Only a skippable task whose
// outputs are all cacheable and up to date may be skipped.
func NeedsToRun(t *task.Task) bool {
	if !t.Skippable {
		return true
	}
	return !lo.EveryBy(t.Outputs, func(out datanode.Node) bool {
		ca, ok := out.(datanode.CacheableArtifact)
		return ok && ca.Cacheable() && ca.IsUpToDate()
	})
}

func inputsReady(t *task.Task) bool {
	return lo.EveryBy(t.Inputs, func(in datanode.Node) bool { return in.IsReadyForReading() })
}

// SubmitTask creates a job for t and either skips it, dispatches it or parks
// it until its inputs are ready. It never waits for the task to run; with
// the inline backend the task has simply already run by the time it
// returns.
//
// The only errors are precondition violations, in which case no job is
// created: an output already locked by another job (datanode.ErrAlreadyLocked),
// an unregistered function, or a closed scheduler.
func (s *Scheduler) SubmitTask(ctx context.Context, t *task.Task, opts ...SubmitOption) (*job.Job, error) {
	var o submitOptions
	for _, opt := range opts {
		opt(&o)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.publish()

	if s.closed {
		return nil, ErrClosed
	}
	if s.registry != nil {
		if _, err := s.registry.Lookup(t.Function.Name); err != nil {
			return nil, fmt.Errorf("task '%s': %w", t.ID, err)
		}
	}

	logger := ctxlog.FromContext(ctx).With("task", t.ID)
	j := job.New(t, s.clock.Now())
	logger = logger.With("job", string(j.ID()))
	ctx = ctxlog.WithLogger(s.ctx, logger)

	// The scheduler observes first so the store is current before user
	// callbacks see a transition.
	j.OnStatusChange(s.observe)
	for _, cb := range o.callbacks {
		j.OnStatusChange(cb)
	}

	if !NeedsToRun(t) {
		s.track(ctx, j)
		logger.Info("Outputs are up to date, skipping task.")
		if err := j.Transition(ctx, job.Skipped, s.clock.Now()); err != nil {
			return nil, err
		}
		return j, nil
	}

	if err := lockOutputs(j); err != nil {
		logger.Warn("Task rejected.", "error", err)
		return nil, err
	}
	s.track(ctx, j)

	if !inputsReady(t) {
		if err := j.Transition(ctx, job.Blocked, s.clock.Now()); err != nil {
			return nil, err
		}
		s.block(j)
		logger.Info("Job blocked on inputs.", "inputs", t.InputIDs())
		return j, nil
	}

	if err := j.Transition(ctx, job.Pending, s.clock.Now()); err != nil {
		return nil, err
	}
	logger.Info("Job dispatched.")
	s.dispatcher.Dispatch(ctx, j)
	return j, nil
}

// lockOutputs locks every output for j, or none of them.
func lockOutputs(j *job.Job) error {
	t := j.Task()
	locked := make([]datanode.Node, 0, len(t.Outputs))
	for _, out := range t.Outputs {
		if err := out.Lock(string(j.ID())); err != nil {
			for _, l := range locked {
				l.ReleaseWithoutWrite()
			}
			return fmt.Errorf("cannot lock output '%s' of task '%s': %w", out.ID(), t.ID, err)
		}
		locked = append(locked, out)
	}
	return nil
}

// track registers j and persists its initial record.
func (s *Scheduler) track(ctx context.Context, j *job.Job) {
	s.jobs[j.ID()] = j
	s.order = append(s.order, j)
	s.persist(ctx, j)
}

func (s *Scheduler) observe(j *job.Job, _, to job.Status) {
	s.metrics.Transition(to.String())
	s.persist(s.ctx, j)
}

func (s *Scheduler) persist(ctx context.Context, j *job.Job) {
	if err := s.store.Set(ctx, j.Record()); err != nil {
		ctxlog.FromContext(ctx).Error("Failed to persist job record.", "job", string(j.ID()), "error", err)
	}
}

func (s *Scheduler) block(j *job.Job) {
	s.blocked = append(s.blocked, j)
	s.blockedIDs[j.ID()] = struct{}{}
}

// park returns a queued job to the blocked set when one of its inputs was
// locked by a later submission before a slot freed up.
func (s *Scheduler) park(ctx context.Context, j *job.Job) {
	logger := ctxlog.FromContext(ctx)
	if err := j.Transition(ctx, job.Blocked, s.clock.Now()); err != nil {
		logger.Error("Failed to park job.", "error", err)
		return
	}
	s.block(j)
	logger.Info("Job inputs are being edited, blocked again.", "inputs", j.Task().InputIDs())
}

func (s *Scheduler) unblock(j *job.Job) {
	if _, ok := s.blockedIDs[j.ID()]; !ok {
		return
	}
	delete(s.blockedIDs, j.ID())
	for i, b := range s.blocked {
		if b == j {
			s.blocked = append(s.blocked[:i], s.blocked[i+1:]...)
			break
		}
	}
}

func (s *Scheduler) publish() {
	s.metrics.SetBlocked(len(s.blocked))
}

// Job returns the job with the given ID.
func (s *Scheduler) Job(id job.ID) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return j, nil
}

// Jobs returns every known job in submission order.
func (s *Scheduler) Jobs() []*job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*job.Job(nil), s.order...)
}

// BlockedJobs returns the jobs waiting for inputs, oldest first.
func (s *Scheduler) BlockedJobs() []*job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*job.Job(nil), s.blocked...)
}

// PendingJobs returns the jobs waiting for a worker slot, oldest first.
func (s *Scheduler) PendingJobs() []*job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatcher.Pending()
}

// Stalled returns the blocked jobs when nothing is pending or running. No
// completion can unblock them any more. It returns nil while work is in
// flight.
func (s *Scheduler) Stalled() []*job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.blocked) == 0 || len(s.dispatcher.Pending()) > 0 || s.dispatcher.FreeSlots() < s.dispatcher.Slots() {
		return nil
	}
	return append([]*job.Job(nil), s.blocked...)
}

// FreeSlots returns how many worker slots are idle.
func (s *Scheduler) FreeSlots() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatcher.FreeSlots()
}

// LatestJob returns the most recently submitted job for taskID.
func (s *Scheduler) LatestJob(taskID string) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.order) - 1; i >= 0; i-- {
		if s.order[i].Task().ID == taskID {
			return s.order[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no job for task %s", ErrJobNotFound, taskID)
}

// Close stops dispatching queued jobs, waits for running ones to be handled
// and closes the executor. Blocked and pending jobs keep their status.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	ctxlog.FromContext(s.ctx).Debug("Scheduler closing.")
	return s.dispatcher.Close()
}
