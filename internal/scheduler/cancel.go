package scheduler

import (
	"context"
	"fmt"

	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/job"
)

// CancelJob cancels a job that has not finished. Without force this is
// refused with ErrJobUnfinished so a locked output is never orphaned by
// accident. A forced cancel releases the job's output locks without writing
// and abandons every blocked job that, directly or through other blocked
// jobs, waits for one of those outputs.
//
// A running job cannot be interrupted; its eventual result is discarded.
func (s *Scheduler) CancelJob(ctx context.Context, id job.ID, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.publish()

	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if j.Status().IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobFinished, id, j.Status())
	}
	if !force {
		return fmt.Errorf("%w: %s is %s, cancel must be forced", ErrJobUnfinished, id, j.Status())
	}

	ctx = ctxlog.WithLogger(s.ctx, ctxlog.FromContext(ctx))
	s.cancel(ctx, j, job.Canceled)
	s.rescan(ctx)
	return nil
}

// DeleteJob forgets a job and removes its record from the store. A job that
// has not finished is only deleted with force, which cancels it first.
func (s *Scheduler) DeleteJob(ctx context.Context, id job.ID, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.publish()

	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	ctx = ctxlog.WithLogger(s.ctx, ctxlog.FromContext(ctx))
	if !j.Status().IsTerminal() {
		if !force {
			return fmt.Errorf("%w: %s is %s, delete must be forced", ErrJobUnfinished, id, j.Status())
		}
		s.cancel(ctx, j, job.Canceled)
		s.rescan(ctx)
	}

	delete(s.jobs, id)
	for i, o := range s.order {
		if o == j {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete job %s from store: %w", id, err)
	}
	ctxlog.FromContext(ctx).Info("Job deleted.", "job", string(id))
	return nil
}

// cancel moves j to the terminal status to, releases its output locks and
// abandons the blocked jobs that depend on it.
func (s *Scheduler) cancel(ctx context.Context, j *job.Job, to job.Status) {
	logger := ctxlog.FromContext(ctx).With("job", string(j.ID()))
	switch j.Status() {
	case job.Blocked:
		s.unblock(j)
	case job.Pending:
		s.dispatcher.Remove(j)
	}
	if err := j.Transition(ctx, to, s.clock.Now()); err != nil {
		logger.Error("Failed to cancel job.", "error", err)
		return
	}
	for _, out := range j.Task().Outputs {
		out.ReleaseWithoutWrite()
	}
	logger.Info("Job stopped.", "status", to)

	s.abandonConsumers(ctx, j)
}

// abandonConsumers abandons blocked jobs reading any output of j. Each
// abandoned job recurses into its own consumers.
func (s *Scheduler) abandonConsumers(ctx context.Context, j *job.Job) {
	produced := make(map[string]struct{}, len(j.Task().Outputs))
	for _, out := range j.Task().Outputs {
		produced[out.ID()] = struct{}{}
	}
	for _, b := range append([]*job.Job(nil), s.blocked...) {
		if b.Status() != job.Blocked {
			continue
		}
		for _, in := range b.Task().Inputs {
			if _, ok := produced[in.ID()]; ok {
				s.cancel(ctx, b, job.Abandoned)
				break
			}
		}
	}
}
