package scheduler

import (
	"context"
	"fmt"
	"reflect"

	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/job"
)

// handleResult is called by the dispatcher, under s.mu, once a job's
// function has returned.
func (s *Scheduler) handleResult(ctx context.Context, j *job.Job, val any, err error) {
	defer s.publish()
	logger := ctxlog.FromContext(ctx)

	if j.Status() != job.Running {
		// Force-canceled while running. Its locks are already released.
		logger.Info("Discarding result of job that is no longer running.", "status", j.Status())
		return
	}

	t := j.Task()
	now := s.clock.Now()
	if err == nil {
		var values []any
		values, err = splitOutputs(val, len(t.Outputs))
		if err == nil {
			for i, out := range t.Outputs {
				out.Write(values[i], string(j.ID()), now)
			}
			if terr := j.Transition(ctx, job.Completed, now); terr != nil {
				logger.Error("Failed to complete job.", "error", terr)
			} else {
				logger.Info("Job completed.")
			}
		}
	}
	if err != nil {
		for _, out := range t.Outputs {
			out.ReleaseWithoutWrite()
		}
		if ferr := j.Fail(ctx, err, now); ferr != nil {
			logger.Error("Failed to fail job.", "error", ferr)
		}
		logger.Warn("Job failed.", "error", err)
	}

	s.rescan(ctx)
}

// splitOutputs maps a function result onto n outputs. A single output gets
// the whole value. Several outputs need a slice or array of exactly n
// elements. A task without outputs discards its result.
func splitOutputs(val any, n int) ([]any, error) {
	switch n {
	case 0:
		return nil, nil
	case 1:
		return []any{val}, nil
	}

	if vs, ok := val.([]any); ok {
		if len(vs) != n {
			return nil, fmt.Errorf("%w: function returned %d values for %d outputs", ErrOutputArity, len(vs), n)
		}
		return vs, nil
	}

	rv := reflect.ValueOf(val)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, fmt.Errorf("%w: function returned %T for %d outputs", ErrOutputArity, val, n)
	}
	if rv.Len() != n {
		return nil, fmt.Errorf("%w: function returned %d values for %d outputs", ErrOutputArity, rv.Len(), n)
	}
	values := make([]any, n)
	for i := range n {
		values[i] = rv.Index(i).Interface()
	}
	return values, nil
}

// rescan moves every blocked job whose inputs became readable to the
// dispatcher, oldest first.
func (s *Scheduler) rescan(ctx context.Context) {
	for _, j := range append([]*job.Job(nil), s.blocked...) {
		if _, ok := s.blockedIDs[j.ID()]; !ok {
			continue
		}
		if j.Status() != job.Blocked {
			s.unblock(j)
			continue
		}
		if !inputsReady(j.Task()) {
			continue
		}
		s.unblock(j)
		jctx := ctxlog.With(s.ctx, "task", j.Task().ID, "job", string(j.ID()))
		if err := j.Transition(jctx, job.Pending, s.clock.Now()); err != nil {
			ctxlog.FromContext(ctx).Error("Failed to unblock job.", "job", string(j.ID()), "error", err)
			continue
		}
		ctxlog.FromContext(jctx).Info("Job unblocked.")
		s.dispatcher.Dispatch(jctx, j)
	}
}
