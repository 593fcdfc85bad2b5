package scheduler

import (
	"context"
	"fmt"

	"github.com/specialistvlad/taskgrid/internal/job"
	"github.com/specialistvlad/taskgrid/internal/task"
	"github.com/specialistvlad/taskgrid/internal/taskgraph"
)

// SubmitTasks submits tasks as one batch. Producers are submitted before
// their consumers, otherwise tasks keep their given order. A cyclic set of
// tasks is rejected before anything is submitted. If a submission fails, the
// jobs already created keep running and are returned with the error.
func (s *Scheduler) SubmitTasks(ctx context.Context, tasks []*task.Task, opts ...SubmitOption) (*job.Submission, error) {
	g, err := taskgraph.FromTasks(tasks)
	if err != nil {
		return nil, err
	}
	order, err := g.Order()
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*task.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	jobs := make([]*job.Job, 0, len(order))
	for _, id := range order {
		j, err := s.SubmitTask(ctx, byID[id], opts...)
		if err != nil {
			return job.NewSubmission(jobs), fmt.Errorf("failed to submit task '%s': %w", id, err)
		}
		jobs = append(jobs, j)
	}
	return job.NewSubmission(jobs), nil
}
