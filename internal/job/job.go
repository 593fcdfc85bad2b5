package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/task"
)

// ErrInvalidTransition is returned for a status change the state machine does
// not allow.
var ErrInvalidTransition = errors.New("invalid job status transition")

// ID uniquely identifies one submission of a task.
type ID string

// NewID returns a fresh job ID for the given task.
func NewID(taskID string) ID {
	return ID(fmt.Sprintf("JOB_%s_%s", taskID, uuid.NewString()))
}

// Callback observes a status transition. It runs synchronously, in
// registration order, on the goroutine performing the transition.
type Callback func(j *Job, from, to Status)

// Job is one execution attempt of a task.
type Job struct {
	id        ID
	task      *task.Task
	createdAt time.Time

	mu        sync.Mutex
	status    Status
	err       error
	updatedAt time.Time
	callbacks []Callback
	done      chan struct{}
}

// New creates a job in the Created state.
func New(t *task.Task, createdAt time.Time) *Job {
	return &Job{
		id:        NewID(t.ID),
		task:      t,
		createdAt: createdAt,
		updatedAt: createdAt,
		status:    Created,
		done:      make(chan struct{}),
	}
}

// ID returns the job identifier.
func (j *Job) ID() ID { return j.id }

// Task returns the task this job executes.
func (j *Job) Task() *task.Task { return j.task }

// CreatedAt returns the creation timestamp.
func (j *Job) CreatedAt() time.Time { return j.createdAt }

// Status returns the current status.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Err returns the failure cause of a Failed job, or nil.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Done is closed once the job reaches a terminal status.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the job is terminal or ctx is done, and returns the
// status at that point.
func (j *Job) Wait(ctx context.Context) (Status, error) {
	select {
	case <-j.done:
		return j.Status(), nil
	case <-ctx.Done():
		return j.Status(), ctx.Err()
	}
}

// OnStatusChange registers an observer for every later transition.
func (j *Job) OnStatusChange(cb Callback) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.callbacks = append(j.callbacks, cb)
}

// Transition moves the job to status to at time ts and notifies observers.
func (j *Job) Transition(ctx context.Context, to Status, ts time.Time) error {
	return j.transition(ctx, to, nil, ts)
}

// Fail moves the job to Failed, recording cause.
func (j *Job) Fail(ctx context.Context, cause error, ts time.Time) error {
	return j.transition(ctx, Failed, cause, ts)
}

func (j *Job) transition(ctx context.Context, to Status, cause error, ts time.Time) error {
	j.mu.Lock()
	from := j.status
	if !isAllowedTransition(from, to) {
		j.mu.Unlock()
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, j.id, from, to)
	}
	j.status = to
	j.updatedAt = ts
	if to == Failed {
		j.err = cause
	}
	callbacks := append([]Callback(nil), j.callbacks...)
	j.mu.Unlock()

	logger := ctxlog.FromContext(ctx)
	logger.Debug("Job status changed.", "job", j.id, "from", from, "to", to)
	for i, cb := range callbacks {
		j.notify(logger, i, cb, from, to)
	}
	// Waiters wake only after every observer has seen the final status.
	if to.IsTerminal() {
		close(j.done)
	}
	return nil
}

// notify runs one callback, containing any panic it raises.
func (j *Job) notify(logger *slog.Logger, idx int, cb Callback, from, to Status) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job status callback panicked.", "job", j.id, "callback", idx, "panic", r)
		}
	}()
	cb(j, from, to)
}

// Record returns a snapshot suitable for persistence.
func (j *Job) Record() Record {
	j.mu.Lock()
	defer j.mu.Unlock()
	rec := Record{
		ID:        j.id,
		TaskID:    j.task.ID,
		Status:    j.status,
		CreatedAt: j.createdAt,
		UpdatedAt: j.updatedAt,
	}
	if j.err != nil {
		rec.Error = j.err.Error()
	}
	return rec
}

// Record is the persisted view of a job.
type Record struct {
	ID        ID        `json:"id"`
	TaskID    string    `json:"task_id"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Error     string    `json:"error,omitempty"`
}
