package job

import (
	"context"

	"github.com/google/uuid"
)

// SubmissionStatus summarises the jobs of one batch submission.
type SubmissionStatus string

const (
	SubmissionSubmitted SubmissionStatus = "SUBMITTED"
	SubmissionBlocked   SubmissionStatus = "BLOCKED"
	SubmissionPending   SubmissionStatus = "PENDING"
	SubmissionRunning   SubmissionStatus = "RUNNING"
	SubmissionCompleted SubmissionStatus = "COMPLETED"
	SubmissionFailed    SubmissionStatus = "FAILED"
	SubmissionCanceled  SubmissionStatus = "CANCELED"
)

// Submission groups the jobs created by a single batch submission.
type Submission struct {
	ID   string
	Jobs []*Job
}

// NewSubmission wraps jobs under a fresh submission ID.
func NewSubmission(jobs []*Job) *Submission {
	return &Submission{
		ID:   "SUBMISSION_" + uuid.NewString(),
		Jobs: append([]*Job(nil), jobs...),
	}
}

// Status aggregates job statuses. A failure anywhere wins, then
// cancellation, then the most advanced non-terminal state.
func (s *Submission) Status() SubmissionStatus {
	var failed, canceled, running, pending, blocked, created bool
	for _, j := range s.Jobs {
		switch j.Status() {
		case Failed:
			failed = true
		case Canceled, Abandoned:
			canceled = true
		case Running:
			running = true
		case Pending:
			pending = true
		case Blocked:
			blocked = true
		case Created:
			created = true
		}
	}
	switch {
	case failed:
		return SubmissionFailed
	case canceled:
		return SubmissionCanceled
	case running:
		return SubmissionRunning
	case pending:
		return SubmissionPending
	case blocked:
		return SubmissionBlocked
	case created:
		return SubmissionSubmitted
	default:
		return SubmissionCompleted
	}
}

// Wait blocks until every job is terminal or ctx is done.
func (s *Submission) Wait(ctx context.Context) (SubmissionStatus, error) {
	for _, j := range s.Jobs {
		if _, err := j.Wait(ctx); err != nil {
			return s.Status(), err
		}
	}
	return s.Status(), nil
}
