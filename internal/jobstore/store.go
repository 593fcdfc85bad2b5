// Package jobstore defines where job records live once the scheduler has
// produced them.
//
// # Why Job Store Exists
//
// The scheduler owns the live *job.Job values, but callers want to query
// jobs after the fact: by ID, all of them, or the most recent attempt of a
// given task. The scheduler calls Set on every status transition so the
// store always reflects the latest state; it never reads from the store to
// make scheduling decisions.
//
// # Implementations
//
//   - memstore: ephemeral, sync.Map based, for a single run.
//   - dsstore: JSON records in any go-datastore, including LevelDB on disk,
//     so a later process can inspect what an earlier run did.
package jobstore

import (
	"context"
	"errors"
	"sort"

	"github.com/specialistvlad/taskgrid/internal/job"
)

// ErrNotFound is returned when no record matches the query.
var ErrNotFound = errors.New("job record not found")

// Store persists job records.
//
// Implementations MUST be safe for concurrent use.
type Store interface {
	// Set inserts or replaces the record with the same ID.
	Set(ctx context.Context, rec job.Record) error

	// Get returns the record for id, or ErrNotFound.
	Get(ctx context.Context, id job.ID) (job.Record, error)

	// GetAll returns every record, oldest first.
	GetAll(ctx context.Context) ([]job.Record, error)

	// GetLatest returns the most recently created record for taskID, or
	// ErrNotFound.
	GetLatest(ctx context.Context, taskID string) (job.Record, error)

	// Delete removes the record for id. Deleting a missing record is not an
	// error.
	Delete(ctx context.Context, id job.ID) error
}

// SortRecords orders records by creation time, then ID.
func SortRecords(recs []job.Record) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		}
		return recs[i].ID < recs[j].ID
	})
}

// Latest picks the most recently created record for taskID.
func Latest(recs []job.Record, taskID string) (job.Record, error) {
	var (
		best  job.Record
		found bool
	)
	for _, r := range recs {
		if r.TaskID != taskID {
			continue
		}
		if !found || r.CreatedAt.After(best.CreatedAt) ||
			(r.CreatedAt.Equal(best.CreatedAt) && r.ID > best.ID) {
			best, found = r, true
		}
	}
	if !found {
		return job.Record{}, ErrNotFound
	}
	return best, nil
}
