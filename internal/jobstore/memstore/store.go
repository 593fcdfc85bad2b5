// Package memstore provides an ephemeral, thread-safe, in-memory
// implementation of jobstore.Store.
//
// Records are kept in a sync.Map keyed by job ID. The scheduler writes on
// every transition while callers read concurrently, and keys are
// independent, which is the access pattern sync.Map is built for.
package memstore

import (
	"context"
	"sync"

	"github.com/specialistvlad/taskgrid/internal/job"
	"github.com/specialistvlad/taskgrid/internal/jobstore"
)

// Store is an in-memory jobstore.Store.
type Store struct {
	records sync.Map // Key: job.ID, Value: job.Record
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// Set stores rec under its ID.
func (s *Store) Set(_ context.Context, rec job.Record) error {
	s.records.Store(rec.ID, rec)
	return nil
}

// Get returns the record for id.
func (s *Store) Get(_ context.Context, id job.ID) (job.Record, error) {
	v, ok := s.records.Load(id)
	if !ok {
		return job.Record{}, jobstore.ErrNotFound
	}
	return v.(job.Record), nil
}

// GetAll returns every record, oldest first.
func (s *Store) GetAll(_ context.Context) ([]job.Record, error) {
	var recs []job.Record
	s.records.Range(func(_, v any) bool {
		recs = append(recs, v.(job.Record))
		return true
	})
	jobstore.SortRecords(recs)
	return recs, nil
}

// GetLatest returns the newest record for taskID.
func (s *Store) GetLatest(ctx context.Context, taskID string) (job.Record, error) {
	recs, err := s.GetAll(ctx)
	if err != nil {
		return job.Record{}, err
	}
	return jobstore.Latest(recs, taskID)
}

// Delete removes the record for id.
func (s *Store) Delete(_ context.Context, id job.ID) error {
	s.records.Delete(id)
	return nil
}
