// Package dsstore implements jobstore.Store on top of a go-datastore, storing
// each record as JSON under /jobs/<id>.
package dsstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	dssync "github.com/ipfs/go-datastore/sync"
	levelds "github.com/ipfs/go-ds-leveldb"
	"github.com/specialistvlad/taskgrid/internal/job"
	"github.com/specialistvlad/taskgrid/internal/jobstore"
)

var jobsPrefix = datastore.NewKey("/jobs")

// Store keeps job records in a datastore.
type Store struct {
	ds datastore.Datastore
}

// New wraps an existing datastore.
func New(ds datastore.Datastore) *Store {
	return &Store{ds: ds}
}

// NewInMemory creates a store over a mutex-guarded map datastore.
func NewInMemory() *Store {
	return New(dssync.MutexWrap(datastore.NewMapDatastore()))
}

// OpenLevelDB opens, or creates, a LevelDB backed store in dir.
func OpenLevelDB(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create job store directory %s: %w", dir, err)
	}
	ds, err := levelds.NewDatastore(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open job store in %s: %w", dir, err)
	}
	return New(ds), nil
}

func key(id job.ID) datastore.Key {
	return jobsPrefix.ChildString(string(id))
}

// Set stores rec as JSON.
func (s *Store) Set(ctx context.Context, rec job.Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", rec.ID, err)
	}
	return s.ds.Put(ctx, key(rec.ID), b)
}

// Get loads the record for id.
func (s *Store) Get(ctx context.Context, id job.ID) (job.Record, error) {
	b, err := s.ds.Get(ctx, key(id))
	if errors.Is(err, datastore.ErrNotFound) {
		return job.Record{}, jobstore.ErrNotFound
	}
	if err != nil {
		return job.Record{}, err
	}
	return decode(b)
}

// GetAll loads every record, oldest first.
func (s *Store) GetAll(ctx context.Context) ([]job.Record, error) {
	res, err := s.ds.Query(ctx, query.Query{Prefix: jobsPrefix.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	entries, err := res.Rest()
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	recs := make([]job.Record, 0, len(entries))
	for _, e := range entries {
		rec, err := decode(e.Value)
		if err != nil {
			return nil, fmt.Errorf("job entry %s: %w", e.Key, err)
		}
		recs = append(recs, rec)
	}
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
func (s *Store) Delete(ctx context.Context, id job.ID) error {
	err := s.ds.Delete(ctx, key(id))
	if errors.Is(err, datastore.ErrNotFound) {
		return nil
	}
	return err
}

// Close closes the underlying datastore.
func (s *Store) Close() error {
	return s.ds.Close()
}

func decode(b []byte) (job.Record, error) {
	var rec job.Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return job.Record{}, fmt.Errorf("failed to decode job record: %w", err)
	}
	return rec, nil
}
