// Package storetest holds the behavior every jobstore.Store must share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/specialistvlad/taskgrid/internal/job"
	"github.com/specialistvlad/taskgrid/internal/jobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises a store built by newStore. Each subtest gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) jobstore.Store) {
	base := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := func(id, taskID string, created time.Duration, status job.Status) job.Record {
		return job.Record{
			ID:        job.ID(id),
			TaskID:    taskID,
			Status:    status,
			CreatedAt: base.Add(created),
			UpdatedAt: base.Add(created),
		}
	}

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "JOB_nope")
		assert.ErrorIs(t, err, jobstore.ErrNotFound)
	})

	t.Run("set replaces", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		r := rec("JOB_a_1", "a", 0, job.Running)
		require.NoError(t, s.Set(ctx, r))

		r.Status = job.Failed
		r.Error = "boom"
		require.NoError(t, s.Set(ctx, r))

		got, err := s.Get(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, job.Failed, got.Status)
		assert.Equal(t, "boom", got.Error)
		assert.True(t, r.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("get all is ordered", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Set(ctx, rec("JOB_c", "c", 2*time.Second, job.Pending)))
		require.NoError(t, s.Set(ctx, rec("JOB_a", "a", 0, job.Completed)))
		require.NoError(t, s.Set(ctx, rec("JOB_b", "b", time.Second, job.Blocked)))

		all, err := s.GetAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, job.ID("JOB_a"), all[0].ID)
		assert.Equal(t, job.ID("JOB_b"), all[1].ID)
		assert.Equal(t, job.ID("JOB_c"), all[2].ID)
	})

	t.Run("latest per task", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Set(ctx, rec("JOB_t_old", "t", 0, job.Completed)))
		require.NoError(t, s.Set(ctx, rec("JOB_t_new", "t", time.Minute, job.Skipped)))
		require.NoError(t, s.Set(ctx, rec("JOB_u", "u", time.Hour, job.Completed)))

		latest, err := s.GetLatest(ctx, "t")
		require.NoError(t, err)
		assert.Equal(t, job.ID("JOB_t_new"), latest.ID)

		_, err = s.GetLatest(ctx, "missing")
		assert.ErrorIs(t, err, jobstore.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		r := rec("JOB_d", "d", 0, job.Canceled)
		require.NoError(t, s.Set(ctx, r))

		require.NoError(t, s.Delete(ctx, r.ID))
		require.NoError(t, s.Delete(ctx, r.ID))

		_, err := s.Get(ctx, r.ID)
		assert.ErrorIs(t, err, jobstore.ErrNotFound)
	})

	t.Run("concurrent writers", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				id := fmt.Sprintf("JOB_p_%02d", i)
				assert.NoError(t, s.Set(ctx, rec(id, "p", time.Duration(i)*time.Second, job.Running)))
			}()
		}
		wg.Wait()

		all, err := s.GetAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 20)
	})
}
