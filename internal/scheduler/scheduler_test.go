package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/raulk/clock"
	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/datanode"
	"github.com/specialistvlad/taskgrid/internal/executor"
	"github.com/specialistvlad/taskgrid/internal/job"
	"github.com/specialistvlad/taskgrid/internal/jobstore/memstore"
	"github.com/specialistvlad/taskgrid/internal/metrics"
	"github.com/specialistvlad/taskgrid/internal/registry"
	"github.com/specialistvlad/taskgrid/internal/task"
	"github.com/specialistvlad/taskgrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() *registry.Registry {
	r := registry.New()
	r.RegisterFunc("double", func(args ...any) (any, error) { return args[0].(int) * 2, nil })
	r.RegisterFunc("divmod", func(args ...any) (any, error) {
		a, b := args[0].(int), args[1].(int)
		return []any{a / b, a % b}, nil
	})
	r.RegisterFunc("rendezvous", rendezvous)
	return r
}

// rendezvous announces itself by creating a file named args[1] in the
// directory args[0], then waits for a "release" file there.
func rendezvous(args ...any) (any, error) {
	dir, name := args[0].(string), args[1].(string)
	if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
		return nil, err
	}
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(filepath.Join(dir, "release")); err == nil {
			return name, nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil, fmt.Errorf("%s was never released", name)
}

func TestMain(m *testing.M) {
	testutil.WorkerMain(m, testRegistry())
}

func inlineConfig() Config {
	return DefaultConfig()
}

func poolConfig(workers int) Config {
	return Config{Mode: ModeIsolatedPool, Workers: workers, Isolation: IsolationGoroutine}
}

func newScheduler(t *testing.T, cfg Config, opts ...Option) *Scheduler {
	t.Helper()
	s, err := New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func fn(name string, f task.Func) task.Function {
	return task.Function{Name: name, Fn: f}
}

func nodes(ns ...*datanode.DataNode) []datanode.Node {
	out := make([]datanode.Node, len(ns))
	for i, n := range ns {
		out[i] = n
	}
	return out
}

func waitJob(t *testing.T, j *job.Job) job.Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	status, err := j.Wait(ctx)
	require.NoError(t, err, "job %s did not finish", j.ID())
	return status
}

// gate blocks task functions until released and reports when they start.
type gate struct {
	started chan string
	release chan struct{}
}

func newGate() *gate {
	return &gate{started: make(chan string, 8), release: make(chan struct{})}
}

func (g *gate) fn(name string, result any) task.Function {
	return fn(name, func(...any) (any, error) {
		g.started <- name
		<-g.release
		return result, nil
	})
}

func (g *gate) awaitStart(t *testing.T, n int) []string {
	t.Helper()
	var names []string
	for range n {
		select {
		case name := <-g.started:
			names = append(names, name)
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d of %d functions started", len(names), n)
		}
	}
	return names
}

// statusLog records every target status a job goes through.
type statusLog struct {
	mu   sync.Mutex
	seen []job.Status
}

func (l *statusLog) callback(_ *job.Job, _, to job.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, to)
}

func (l *statusLog) statuses() []job.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]job.Status(nil), l.seen...)
}

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "default", cfg: DefaultConfig()},
		{name: "goroutine pool", cfg: poolConfig(4)},
		{name: "process pool", cfg: Config{Mode: ModeIsolatedPool, Workers: 1, Isolation: IsolationProcess}},
		{name: "inline ignores workers", cfg: Config{Mode: ModeInline, Workers: 0}},
		{name: "unknown mode", cfg: Config{Mode: "cluster"}, wantErr: "unknown execution mode"},
		{name: "zero workers", cfg: Config{Mode: ModeIsolatedPool, Isolation: IsolationGoroutine}, wantErr: "nb_of_workers"},
		{name: "unknown isolation", cfg: Config{Mode: ModeIsolatedPool, Workers: 1, Isolation: "vm"}, wantErr: "unknown isolation"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestConfig_ValidateReportsEveryProblem(t *testing.T) {
	err := Config{Mode: ModeIsolatedPool, Workers: 0, Isolation: "vm"}.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "nb_of_workers")
	assert.Contains(t, err.Error(), "unknown isolation")
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(context.Background(), Config{Mode: "cluster"})
	assert.ErrorContains(t, err, "invalid scheduler configuration")
}

func TestSubmitTask_InlineDouble(t *testing.T) {
	// --- Arrange ---
	s := newScheduler(t, inlineConfig())
	x := datanode.New("x", datanode.WithDefault(21))
	y := datanode.New("y", datanode.WithDefault(0))
	double := task.New("double", fn("double", func(args ...any) (any, error) {
		return args[0].(int) * 2, nil
	}), nodes(x), nodes(y), false)

	// --- Act ---
	j, err := s.SubmitTask(context.Background(), double)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, job.Completed, j.Status())
	assert.Equal(t, 42, y.Read())
	assert.True(t, y.IsReadyForReading())
	last := y.Edits()[len(y.Edits())-1]
	assert.Equal(t, string(j.ID()), last.JobID)
	assert.Equal(t, string(j.ID()), last.WriterID)
	assert.Len(t, y.Edits(), 2)
}

func TestSubmitTask_SkipsFreshCacheableOutputs(t *testing.T) {
	// --- Arrange ---
	s := newScheduler(t, inlineConfig())
	z := datanode.New("z", datanode.WithCacheable(true))
	calls := 0
	div := task.New("div", fn("div", func(...any) (any, error) {
		calls++
		return 10 / 2, nil
	}), nil, nodes(z), true)

	// --- Act ---
	first, err := s.SubmitTask(context.Background(), div)
	require.NoError(t, err)
	second, err := s.SubmitTask(context.Background(), div)
	require.NoError(t, err)

	// --- Assert ---
	assert.Equal(t, job.Completed, first.Status())
	assert.Equal(t, job.Skipped, second.Status())
	assert.Equal(t, 1, calls)
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Len(t, z.Edits(), 1)
	_, locked := z.EditInProgress()
	assert.False(t, locked)

	latest, err := s.LatestJob("div")
	require.NoError(t, err)
	assert.Equal(t, second.ID(), latest.ID())
}

func TestSubmitTask_SkippedJobFiresCallbacks(t *testing.T) {
	s := newScheduler(t, inlineConfig())
	z := datanode.New("z", datanode.WithCacheable(true), datanode.WithDefault(1))
	called := false
	tk := task.New("t", fn("t", func(...any) (any, error) {
		called = true
		return nil, nil
	}), nil, nodes(z), true)
	var log statusLog

	j, err := s.SubmitTask(context.Background(), tk, WithCallbacks(log.callback))

	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, []job.Status{job.Skipped}, log.statuses())
	assert.True(t, j.Status().IsTerminal())
}

func TestNeedsToRun(t *testing.T) {
	fresh := func() *datanode.DataNode {
		return datanode.New("fresh", datanode.WithCacheable(true), datanode.WithDefault(1))
	}
	testCases := []struct {
		name      string
		outputs   []datanode.Node
		skippable bool
		want      bool
	}{
		{name: "not skippable", outputs: nodes(fresh()), skippable: false, want: true},
		{name: "all fresh", outputs: nodes(fresh(), fresh()), skippable: true, want: false},
		{name: "not cacheable", outputs: nodes(fresh(), datanode.New("nc", datanode.WithDefault(1))), skippable: true, want: true},
		{name: "never written", outputs: nodes(datanode.New("empty", datanode.WithCacheable(true))), skippable: true, want: true},
		{name: "no outputs", skippable: true, want: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tk := task.New("t", fn("noop", nil), nil, tc.outputs, tc.skippable)
			assert.Equal(t, tc.want, NeedsToRun(tk))
		})
	}
}

func TestNeedsToRun_ValidityPeriod(t *testing.T) {
	// --- Arrange ---
	mock := clock.NewMock()
	z := datanode.New("z",
		datanode.WithClock(mock),
		datanode.WithCacheable(true),
		datanode.WithValidityPeriod(24*time.Hour),
		datanode.WithDefault("fresh"),
	)
	tk := task.New("t", fn("noop", nil), nil, nodes(z), true)

	// --- Act / Assert ---
	assert.False(t, NeedsToRun(tk))

	mock.Add(24*time.Hour + 30*time.Minute)
	assert.True(t, NeedsToRun(tk))
}

func TestSubmitTask_StaleOutputIsRecomputed(t *testing.T) {
	mock := clock.NewMock()
	s := newScheduler(t, inlineConfig(), WithClock(mock))
	z := datanode.New("z",
		datanode.WithClock(mock),
		datanode.WithCacheable(true),
		datanode.WithValidityPeriod(24*time.Hour),
		datanode.WithDefault(0),
	)
	calls := 0
	tk := task.New("t", fn("count", func(...any) (any, error) {
		calls++
		return calls, nil
	}), nil, nodes(z), true)

	j, err := s.SubmitTask(context.Background(), tk)
	require.NoError(t, err)
	assert.Equal(t, job.Skipped, j.Status())

	mock.Add(24*time.Hour + 30*time.Minute)
	j, err = s.SubmitTask(context.Background(), tk)
	require.NoError(t, err)
	assert.Equal(t, job.Completed, j.Status())
	assert.Equal(t, 1, z.Read())

	last, ok := z.LastEdit()
	require.True(t, ok)
	assert.True(t, mock.Now().Equal(last))
}

func TestSubmitTask_OutputArity(t *testing.T) {
	testCases := []struct {
		name       string
		outputs    int
		result     any
		wantStatus job.Status
		want       []any
	}{
		{name: "one output keeps a pair whole", outputs: 1, result: []any{1, 2}, wantStatus: job.Completed, want: []any{[]any{1, 2}}},
		{name: "two outputs split a pair", outputs: 2, result: []any{1, 2}, wantStatus: job.Completed, want: []any{1, 2}},
		{name: "typed slices split too", outputs: 2, result: []string{"a", "b"}, wantStatus: job.Completed, want: []any{"a", "b"}},
		{name: "arrays split too", outputs: 2, result: [2]int{7, 8}, wantStatus: job.Completed, want: []any{7, 8}},
		{name: "triple for two outputs fails", outputs: 2, result: []any{1, 2, 3}, wantStatus: job.Failed},
		{name: "scalar for two outputs fails", outputs: 2, result: 5, wantStatus: job.Failed},
		{name: "nil for two outputs fails", outputs: 2, result: nil, wantStatus: job.Failed},
		{name: "no outputs discards the result", outputs: 0, result: "ignored", wantStatus: job.Completed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			s := newScheduler(t, inlineConfig())
			var outs []*datanode.DataNode
			for i := range tc.outputs {
				outs = append(outs, datanode.New(fmt.Sprintf("out%d", i), datanode.WithDefault("before")))
			}
			result := tc.result
			tk := task.New("t", fn("t", func(...any) (any, error) { return result, nil }), nil, nodes(outs...), false)

			// --- Act ---
			j, err := s.SubmitTask(context.Background(), tk)

			// --- Assert ---
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, j.Status())
			if tc.wantStatus == job.Failed {
				assert.ErrorIs(t, j.Err(), ErrOutputArity)
				for _, o := range outs {
					assert.Equal(t, "before", o.Read())
					assert.Len(t, o.Edits(), 1)
					assert.True(t, o.IsReadyForReading(), "lock must be released")
				}
				return
			}
			for i, o := range outs {
				assert.Equal(t, tc.want[i], o.Read())
				assert.Len(t, o.Edits(), 2)
			}
		})
	}
}

func TestSubmitTask_FunctionErrorFailsJob(t *testing.T) {
	// --- Arrange ---
	s := newScheduler(t, inlineConfig())
	y := datanode.New("y", datanode.WithDefault("old"))
	boom := errors.New("boom")
	tk := task.New("bad", fn("bad", func(...any) (any, error) { return nil, boom }), nil, nodes(y), false)

	// --- Act ---
	j, err := s.SubmitTask(context.Background(), tk)

	// --- Assert ---
	require.NoError(t, err, "execution failures are not submission errors")
	assert.Equal(t, job.Failed, j.Status())
	assert.ErrorIs(t, j.Err(), boom)
	assert.Equal(t, "old", y.Read())
	assert.Len(t, y.Edits(), 1)
	assert.True(t, y.IsReadyForReading())

	rec, err := s.Store().Get(context.Background(), j.ID())
	require.NoError(t, err)
	assert.Equal(t, job.Failed, rec.Status)
	assert.Equal(t, "boom", rec.Error)
}

func TestSubmitTask_PanicFailsJob(t *testing.T) {
	s := newScheduler(t, inlineConfig())
	tk := task.New("p", fn("p", func(...any) (any, error) { panic("oops") }), nil, nil, false)

	j, err := s.SubmitTask(context.Background(), tk)

	require.NoError(t, err)
	assert.Equal(t, job.Failed, j.Status())
	assert.ErrorIs(t, j.Err(), executor.ErrPanic)
}

func TestSubmitTask_BlockedUntilProducerCompletes(t *testing.T) {
	// --- Arrange ---
	s := newScheduler(t, inlineConfig())
	x := datanode.New("x", datanode.WithDefault(20))
	y := datanode.New("y")
	z := datanode.New("z")
	produce := task.New("produce", fn("inc", func(args ...any) (any, error) {
		return args[0].(int) + 1, nil
	}), nodes(x), nodes(y), false)
	consume := task.New("consume", fn("double", func(args ...any) (any, error) {
		return args[0].(int) * 2, nil
	}), nodes(y), nodes(z), false)
	var log statusLog

	// --- Act ---
	consumer, err := s.SubmitTask(context.Background(), consume, WithCallbacks(log.callback))
	require.NoError(t, err)
	assert.Equal(t, job.Blocked, consumer.Status())
	assert.Equal(t, []*job.Job{consumer}, s.BlockedJobs())

	producer, err := s.SubmitTask(context.Background(), produce)
	require.NoError(t, err)

	// --- Assert ---
	assert.Equal(t, job.Completed, producer.Status())
	assert.Equal(t, job.Completed, consumer.Status())
	assert.Equal(t, 42, z.Read())
	assert.Empty(t, s.BlockedJobs())
	assert.Equal(t, []job.Status{job.Blocked, job.Pending, job.Running, job.Completed}, log.statuses())
}

func TestSubmitTask_BlockedOnPoolUnblocksWithoutResubmission(t *testing.T) {
	s := newScheduler(t, poolConfig(2))
	g := newGate()
	y := datanode.New("y")
	z := datanode.New("z")
	produce := task.New("produce", g.fn("produce", 5), nil, nodes(y), false)
	consume := task.New("consume", fn("square", func(args ...any) (any, error) {
		return args[0].(int) * args[0].(int), nil
	}), nodes(y), nodes(z), false)

	producer, err := s.SubmitTask(context.Background(), produce)
	require.NoError(t, err)
	g.awaitStart(t, 1)
	consumer, err := s.SubmitTask(context.Background(), consume)
	require.NoError(t, err)
	assert.Equal(t, job.Blocked, consumer.Status(), "locked input is not readable")

	close(g.release)

	assert.Equal(t, job.Completed, waitJob(t, producer))
	assert.Equal(t, job.Completed, waitJob(t, consumer))
	assert.Equal(t, 25, z.Read())
}

func TestSubmitTask_UnblocksInSubmissionOrder(t *testing.T) {
	s := newScheduler(t, inlineConfig())
	y := datanode.New("y")
	var order []string
	consumer := func(name string) *task.Task {
		return task.New(name, fn(name, func(...any) (any, error) {
			order = append(order, name)
			return nil, nil
		}), nodes(y), nil, false)
	}

	for _, name := range []string{"c1", "c2", "c3"} {
		j, err := s.SubmitTask(context.Background(), consumer(name))
		require.NoError(t, err)
		require.Equal(t, job.Blocked, j.Status())
	}
	_, err := s.SubmitTask(context.Background(),
		task.New("p", fn("p", func(...any) (any, error) { return 1, nil }), nil, nodes(y), false))
	require.NoError(t, err)

	assert.Equal(t, []string{"c1", "c2", "c3"}, order)
}

func TestSubmitTask_FailedProducerLeavesConsumersBlocked(t *testing.T) {
	s := newScheduler(t, inlineConfig())
	y := datanode.New("y")
	consumer, err := s.SubmitTask(context.Background(),
		task.New("c", fn("c", func(...any) (any, error) { return nil, nil }), nodes(y), nil, false))
	require.NoError(t, err)

	producer, err := s.SubmitTask(context.Background(),
		task.New("p", fn("p", func(...any) (any, error) { return nil, errors.New("no data") }), nil, nodes(y), false))
	require.NoError(t, err)

	assert.Equal(t, job.Failed, producer.Status())
	assert.Equal(t, job.Blocked, consumer.Status())
	assert.False(t, y.IsReadyForReading())
}

func TestStalled(t *testing.T) {
	// --- Arrange ---
	s := newScheduler(t, poolConfig(1))
	g := newGate()
	x, y := datanode.New("x"), datanode.New("y")

	consumer, err := s.SubmitTask(context.Background(),
		task.New("c", fn("c", func(...any) (any, error) { return nil, nil }), nodes(y), nil, false))
	require.NoError(t, err)
	_, err = s.SubmitTask(context.Background(), task.New("p", g.fn("p", 1), nil, nodes(x), false))
	require.NoError(t, err)
	g.awaitStart(t, 1)

	// --- Act / Assert ---
	assert.Empty(t, s.Stalled(), "a running job may still unblock others")

	close(g.release)
	require.Eventually(t, func() bool { return len(s.Stalled()) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, consumer.ID(), s.Stalled()[0].ID())
}

func TestSubmitTask_LockExclusivity(t *testing.T) {
	// --- Arrange ---
	s := newScheduler(t, poolConfig(2))
	g := newGate()
	y := datanode.New("y")
	writer := task.New("writer", g.fn("writer", "first"), nil, nodes(y), false)
	rival := task.New("rival", fn("rival", func(...any) (any, error) { return "second", nil }), nil, nodes(y), false)

	holder, err := s.SubmitTask(context.Background(), writer)
	require.NoError(t, err)
	g.awaitStart(t, 1)

	// --- Act ---
	rejected, err := s.SubmitTask(context.Background(), rival)

	// --- Assert ---
	require.ErrorIs(t, err, datanode.ErrAlreadyLocked)
	assert.Nil(t, rejected)
	assert.Len(t, s.Jobs(), 1, "a rejected submission creates no job")
	editor, locked := y.EditInProgress()
	assert.True(t, locked)
	assert.Equal(t, string(holder.ID()), editor)

	close(g.release)
	assert.Equal(t, job.Completed, waitJob(t, holder))
	_, locked = y.EditInProgress()
	assert.False(t, locked)

	again, err := s.SubmitTask(context.Background(), rival)
	require.NoError(t, err)
	assert.Equal(t, job.Completed, waitJob(t, again))
	assert.Equal(t, "second", y.Read())
}

func TestSubmitTask_LockFailureRollsBack(t *testing.T) {
	s := newScheduler(t, inlineConfig())
	a := datanode.New("a", datanode.WithDefault(1))
	b := datanode.New("b", datanode.WithDefault(2))
	require.NoError(t, b.Lock("external-editor"))
	tk := task.New("t", fn("t", func(...any) (any, error) { return []any{3, 4}, nil }), nil, nodes(a, b), false)

	_, err := s.SubmitTask(context.Background(), tk)

	require.ErrorIs(t, err, datanode.ErrAlreadyLocked)
	_, aLocked := a.EditInProgress()
	assert.False(t, aLocked, "locks taken before the failure must be released")
	editor, _ := b.EditInProgress()
	assert.Equal(t, "external-editor", editor)
	all, err := s.Store().GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSubmitTask_ParallelExecution(t *testing.T) {
	// --- Arrange ---
	s := newScheduler(t, poolConfig(2))
	g := newGate()
	left := task.New("left", g.fn("left", "L"), nodes(datanode.New("a", datanode.WithDefault(1))), nodes(datanode.New("b")), false)
	right := task.New("right", g.fn("right", "R"), nodes(datanode.New("c", datanode.WithDefault(1))), nodes(datanode.New("d")), false)

	// --- Act ---
	j1, err := s.SubmitTask(context.Background(), left)
	require.NoError(t, err)
	j2, err := s.SubmitTask(context.Background(), right)
	require.NoError(t, err)
	started := g.awaitStart(t, 2)

	// --- Assert ---
	assert.ElementsMatch(t, []string{"left", "right"}, started)
	assert.Equal(t, job.Running, j1.Status())
	assert.Equal(t, job.Running, j2.Status())
	assert.Equal(t, 0, s.FreeSlots())

	close(g.release)
	assert.Equal(t, job.Completed, waitJob(t, j1))
	assert.Equal(t, job.Completed, waitJob(t, j2))
	require.Eventually(t, func() bool { return s.FreeSlots() == 2 }, 5*time.Second, 10*time.Millisecond)
}

func TestSubmitTask_PendingIsNotBlocked(t *testing.T) {
	// --- Arrange ---
	reg := prometheus.NewRegistry()
	rec, err := metrics.New(reg)
	require.NoError(t, err)
	s := newScheduler(t, poolConfig(1), WithMetrics(rec))
	g := newGate()
	first := task.New("first", g.fn("first", 1), nil, nodes(datanode.New("a")), false)
	second := task.New("second", g.fn("second", 2), nil, nodes(datanode.New("b")), false)

	// --- Act ---
	j1, err := s.SubmitTask(context.Background(), first)
	require.NoError(t, err)
	g.awaitStart(t, 1)
	j2, err := s.SubmitTask(context.Background(), second)
	require.NoError(t, err)

	// --- Assert ---
	assert.Equal(t, job.Running, j1.Status())
	assert.Equal(t, job.Pending, j2.Status())
	assert.Equal(t, []*job.Job{j2}, s.PendingJobs())
	assert.Empty(t, s.BlockedJobs())

	expected := `
# HELP taskgrid_blocked_jobs Jobs waiting for their inputs.
# TYPE taskgrid_blocked_jobs gauge
taskgrid_blocked_jobs 0
# HELP taskgrid_free_worker_slots Worker slots not currently running a job.
# TYPE taskgrid_free_worker_slots gauge
taskgrid_free_worker_slots 0
# HELP taskgrid_pending_jobs Jobs waiting for a free worker slot.
# TYPE taskgrid_pending_jobs gauge
taskgrid_pending_jobs 1
`
	require.NoError(t, promtest.GatherAndCompare(reg, strings.NewReader(expected),
		"taskgrid_blocked_jobs", "taskgrid_free_worker_slots", "taskgrid_pending_jobs"))

	close(g.release)
	assert.Equal(t, job.Completed, waitJob(t, j1))
	assert.Equal(t, job.Completed, waitJob(t, j2))
	transitions := `
# HELP taskgrid_job_transitions_total Job status transitions, by target status.
# TYPE taskgrid_job_transitions_total counter
taskgrid_job_transitions_total{status="COMPLETED"} 2
taskgrid_job_transitions_total{status="PENDING"} 2
taskgrid_job_transitions_total{status="RUNNING"} 2
`
	require.NoError(t, promtest.GatherAndCompare(reg, strings.NewReader(transitions),
		"taskgrid_job_transitions_total"))
}

func TestSubmitTask_PersistsEveryTransition(t *testing.T) {
	store := &recordingStore{Store: memstore.New()}
	s := newScheduler(t, inlineConfig(), WithJobStore(store))
	tk := task.New("t", fn("t", func(...any) (any, error) { return 1, nil }), nil, nodes(datanode.New("o")), false)

	j, err := s.SubmitTask(context.Background(), tk)
	require.NoError(t, err)

	assert.Equal(t, []job.Status{job.Created, job.Pending, job.Running, job.Completed}, store.statuses(j.ID()))
	rec, err := store.Get(context.Background(), j.ID())
	require.NoError(t, err)
	assert.Equal(t, "t", rec.TaskID)
}

type recordingStore struct {
	*memstore.Store
	mu   sync.Mutex
	seen map[job.ID][]job.Status
}

func (r *recordingStore) Set(ctx context.Context, rec job.Record) error {
	r.mu.Lock()
	if r.seen == nil {
		r.seen = make(map[job.ID][]job.Status)
	}
	r.seen[rec.ID] = append(r.seen[rec.ID], rec.Status)
	r.mu.Unlock()
	return r.Store.Set(ctx, rec)
}

func (r *recordingStore) statuses(id job.ID) []job.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen[id]
}

func TestSubmitTask_PanickingCallbackIsContained(t *testing.T) {
	s := newScheduler(t, inlineConfig())
	y := datanode.New("y")
	tk := task.New("t", fn("t", func(...any) (any, error) { return 1, nil }), nil, nodes(y), false)
	var log statusLog

	j, err := s.SubmitTask(context.Background(), tk,
		WithCallbacks(func(*job.Job, job.Status, job.Status) { panic("bad observer") }, log.callback))

	require.NoError(t, err)
	assert.Equal(t, job.Completed, j.Status())
	assert.Equal(t, 1, y.Read())
	assert.Equal(t, []job.Status{job.Pending, job.Running, job.Completed}, log.statuses())
}

func TestSubmitTask_UnknownFunctionWithRegistry(t *testing.T) {
	s := newScheduler(t, inlineConfig(), WithRegistry(testRegistry()))

	_, err := s.SubmitTask(context.Background(), task.New("t", fn("missing", nil), nil, nil, false))

	assert.ErrorIs(t, err, registry.ErrUnknownFunction)
}

func TestSubmitTask_AfterClose(t *testing.T) {
	s := newScheduler(t, inlineConfig())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.SubmitTask(context.Background(), task.New("t", fn("t", nil), nil, nil, false))

	assert.ErrorIs(t, err, ErrClosed)
}

func TestCancelJob(t *testing.T) {
	t.Run("unknown job", func(t *testing.T) {
		s := newScheduler(t, inlineConfig())
		assert.ErrorIs(t, s.CancelJob(context.Background(), "JOB_nope", true), ErrJobNotFound)
	})

	t.Run("finished job", func(t *testing.T) {
		s := newScheduler(t, inlineConfig())
		j, err := s.SubmitTask(context.Background(), task.New("t", fn("t", func(...any) (any, error) { return nil, nil }), nil, nil, false))
		require.NoError(t, err)

		assert.ErrorIs(t, s.CancelJob(context.Background(), j.ID(), true), ErrJobFinished)
		assert.Equal(t, job.Completed, j.Status())
	})

	t.Run("unfinished job needs force", func(t *testing.T) {
		s := newScheduler(t, inlineConfig())
		out := datanode.New("out")
		j, err := s.SubmitTask(context.Background(),
			task.New("t", fn("t", nil), nodes(datanode.New("never")), nodes(out), false))
		require.NoError(t, err)

		err = s.CancelJob(context.Background(), j.ID(), false)

		assert.ErrorIs(t, err, ErrJobUnfinished)
		assert.Equal(t, job.Blocked, j.Status())
		_, locked := out.EditInProgress()
		assert.True(t, locked)
	})
}

func TestCancelJob_ForceAbandonsDependents(t *testing.T) {
	// --- Arrange ---
	s := newScheduler(t, inlineConfig())
	never := datanode.New("never")
	a, b, c := datanode.New("a"), datanode.New("b"), datanode.New("c")
	unrelated := datanode.New("unrelated")
	noop := func(...any) (any, error) { return nil, nil }

	first, err := s.SubmitTask(context.Background(), task.New("first", fn("f", noop), nodes(never), nodes(a), false))
	require.NoError(t, err)
	second, err := s.SubmitTask(context.Background(), task.New("second", fn("f", noop), nodes(a), nodes(b), false))
	require.NoError(t, err)
	third, err := s.SubmitTask(context.Background(), task.New("third", fn("f", noop), nodes(b), nodes(c), false))
	require.NoError(t, err)
	other, err := s.SubmitTask(context.Background(), task.New("other", fn("f", noop), nodes(never), nodes(unrelated), false))
	require.NoError(t, err)

	// --- Act ---
	require.NoError(t, s.CancelJob(context.Background(), first.ID(), true))

	// --- Assert ---
	assert.Equal(t, job.Canceled, first.Status())
	assert.Equal(t, job.Abandoned, second.Status())
	assert.Equal(t, job.Abandoned, third.Status())
	assert.Equal(t, job.Blocked, other.Status())
	assert.Equal(t, []*job.Job{other}, s.BlockedJobs())
	for _, n := range []*datanode.DataNode{a, b, c} {
		_, locked := n.EditInProgress()
		assert.False(t, locked, "lock on %s must be released", n.ID())
		assert.Empty(t, n.Edits())
	}
}

func TestCancelJob_RunningResultIsDiscarded(t *testing.T) {
	s := newScheduler(t, poolConfig(1))
	g := newGate()
	y := datanode.New("y", datanode.WithDefault("old"))
	j, err := s.SubmitTask(context.Background(), task.New("slow", g.fn("slow", "new"), nil, nodes(y), false))
	require.NoError(t, err)
	g.awaitStart(t, 1)

	require.NoError(t, s.CancelJob(context.Background(), j.ID(), true))
	assert.Equal(t, job.Canceled, j.Status())
	assert.True(t, y.IsReadyForReading())

	close(g.release)
	require.Eventually(t, func() bool { return s.FreeSlots() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "old", y.Read())
	assert.Equal(t, job.Canceled, j.Status())
}

func TestCancelJob_PendingJobNeverRuns(t *testing.T) {
	s := newScheduler(t, poolConfig(1))
	g := newGate()
	ran := make(chan struct{}, 1)
	first, err := s.SubmitTask(context.Background(), task.New("first", g.fn("first", 1), nil, nil, false))
	require.NoError(t, err)
	g.awaitStart(t, 1)
	second, err := s.SubmitTask(context.Background(), task.New("second", fn("second", func(...any) (any, error) {
		ran <- struct{}{}
		return nil, nil
	}), nil, nil, false))
	require.NoError(t, err)
	require.Equal(t, job.Pending, second.Status())

	require.NoError(t, s.CancelJob(context.Background(), second.ID(), true))
	assert.Empty(t, s.PendingJobs())

	close(g.release)
	assert.Equal(t, job.Completed, waitJob(t, first))
	require.NoError(t, s.Close())
	assert.Empty(t, ran)
	assert.Equal(t, job.Canceled, second.Status())
}

func TestDeleteJob(t *testing.T) {
	t.Run("finished job is removed everywhere", func(t *testing.T) {
		s := newScheduler(t, inlineConfig())
		j, err := s.SubmitTask(context.Background(), task.New("t", fn("t", func(...any) (any, error) { return nil, nil }), nil, nil, false))
		require.NoError(t, err)

		require.NoError(t, s.DeleteJob(context.Background(), j.ID(), false))

		_, err = s.Job(j.ID())
		assert.ErrorIs(t, err, ErrJobNotFound)
		assert.Empty(t, s.Jobs())
		_, err = s.Store().Get(context.Background(), j.ID())
		assert.Error(t, err)
	})

	t.Run("unfinished job needs force", func(t *testing.T) {
		s := newScheduler(t, inlineConfig())
		out := datanode.New("out")
		j, err := s.SubmitTask(context.Background(),
			task.New("t", fn("t", nil), nodes(datanode.New("never")), nodes(out), false))
		require.NoError(t, err)

		assert.ErrorIs(t, s.DeleteJob(context.Background(), j.ID(), false), ErrJobUnfinished)
		got, err := s.Job(j.ID())
		require.NoError(t, err)
		assert.Equal(t, job.Blocked, got.Status())

		require.NoError(t, s.DeleteJob(context.Background(), j.ID(), true))
		assert.Equal(t, job.Canceled, j.Status())
		_, locked := out.EditInProgress()
		assert.False(t, locked)
		assert.Empty(t, s.BlockedJobs())
	})

	t.Run("unknown job", func(t *testing.T) {
		s := newScheduler(t, inlineConfig())
		assert.ErrorIs(t, s.DeleteJob(context.Background(), "JOB_nope", true), ErrJobNotFound)
	})
}

func TestSubmitTasks_TopologicalOrder(t *testing.T) {
	// --- Arrange ---
	s := newScheduler(t, inlineConfig())
	x := datanode.New("x", datanode.WithDefault(3))
	y := datanode.New("y")
	z := datanode.New("z")
	var order []string
	record := func(name string, f func(args ...any) any) task.Function {
		return fn(name, func(args ...any) (any, error) {
			order = append(order, name)
			return f(args...), nil
		})
	}
	consume := task.New("consume", record("consume", func(args ...any) any { return args[0].(int) + 1 }), nodes(y), nodes(z), false)
	produce := task.New("produce", record("produce", func(args ...any) any { return args[0].(int) * 10 }), nodes(x), nodes(y), false)

	// --- Act ---
	sub, err := s.SubmitTasks(context.Background(), []*task.Task{consume, produce})

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, sub.Jobs, 2)
	assert.Equal(t, "produce", sub.Jobs[0].Task().ID)
	assert.Equal(t, []string{"produce", "consume"}, order)
	assert.Equal(t, job.SubmissionCompleted, sub.Status())
	assert.Equal(t, 31, z.Read())
}

func TestSubmitTasks_RejectsCycles(t *testing.T) {
	s := newScheduler(t, inlineConfig())
	a, b := datanode.New("a"), datanode.New("b")
	noop := fn("noop", func(...any) (any, error) { return nil, nil })

	sub, err := s.SubmitTasks(context.Background(), []*task.Task{
		task.New("t1", noop, nodes(a), nodes(b), false),
		task.New("t2", noop, nodes(b), nodes(a), false),
	})

	assert.ErrorContains(t, err, "cycle detected")
	assert.Nil(t, sub)
	assert.Empty(t, s.Jobs())
}

func TestSubmitTasks_PartialFailure(t *testing.T) {
	s := newScheduler(t, inlineConfig())
	taken := datanode.New("taken")
	require.NoError(t, taken.Lock("someone"))
	noop := fn("noop", func(...any) (any, error) { return nil, nil })

	sub, err := s.SubmitTasks(context.Background(), []*task.Task{
		task.New("ok", noop, nil, nodes(datanode.New("free")), false),
		task.New("clash", noop, nil, nodes(taken), false),
	})

	require.ErrorIs(t, err, datanode.ErrAlreadyLocked)
	require.NotNil(t, sub)
	assert.Len(t, sub.Jobs, 1)
}

func TestSubmitTask_ProcessIsolation(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns worker processes")
	}
	// --- Arrange ---
	reg := testRegistry()
	s := newScheduler(t, Config{Mode: ModeIsolatedPool, Workers: 2, Isolation: IsolationProcess},
		WithCommand(testutil.HelperCommand), WithRegistry(reg))
	double, err := reg.Lookup("double")
	require.NoError(t, err)
	divmod, err := reg.Lookup("divmod")
	require.NoError(t, err)

	x := datanode.New("x", datanode.WithDefault(21))
	y := datanode.New("y")
	q, r := datanode.New("q"), datanode.New("r")
	seven := datanode.New("seven", datanode.WithDefault(7))

	// --- Act ---
	sub, err := s.SubmitTasks(context.Background(), []*task.Task{
		task.New("split", divmod, nodes(y, seven), nodes(q, r), false),
		task.New("double", double, nodes(x), nodes(y), false),
	})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	status, err := sub.Wait(ctx)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, job.SubmissionCompleted, status)
	assert.Equal(t, 42, y.Read())
	assert.Equal(t, 6, q.Read())
	assert.Equal(t, 0, r.Read())
}

func TestSubmitTask_ProcessPoolRunsInParallel(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns worker processes")
	}
	// --- Arrange ---
	reg := testRegistry()
	s := newScheduler(t, Config{Mode: ModeIsolatedPool, Workers: 2, Isolation: IsolationProcess},
		WithCommand(testutil.HelperCommand), WithRegistry(reg))
	meet, err := reg.Lookup("rendezvous")
	require.NoError(t, err)

	dir := t.TempDir()
	shared := datanode.New("dir", datanode.WithDefault(dir))
	left := task.New("left", meet,
		nodes(shared, datanode.New("left_name", datanode.WithDefault("left"))), nodes(datanode.New("left_out")), false)
	rightOut := datanode.New("right_out")
	right := task.New("right", meet,
		nodes(shared, datanode.New("right_name", datanode.WithDefault("right"))), nodes(rightOut), false)

	// --- Act ---
	j1, err := s.SubmitTask(context.Background(), left)
	require.NoError(t, err)
	j2, err := s.SubmitTask(context.Background(), right)
	require.NoError(t, err)

	arrived := func(name string) bool {
		_, err := os.Stat(filepath.Join(dir, name))
		return err == nil
	}
	require.Eventually(t, func() bool { return arrived("left") && arrived("right") },
		20*time.Second, 10*time.Millisecond, "both worker processes should be running at once")

	// --- Assert ---
	assert.Equal(t, job.Running, j1.Status())
	assert.Equal(t, job.Running, j2.Status())
	assert.Equal(t, 0, s.FreeSlots())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "release"), nil, 0o600))
	assert.Equal(t, job.Completed, waitJob(t, j1))
	assert.Equal(t, job.Completed, waitJob(t, j2))
	assert.Equal(t, "right", rightOut.Read())
}

func TestSubmitTask_QueuedJobWaitsForLaterProducer(t *testing.T) {
	// --- Arrange ---
	logs := &testutil.SafeBuffer{}
	logger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := ctxlog.WithLogger(context.Background(), logger)
	s, err := New(ctx, poolConfig(1))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	g := newGate()
	x := datanode.New("x", datanode.WithDefault(1))
	busy := task.New("busy", g.fn("busy", "done"), nil, nodes(datanode.New("b")), false)
	seen := make(chan any, 1)
	consume := task.New("consume", fn("consume", func(args ...any) (any, error) {
		seen <- args[0]
		return args[0], nil
	}), nodes(x), nodes(datanode.New("y")), false)
	produce := task.New("produce", fn("produce", func(...any) (any, error) { return 100, nil }), nil, nodes(x), false)
	var log statusLog

	// --- Act ---
	busyJob, err := s.SubmitTask(ctx, busy)
	require.NoError(t, err)
	g.awaitStart(t, 1)
	consumer, err := s.SubmitTask(ctx, consume, WithCallbacks(log.callback))
	require.NoError(t, err)
	require.Equal(t, job.Pending, consumer.Status())
	producer, err := s.SubmitTask(ctx, produce)
	require.NoError(t, err)
	require.False(t, x.IsReadyForReading())

	close(g.release)

	// --- Assert ---
	assert.Equal(t, job.Completed, waitJob(t, busyJob))
	assert.Equal(t, job.Completed, waitJob(t, producer))
	assert.Equal(t, job.Completed, waitJob(t, consumer))
	assert.Equal(t, 100, <-seen, "consumer must read the producer's value, not the edit in progress")
	assert.Equal(t, []job.Status{job.Pending, job.Blocked, job.Pending, job.Running, job.Completed}, log.statuses())

	var completed []string
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["msg"] == "Job completed." {
			completed = append(completed, fmt.Sprint(entry["job"]))
		}
	}
	assert.ElementsMatch(t,
		[]string{string(busyJob.ID()), string(consumer.ID()), string(producer.ID())}, completed,
		"each completion is logged with its own job")
}
