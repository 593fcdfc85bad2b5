// Package dispatcher hands ready jobs to an executor while tracking free
// worker slots.
//
// A Dispatcher is not goroutine-safe on its own. Every call must be made
// while holding the locker passed to Bind, which is also what completion
// processing acquires when an asynchronous future resolves.
package dispatcher

import (
	"context"
	"sync"

	"github.com/raulk/clock"
	"github.com/samber/lo"
	"github.com/specialistvlad/taskgrid/internal/ctxlog"
	"github.com/specialistvlad/taskgrid/internal/datanode"
	"github.com/specialistvlad/taskgrid/internal/executor"
	"github.com/specialistvlad/taskgrid/internal/job"
	"github.com/specialistvlad/taskgrid/internal/metrics"
)

// Handler receives the outcome of a job's function. It runs while the
// dispatcher's slot for the job is still held.
type Handler func(ctx context.Context, j *job.Job, val any, err error)

// Parker takes back a queued job whose inputs are no longer all readable
// when a slot frees up for it.
type Parker func(ctx context.Context, j *job.Job)

// entry is a job together with the context its logs are tagged with.
type entry struct {
	ctx context.Context
	job *job.Job
}

type completion struct {
	entry
	val any
	err error
}

// Dispatcher owns an executor and a fixed number of worker slots.
type Dispatcher struct {
	exec    executor.Executor
	clock   clock.Clock
	metrics *metrics.Recorder

	slots    int
	free     int
	queue    []entry
	finished []completion
	pumping  bool
	closed   bool

	handle Handler
	park   Parker
	locker sync.Locker
	wg     sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock sets the clock used to timestamp transitions.
func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// WithMetrics publishes queue length and free slots to r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(d *Dispatcher) { d.metrics = r }
}

// New creates a dispatcher with one slot per executor worker.
func New(exec executor.Executor, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		exec:   exec,
		clock:  clock.New(),
		slots:  max(exec.Workers(), 1),
		locker: new(sync.Mutex),
	}
	d.free = d.slots
	for _, opt := range opts {
		opt(d)
	}
	d.publish()
	return d
}

// Bind sets the completion handler, the parker and the lock that serializes
// all calls. It must be called before the first Dispatch. With a nil parker
// a queued job whose inputs are not readable stays queued.
func (d *Dispatcher) Bind(handle Handler, park Parker, locker sync.Locker) {
	d.handle = handle
	d.park = park
	d.locker = locker
}

// Dispatch queues a PENDING job and starts as many queued jobs as there are
// free slots. Jobs whose functions finish synchronously are completed before
// Dispatch returns. ctx tags everything logged about j until its outcome is
// handled.
func (d *Dispatcher) Dispatch(ctx context.Context, j *job.Job) {
	d.queue = append(d.queue, entry{ctx: ctx, job: j})
	d.pump()
}

// Remove drops a job from the ready queue. It reports whether the job was
// queued.
func (d *Dispatcher) Remove(j *job.Job) bool {
	for i, q := range d.queue {
		if q.job == j {
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			d.publish()
			return true
		}
	}
	return false
}

// FreeSlots returns the number of idle worker slots.
func (d *Dispatcher) FreeSlots() int { return d.free }

// Slots returns the total number of worker slots.
func (d *Dispatcher) Slots() int { return d.slots }

// Pending returns the jobs waiting for a slot, oldest first.
func (d *Dispatcher) Pending() []*job.Job {
	return lo.Map(d.queue, func(e entry, _ int) *job.Job { return e.job })
}

// pump drains finished work and fills free slots until neither is
// possible. Re-entrant calls from inside a handler return at once and leave
// the work to the outer loop.
func (d *Dispatcher) pump() {
	if d.pumping {
		return
	}
	d.pumping = true
	defer func() {
		d.pumping = false
		d.publish()
	}()

	for {
		if len(d.finished) > 0 {
			c := d.finished[0]
			d.finished = d.finished[1:]
			if d.handle != nil {
				d.handle(c.ctx, c.job, c.val, c.err)
			}
			d.free++
			continue
		}
		if d.closed || d.free == 0 {
			return
		}
		e, ok := d.next()
		if !ok {
			return
		}
		d.free--
		d.start(e)
	}
}

// next removes and returns the oldest queued job whose inputs are all
// readable. Queued jobs that are no longer pending are dropped. Jobs with an
// input being edited go to the parker, or stay queued without one.
func (d *Dispatcher) next() (entry, bool) {
	kept := d.queue[:0]
	var (
		found entry
		ok    bool
	)
	for _, e := range d.queue {
		switch {
		case ok:
			kept = append(kept, e)
		case e.job.Status() != job.Pending:
		case !inputsReady(e.job):
			if d.park != nil {
				d.park(e.ctx, e.job)
			} else {
				kept = append(kept, e)
			}
		default:
			found, ok = e, true
		}
	}
	clear(d.queue[len(kept):])
	d.queue = kept
	return found, ok
}

func inputsReady(j *job.Job) bool {
	return lo.EveryBy(j.Task().Inputs, func(in datanode.Node) bool {
		return in.IsReadyForReading()
	})
}

func (d *Dispatcher) start(e entry) {
	j := e.job
	if err := j.Transition(e.ctx, job.Running, d.clock.Now()); err != nil {
		ctxlog.FromContext(e.ctx).Warn("Job could not be started.", "error", err)
		d.free++
		return
	}

	t := j.Task()
	args := make([]any, len(t.Inputs))
	for i, in := range t.Inputs {
		args[i] = in.Read()
	}

	fut := d.exec.Submit(t.Function, args...)
	select {
	case <-fut.Done():
		val, err := fut.Result()
		d.finished = append(d.finished, completion{entry: e, val: val, err: err})
	default:
		d.wg.Add(1)
		go d.await(e, fut)
	}
}

func (d *Dispatcher) await(e entry, fut executor.Future) {
	defer d.wg.Done()
	val, err := fut.Result()

	d.locker.Lock()
	defer d.locker.Unlock()
	d.finished = append(d.finished, completion{entry: e, val: val, err: err})
	d.pump()
}

// Close stops starting queued jobs, waits for running ones to be handled,
// then closes the executor. It must be called without holding the locker.
func (d *Dispatcher) Close() error {
	d.locker.Lock()
	d.closed = true
	d.locker.Unlock()

	d.wg.Wait()
	return d.exec.Close()
}

func (d *Dispatcher) publish() {
	d.metrics.SetPending(len(d.queue))
	d.metrics.SetFreeSlots(d.free)
}
