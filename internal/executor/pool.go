package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/specialistvlad/taskgrid/internal/task"
)

// runFunc is a prepared call, ready to execute on a pool slot.
type runFunc func(ctx context.Context) (any, error)

// preparer turns a submission into a runFunc. Anything that has to happen at
// submission time, like argument serialization, happens here.
type preparer func(fn task.Function, args []any) (runFunc, error)

type poolItem struct {
	run runFunc
	fut *future
}

// Pool runs functions on a bounded number of concurrent slots. Slots are
// granted in submission order.
type Pool struct {
	workers int
	prepare preparer

	mu      sync.Mutex
	active  int
	backlog []poolItem
	closed  bool
	wg      sync.WaitGroup
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithProcessIsolation runs every call in a separate worker process built by
// newCmd.
func WithProcessIsolation(newCmd CommandFactory) PoolOption {
	return func(p *Pool) {
		p.prepare = processPreparer(newCmd)
	}
}

// NewPool creates a pool with the given number of slots. By default calls
// run on goroutines with panic recovery.
func NewPool(workers int, opts ...PoolOption) (*Pool, error) {
	if workers < 1 {
		return nil, fmt.Errorf("pool needs at least one worker, got %d", workers)
	}
	p := &Pool{
		workers: workers,
		prepare: goroutinePreparer,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func goroutinePreparer(fn task.Function, args []any) (runFunc, error) {
	return func(context.Context) (any, error) {
		return call(fn, args)
	}, nil
}

// Submit queues fn for execution and returns immediately.
func (p *Pool) Submit(fn task.Function, args ...any) Future {
	run, err := p.prepare(fn, args)
	if err != nil {
		return resolved(nil, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return resolved(nil, ErrClosed)
	}
	item := poolItem{run: run, fut: newFuture()}
	p.wg.Add(1)
	if p.active < p.workers {
		p.active++
		go p.work(item)
	} else {
		p.backlog = append(p.backlog, item)
	}
	return item.fut
}

// work runs item and then keeps the slot busy with the backlog, oldest first.
func (p *Pool) work(item poolItem) {
	for {
		val, err := item.run(context.Background())
		item.fut.resolve(val, err)
		p.wg.Done()

		p.mu.Lock()
		if len(p.backlog) == 0 {
			p.active--
			p.mu.Unlock()
			return
		}
		item = p.backlog[0]
		p.backlog = p.backlog[1:]
		p.mu.Unlock()
	}
}

// Workers returns the configured number of slots.
func (p *Pool) Workers() int { return p.workers }

// Running returns how many slots are busy right now.
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Close refuses new work and waits for everything already submitted.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}
