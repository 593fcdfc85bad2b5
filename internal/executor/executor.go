package executor

import (
	"errors"
	"fmt"

	"github.com/specialistvlad/taskgrid/internal/task"
)

var (
	// ErrPanic wraps a panic raised by a task function.
	ErrPanic = errors.New("task function panicked")
	// ErrClosed is reported by futures submitted after Close.
	ErrClosed = errors.New("executor is closed")
	// ErrWorkerCrashed is reported when a worker process exits abnormally.
	ErrWorkerCrashed = errors.New("worker process crashed")
)

// Executor runs task functions.
type Executor interface {
	// Submit starts fn with args and returns a handle to its outcome.
	Submit(fn task.Function, args ...any) Future
	// Workers returns how many functions may run at once.
	Workers() int
	// Close waits for in-flight work and refuses new submissions.
	Close() error
}

// Future is a handle to the outcome of a submitted function.
type Future interface {
	// Done is closed once the outcome is known.
	Done() <-chan struct{}
	// Result blocks until completion and returns the function's value or
	// its captured error.
	Result() (any, error)
	// Err blocks until completion and returns only the captured error.
	Err() error
}

type future struct {
	done chan struct{}
	val  any
	err  error
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

func resolved(val any, err error) *future {
	f := newFuture()
	f.resolve(val, err)
	return f
}

func (f *future) resolve(val any, err error) {
	f.val, f.err = val, err
	close(f.done)
}

func (f *future) Done() <-chan struct{} { return f.done }

func (f *future) Result() (any, error) {
	<-f.done
	return f.val, f.err
}

func (f *future) Err() error {
	<-f.done
	return f.err
}

// call runs fn in the current goroutine and turns a panic into an error.
func call(fn task.Function, args []any) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			val = nil
			err = fmt.Errorf("%w: %s: %v", ErrPanic, fn.Name, r)
		}
	}()
	if fn.Fn == nil {
		return nil, fmt.Errorf("function %q has no implementation", fn.Name)
	}
	return fn.Fn(args...)
}
