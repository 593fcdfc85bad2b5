package executor

import (
	"sync/atomic"

	"github.com/specialistvlad/taskgrid/internal/task"
)

// Inline executes each function synchronously inside Submit.
type Inline struct {
	closed atomic.Bool
}

// NewInline creates an inline executor.
func NewInline() *Inline {
	return &Inline{}
}

// Submit runs fn immediately. The returned future is already resolved.
func (e *Inline) Submit(fn task.Function, args ...any) Future {
	if e.closed.Load() {
		return resolved(nil, ErrClosed)
	}
	return resolved(call(fn, args))
}

// Workers always reports one.
func (e *Inline) Workers() int { return 1 }

// Close marks the executor closed. There is never in-flight work.
func (e *Inline) Close() error {
	e.closed.Store(true)
	return nil
}
