package registry

import (
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"
	"github.com/specialistvlad/taskgrid/internal/task"
)

// ErrUnknownFunction is returned when a name has no registered function.
var ErrUnknownFunction = errors.New("unknown function")

// Module is the interface that all function modules implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds the registered task functions of a single application
// instance.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]task.Func
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{funcs: make(map[string]task.Func)}
}

// NewWithModules creates a Registry and registers every module into it.
func NewWithModules(modules ...Module) *Registry {
	r := New()
	for _, m := range modules {
		m.Register(r)
	}
	return r
}

// RegisterFunc registers fn under name. Registering a name twice is a
// programming error and panics.
func (r *Registry) RegisterFunc(name string, fn task.Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.funcs[name]; exists {
		panic(fmt.Sprintf("function with name '%s' already registered", name))
	}
	slog.Debug("Registering task function.", "name", name)
	r.funcs[name] = fn
}

// RegisterType makes a concrete argument or result type transferable to and
// from worker processes.
func (r *Registry) RegisterType(v any) {
	gob.Register(v)
}

// Lookup resolves a function reference by name.
func (r *Registry) Lookup(name string) (task.Function, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	if !ok {
		return task.Function{}, fmt.Errorf("%w: %q", ErrUnknownFunction, name)
	}
	return task.Function{Name: name, Fn: fn}, nil
}

// Names returns all registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := lo.Keys(r.funcs)
	sort.Strings(names)
	return names
}

// Validate checks that every referenced name is registered, reporting all
// missing names at once.
func (r *Registry) Validate(names ...string) error {
	var result *multierror.Error
	for _, name := range names {
		if _, err := r.Lookup(name); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
