package env_vars

import (
	"fmt"
	"os"
	"strings"

	"github.com/specialistvlad/taskgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the environment functions with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterFunc("env_vars", All)
	r.RegisterFunc("env_var", Get)
}

// All returns every environment variable of the process running the task.
func All(args ...any) (any, error) {
	if len(args) != 0 {
		return nil, fmt.Errorf("env_vars: expected no arguments, got %d", len(args))
	}
	envMap := make(map[string]any)
	for _, e := range os.Environ() {
		pair := strings.SplitN(e, "=", 2)
		if len(pair) == 2 {
			envMap[pair[0]] = pair[1]
		}
	}
	return envMap, nil
}

// Get returns the value of the named variable. An optional second argument
// is the fallback for an unset variable.
func Get(args ...any) (any, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("env_var: expected 1 or 2 arguments, got %d", len(args))
	}
	name, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("env_var: name must be a string, got %T", args[0])
	}
	if v, ok := os.LookupEnv(name); ok {
		return v, nil
	}
	if len(args) == 2 {
		return args[1], nil
	}
	return nil, fmt.Errorf("env_var: %q is not set", name)
}
