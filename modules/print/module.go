package print

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/specialistvlad/taskgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	// Out receives the printed lines. Defaults to os.Stderr so task output
	// never mixes with the run summary on stdout.
	Out io.Writer
}

// Register registers the print function with the registry.
func (m *Module) Register(r *registry.Registry) {
	out := m.Out
	if out == nil {
		out = os.Stderr
	}
	r.RegisterFunc("print", func(args ...any) (any, error) {
		return Print(out, args...)
	})
}

// Print writes one line per argument and returns the printed text, so a
// task may store it in an output.
func Print(w io.Writer, args ...any) (any, error) {
	slog.Info("Printing input", "count", len(args))

	if len(args) == 0 {
		if _, err := fmt.Fprintln(w, "      (null)"); err != nil {
			return nil, err
		}
		return "", nil
	}

	lines := make([]string, 0, len(args))
	for i, a := range args {
		line := fmt.Sprintf("%d = %#v", i, a)
		if _, err := fmt.Fprintf(w, "      %s\n", line); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}
