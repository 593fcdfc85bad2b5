// Package harness runs whole grids through the application for the
// integration test suites.
package harness

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/specialistvlad/taskgrid/internal/app"
	"github.com/specialistvlad/taskgrid/internal/registry"
	"github.com/specialistvlad/taskgrid/internal/testutil"
	"github.com/stretchr/testify/require"
)

// Result holds the outcomes of one run.
type Result struct {
	Output    string
	LogOutput string
	Err       error
}

// RunGrid writes grid files, builds an App with modules (the core modules
// when none are given) and runs it to completion.
func RunGrid(t *testing.T, cfg app.Config, grid []string, modules ...registry.Module) *Result {
	t.Helper()

	cfg.GridPaths = append(cfg.GridPaths, testutil.WriteGrid(t, grid...))
	cfg.LogLevel = "debug"
	appConfig, err := app.NewConfig(cfg)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	logs := &testutil.SafeBuffer{}
	t.Cleanup(func() {
		if os.Getenv("TASKGRID_TEST_LOGS") == "true" || t.Failed() {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logs.String())
		}
	})

	a, err := app.NewApp(context.Background(), out, logs, appConfig, modules...)
	if err != nil {
		return &Result{LogOutput: logs.String(), Err: err}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	runErr := a.Run(ctx)
	return &Result{Output: out.String(), LogOutput: logs.String(), Err: runErr}
}
