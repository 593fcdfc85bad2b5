package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/specialistvlad/taskgrid/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	err := Run(context.Background(), append([]string{"taskgrid"}, args...), out, errOut)
	return out.String(), errOut.String(), err
}

func exitCodeOf(t *testing.T, err error) int {
	t.Helper()
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "expected an ExitError, got %v", err)
	return exitErr.ExitCode()
}

func TestRun_RunsGrid(t *testing.T) {
	// --- Arrange ---
	dir := testutil.WriteGrid(t, `
data_node "x" {
  default = 21
}
data_node "y" {}
task "double" {
  function = "double"
  inputs   = ["x"]
  outputs  = ["y"]
}
`)

	// --- Act ---
	out, logs, err := run(t, "run", "--log-level", "debug", "-c", dir)

	// --- Assert ---
	require.NoError(t, err)
	assert.Regexp(t, `double\s+COMPLETED`, out)
	assert.Regexp(t, `y\s+42`, out)
	assert.Contains(t, logs, "Submitting tasks")
}

func TestRun_PositionalGridPath(t *testing.T) {
	dir := testutil.WriteGrid(t, `
data_node "x" {
  default = 2
}
data_node "y" {}
task "double" {
  function = "double"
  inputs   = ["x"]
  outputs  = ["y"]
}
`)

	out, _, err := run(t, "run", dir)

	require.NoError(t, err)
	assert.Regexp(t, `y\s+4`, out)
}

func TestRun_FailedJobsExitWithThree(t *testing.T) {
	dir := testutil.WriteGrid(t, `
data_node "a" {
  default = 1
}
data_node "b" {
  default = 0
}
data_node "q" {}
task "divide" {
  function = "divide"
  inputs   = ["a", "b"]
  outputs  = ["q"]
}
`)

	out, _, err := run(t, "run", dir)

	require.Error(t, err)
	assert.Equal(t, 3, exitCodeOf(t, err))
	assert.Regexp(t, `divide\s+FAILED`, out)
}

func TestRun_UsageErrors(t *testing.T) {
	testCases := []struct {
		name string
		args []string
		want string
	}{
		{"no grid path", []string{"run"}, "grid path"},
		{"bad log level", []string{"run", "--log-level", "loud", "grid.hcl"}, "log-level"},
		{"unknown flag", []string{"run", "--this-is-not-a-valid-flag"}, "flag provided but not defined"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := run(t, tc.args...)
			require.Error(t, err)
			assert.Equal(t, 2, exitCodeOf(t, err))
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestRun_MissingGridFails(t *testing.T) {
	_, _, err := run(t, "run", t.TempDir())

	require.Error(t, err)
	assert.Equal(t, 1, exitCodeOf(t, err))
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestRun_HelpHidesWorker(t *testing.T) {
	out, _, err := run(t, "--help")

	require.NoError(t, err)
	assert.Contains(t, out, "run")
	assert.NotContains(t, out, "worker")
}
