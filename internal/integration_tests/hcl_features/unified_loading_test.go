package hcl_features

import (
	"testing"

	"github.com/specialistvlad/taskgrid/internal/app"
	"github.com/specialistvlad/taskgrid/internal/integration_tests/harness"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test for: Data nodes, tasks and core settings may be spread over several
// files and are merged into one grid.
func TestHCLFeatures_UnifiedLoading(t *testing.T) {
	// --- Arrange ---
	core := `
core {
  execution_mode = "isolated-pool"
  nb_of_workers  = 2
  isolation      = "goroutine"
}
`
	nodes := `
data_node "a" {
  default = 1.5
}
data_node "b" {
  default = 2
}
data_node "sum" {}
`
	tasks := `
task "add" {
  function = "add"
  inputs   = ["a", "b"]
  outputs  = ["sum"]
}
`

	// --- Act ---
	result := harness.RunGrid(t, app.Config{}, []string{core, nodes, tasks})

	// --- Assert ---
	require.NoError(t, result.Err)
	assert.Regexp(t, `sum\s+3.5\s`, result.Output)
	assert.Contains(t, result.LogOutput, "mode=isolated-pool")
}

// Test for: TASKGRID_* variables override the grid file, and flags
// override both.
func TestHCLFeatures_EnvironmentOverlay(t *testing.T) {
	t.Setenv("TASKGRID_EXECUTION_MODE", "isolated-pool")
	t.Setenv("TASKGRID_NB_OF_WORKERS", "3")
	t.Setenv("TASKGRID_ISOLATION", "goroutine")
	grid := `
core {
  execution_mode = "inline"
}
data_node "x" {
  default = 4
}
data_node "y" {}
task "double" {
  function = "double"
  inputs   = ["x"]
  outputs  = ["y"]
}
`

	fromEnv := harness.RunGrid(t, app.Config{}, []string{grid})
	require.NoError(t, fromEnv.Err)
	assert.Contains(t, fromEnv.LogOutput, "workers=3")

	fromFlags := harness.RunGrid(t, app.Config{NbOfWorkers: 2}, []string{grid})
	require.NoError(t, fromFlags.Err)
	assert.Contains(t, fromFlags.LogOutput, "workers=2")
	assert.Regexp(t, `y\s+8\s`, fromFlags.Output)
}
