package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteGrid writes each content as its own .hcl file in a fresh temporary
// directory and returns the directory.
func WriteGrid(t *testing.T, contents ...string) string {
	t.Helper()
	dir := t.TempDir()
	for i, c := range contents {
		name := filepath.Join(dir, "grid_"+string(rune('a'+i))+".hcl")
		require.NoError(t, os.WriteFile(name, []byte(c), 0o600), "failed to write grid fixture")
	}
	return dir
}
