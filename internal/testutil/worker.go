package testutil

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"testing"

	"github.com/specialistvlad/taskgrid/internal/executor"
)

// HelperEnv marks a test binary started as a worker process.
const HelperEnv = "TASKGRID_WORKER_PROCESS"

// WorkerMain is a TestMain body. When the binary was started by
// HelperCommand it serves one call with res and exits; otherwise it runs the
// tests.
func WorkerMain(m *testing.M, res executor.Resolver) {
	if os.Getenv(HelperEnv) == "1" {
		if err := executor.RunWorker(res); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(3)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// HelperCommand starts the current test binary as a worker process. Use it
// with WorkerMain.
func HelperCommand(ctx context.Context) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=^$")
	cmd.Env = append(os.Environ(), HelperEnv+"=1")
	return cmd, nil
}
