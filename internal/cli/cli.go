package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/specialistvlad/taskgrid/internal/app"
	"github.com/specialistvlad/taskgrid/internal/executor"
	"github.com/specialistvlad/taskgrid/internal/scheduler"
	ucli "github.com/urfave/cli/v2"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// ExitCode implements cli.ExitCoder.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// usageError marks bad invocations, which exit with code 2.
func usageError(err error) error {
	return &ExitError{Code: 2, Message: err.Error()}
}

// Run parses args (including the program name) and runs the selected
// command. The run summary goes to outW, logs and usage errors to errW.
func Run(ctx context.Context, args []string, outW, errW io.Writer) error {
	return New(outW, errW).RunContext(ctx, args)
}

// New builds the command-line application.
func New(outW, errW io.Writer) *ucli.App {
	return &ucli.App{
		Name:      "taskgrid",
		Usage:     "run a grid of tasks over shared data nodes",
		Writer:    outW,
		ErrWriter: errW,
		Commands: []*ucli.Command{
			runCommand(outW, errW),
			workerCommand(),
		},
		// Exit codes are left to the caller.
		ExitErrHandler: func(*ucli.Context, error) {},
		OnUsageError: func(_ *ucli.Context, err error, _ bool) error {
			return usageError(err)
		},
	}
}

func runCommand(outW, errW io.Writer) *ucli.Command {
	return &ucli.Command{
		Name:      "run",
		Usage:     "load grid files and run every task",
		ArgsUsage: "[GRID_PATH...]",
		OnUsageError: func(_ *ucli.Context, err error, _ bool) error {
			return usageError(err)
		},
		Flags: []ucli.Flag{
			&ucli.StringSliceFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a grid .hcl file or a directory of them; repeatable",
			},
			&ucli.StringFlag{
				Name:  "mode",
				Usage: fmt.Sprintf("execution mode: %q or %q", scheduler.ModeInline, scheduler.ModeIsolatedPool),
			},
			&ucli.IntFlag{
				Name:  "workers",
				Usage: "number of worker slots in isolated-pool mode",
			},
			&ucli.StringFlag{
				Name:  "isolation",
				Usage: fmt.Sprintf("isolated-pool isolation: %q or %q", scheduler.IsolationProcess, scheduler.IsolationGoroutine),
			},
			&ucli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				EnvVars: []string{"TASKGRID_LOG_LEVEL"},
				Usage:   "logging level: debug, info, warn or error",
			},
			&ucli.StringFlag{
				Name:    "log-format",
				Value:   "text",
				EnvVars: []string{"TASKGRID_LOG_FORMAT"},
				Usage:   "log output format: text or json",
			},
			&ucli.IntFlag{
				Name:    "healthcheck-port",
				EnvVars: []string{"TASKGRID_HEALTHCHECK_PORT"},
				Usage:   "port for /health and /metrics; 0 disables the server",
			},
			&ucli.StringFlag{
				Name:    "job-store-dir",
				EnvVars: []string{"TASKGRID_JOB_STORE_DIR"},
				Usage:   "persist job records in a LevelDB database in this directory",
			},
			&ucli.StringFlag{
				Name:    "notify-url",
				EnvVars: []string{"TASKGRID_NOTIFY_URL"},
				Usage:   "Socket.IO server receiving job_status events",
			},
		},
		Action: func(cctx *ucli.Context) error {
			appConfig, err := app.NewConfig(app.Config{
				GridPaths:       append(cctx.StringSlice("config"), cctx.Args().Slice()...),
				ExecutionMode:   cctx.String("mode"),
				NbOfWorkers:     cctx.Int("workers"),
				Isolation:       cctx.String("isolation"),
				LogLevel:        strings.ToLower(cctx.String("log-level")),
				LogFormat:       strings.ToLower(cctx.String("log-format")),
				HealthcheckPort: cctx.Int("healthcheck-port"),
				JobStoreDir:     cctx.String("job-store-dir"),
				NotifyURL:       cctx.String("notify-url"),
			})
			if err != nil {
				return usageError(err)
			}
			slog.Debug("CLI parser finished successfully.", "config", appConfig)

			a, err := app.NewApp(cctx.Context, outW, errW, appConfig)
			if err != nil {
				return &ExitError{Code: 1, Message: err.Error()}
			}
			if err := a.Run(cctx.Context); err != nil {
				return &ExitError{Code: exitCode(err), Message: err.Error()}
			}
			return nil
		},
	}
}

func workerCommand() *ucli.Command {
	return &ucli.Command{
		Name:   executor.WorkerCommand,
		Usage:  "serve one task call for a parent process",
		Hidden: true,
		Action: func(*ucli.Context) error {
			return executor.RunWorker(app.NewRegistry())
		},
	}
}

// exitCode is 3 when jobs failed and 1 for every other run error.
func exitCode(err error) int {
	if errors.Is(err, app.ErrRunFailed) {
		return 3
	}
	return 1
}
