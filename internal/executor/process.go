package executor

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/specialistvlad/taskgrid/internal/task"
)

// WorkerCommand is the hidden subcommand a worker process is started with.
const WorkerCommand = "worker"

// replyFD is the file descriptor a worker writes its reply to. Stdout and
// stderr stay free for whatever the task function prints.
const replyFD = 3

// CommandFactory builds the command that starts one worker process.
type CommandFactory func(ctx context.Context) (*exec.Cmd, error)

// SelfCommand starts the current executable with the worker subcommand.
func SelfCommand(args ...string) CommandFactory {
	return func(ctx context.Context) (*exec.Cmd, error) {
		p, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("cannot locate current executable: %w", err)
		}
		argv := append([]string{WorkerCommand}, args...)
		return exec.CommandContext(ctx, p, argv...), nil
	}
}

// Call is what a caller sends to a worker process.
type Call struct {
	Fn   string
	Args []any
}

// Reply is what a worker process sends back.
type Reply struct {
	Val   any
	Err   string
	Panic bool
}

// RemoteError carries an error returned by a function in a worker process.
type RemoteError struct {
	Function string
	Message  string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("function %s failed: %s", e.Function, e.Message)
}

func init() {
	gob.Register([]any{})
	gob.Register(map[string]any{})
}

func processPreparer(newCmd CommandFactory) preparer {
	return func(fn task.Function, args []any) (runFunc, error) {
		var payload bytes.Buffer
		if err := gob.NewEncoder(&payload).Encode(Call{Fn: fn.Name, Args: args}); err != nil {
			return nil, fmt.Errorf("worker caller cannot encode call to %s: %w", fn.Name, err)
		}
		return func(ctx context.Context) (any, error) {
			return runInProcess(ctx, newCmd, fn.Name, payload.Bytes())
		}, nil
	}
}

func runInProcess(ctx context.Context, newCmd CommandFactory, name string, payload []byte) (any, error) {
	cmd, err := newCmd(ctx)
	if err != nil {
		return nil, err
	}

	outFile, err := os.CreateTemp("", "taskgrid-reply-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = outFile.Close()
		_ = os.Remove(outFile.Name())
	}()

	cmd.Stdin = bytes.NewReader(payload)
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stderr
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	cmd.ExtraFiles = []*os.File{outFile}

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrWorkerCrashed, name, err)
	}

	if _, err := outFile.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	var rep Reply
	if err := gob.NewDecoder(outFile).Decode(&rep); err != nil {
		return nil, fmt.Errorf("worker caller cannot decode reply from %s: %w", name, err)
	}
	switch {
	case rep.Panic:
		return nil, fmt.Errorf("%w: %s", ErrPanic, strings.TrimPrefix(rep.Err, ErrPanic.Error()+": "))
	case rep.Err != "":
		return nil, &RemoteError{Function: name, Message: rep.Err}
	}
	return rep.Val, nil
}

// Resolver finds a task function by name.
type Resolver interface {
	Lookup(name string) (task.Function, error)
}

// ServeWorker is the worker side of process isolation. It reads one Call
// from r, runs it, and writes the Reply to w.
func ServeWorker(r io.Reader, w io.Writer, res Resolver) error {
	var c Call
	if err := gob.NewDecoder(r).Decode(&c); err != nil {
		return fmt.Errorf("worker cannot decode call: %w", err)
	}

	var rep Reply
	fn, err := res.Lookup(c.Fn)
	if err == nil {
		rep.Val, err = call(fn, c.Args)
	}
	if err != nil {
		rep.Val = nil
		rep.Err = err.Error()
		rep.Panic = errors.Is(err, ErrPanic)
	}

	if err := gob.NewEncoder(w).Encode(rep); err != nil {
		return fmt.Errorf("worker cannot encode reply for %s: %w", c.Fn, err)
	}
	return nil
}

// ReplyWriter returns the file a worker process writes its reply to.
func ReplyWriter() io.WriteCloser {
	return os.NewFile(replyFD, "reply")
}

// RunWorker serves one call on the process's stdin and reply descriptor.
// It is the whole body of a worker process.
func RunWorker(res Resolver) error {
	w := ReplyWriter()
	err := ServeWorker(os.Stdin, w, res)
	if cerr := w.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("worker cannot close reply: %w", cerr)
	}
	return err
}
