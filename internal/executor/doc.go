// Package executor provides the interchangeable backends that actually run
// task functions.
//
// Every backend exposes Submit, which hands back a Future and never reports
// a task failure synchronously: a returned error or a panic is captured into
// the Future.
//
//   - Inline runs the function immediately on the caller's goroutine. It is
//     deterministic and debugger friendly, and equivalent to one worker with
//     no concurrency.
//   - Pool runs up to N functions in parallel. With goroutine isolation each
//     call runs on its own goroutine with panic recovery; with process
//     isolation each call runs in a child process started from the current
//     executable, so a crash or runaway task cannot corrupt the caller.
package executor
