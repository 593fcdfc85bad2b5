// Package scheduler decides which tasks run, when they run, and who is woken
// up when they finish.
//
// # Why Scheduler Exists
//
// Tasks are connected only through the data nodes they read and write. The
// scheduler turns that into execution order without a global plan:
//   - **Skip:** a skippable task whose outputs are all cacheable and fresh is
//     not run at all; its job goes straight to SKIPPED.
//   - **Lock:** every output of a job that will run is locked for that job
//     before SubmitTask returns, so two in-flight jobs never write the same
//     data node.
//   - **Block:** a job whose inputs are not all readable waits in the
//     blocked set. Only job completions re-scan that set, oldest job first.
//   - **Dispatch:** a ready job goes to the dispatcher, which runs it as soon
//     as a worker slot is free.
//
// # Serialization
//
// All scheduler state is guarded by one mutex. Completion handling, the
// blocked-set re-scan and dispatching all run under it, including when an
// asynchronous executor reports a result from another goroutine. Task
// functions run outside the lock on the pool backends.
//
// Job callbacks are invoked synchronously while the lock is held. A
// callback must not call back into the Scheduler.
package scheduler
