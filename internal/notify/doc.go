// Package notify publishes job status changes to a Socket.IO server.
//
// A Notifier is attached to jobs as a status-change callback. It never calls
// back into the scheduler, and emitting is fire-and-forget: a slow or missing
// server cannot stall job processing.
package notify
