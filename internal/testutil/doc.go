// Package testutil holds helpers shared by tests across packages: a
// goroutine-safe log buffer, grid file fixtures, a worker-process harness
// and a module that records task timing.
package testutil
