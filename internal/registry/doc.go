// Package registry provides the central "glue" between task declarations and
// compiled Go code.
//
// The Registry maps the string identifiers used in configuration (e.g.,
// "double") to the Go functions that implement them. Resolving functions by
// name is what lets a worker process, started from the same binary, find the
// exact function the scheduler asked it to run.
package registry
