// Package app contains the core application logic. It turns a loaded grid
// into data nodes, tasks and a scheduler, runs every task as one submission
// and reports the outcome, decoupled from any specific entrypoint like a
// CLI.
package app
