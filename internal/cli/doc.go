// Package cli is the command-line surface of taskgrid. It maps flags onto
// app.Config and hosts the hidden worker command that process isolation
// starts.
package cli
