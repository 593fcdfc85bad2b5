// Package task declares the immutable unit of work the scheduler runs: a
// function plus the data nodes it reads from and writes to.
package task

import (
	"github.com/specialistvlad/taskgrid/internal/datanode"
)

// Func is the signature of a task body. Inputs are passed positionally in
// declaration order. A task with several outputs returns a slice holding one
// element per output.
type Func func(args ...any) (any, error)

// Function is a callable reference. Name identifies the function in a
// registry, which is how a worker process finds it again; Fn is the in-process
// implementation.
type Function struct {
	Name string
	Fn   Func
}

// Task is a fully prepared declaration. It is never mutated after New.
type Task struct {
	// ID is the unique task identifier from the configuration.
	ID string

	// Function is what runs when the task executes.
	Function Function

	// Inputs are read, in order, and passed as arguments to Function.
	Inputs []datanode.Node

	// Outputs receive the function's result, in order.
	Outputs []datanode.Node

	// Skippable allows the scheduler to skip execution when every output is
	// cacheable and up to date.
	Skippable bool
}

// New builds a Task, copying the input and output slices so later changes by
// the caller cannot leak in.
func New(id string, fn Function, inputs, outputs []datanode.Node, skippable bool) *Task {
	return &Task{
		ID:        id,
		Function:  fn,
		Inputs:    append([]datanode.Node(nil), inputs...),
		Outputs:   append([]datanode.Node(nil), outputs...),
		Skippable: skippable,
	}
}

// InputIDs returns the IDs of the input data nodes.
func (t *Task) InputIDs() []string {
	return nodeIDs(t.Inputs)
}

// OutputIDs returns the IDs of the output data nodes.
func (t *Task) OutputIDs() []string {
	return nodeIDs(t.Outputs)
}

func nodeIDs(nodes []datanode.Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID()
	}
	return ids
}
