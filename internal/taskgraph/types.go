package taskgraph

import "sync"

// Graph is a set of task IDs and the producer/consumer edges between them.
// All operations on the graph are concurrency-safe.
type Graph struct {
	// mutex protects nodes and order.
	mutex sync.RWMutex
	// nodes stores all nodes, keyed by task ID.
	nodes map[string]*node
	// order is the insertion order of node IDs, used to break ties.
	order []string
}

// node is a single vertex. It is un-exported so callers work with task IDs.
type node struct {
	id string
	// deps holds the tasks this one reads from (predecessors).
	deps map[string]*node
	// dependents holds the tasks that read from this one (successors).
	dependents map[string]*node
}
