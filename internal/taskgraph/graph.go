package taskgraph

import (
	"fmt"
	"sort"

	"github.com/samber/lo"
	"github.com/specialistvlad/taskgrid/internal/task"
)

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*node),
	}
}

// FromTasks builds the graph for tasks. A task ID may appear only once.
func FromTasks(tasks []*task.Task) (*Graph, error) {
	g := New()
	producers := make(map[string][]string)
	for _, t := range tasks {
		if g.Has(t.ID) {
			return nil, fmt.Errorf("duplicate task id '%s'", t.ID)
		}
		g.AddNode(t.ID)
		for _, out := range t.Outputs {
			producers[out.ID()] = append(producers[out.ID()], t.ID)
		}
	}
	for _, t := range tasks {
		for _, in := range t.Inputs {
			for _, producer := range producers[in.ID()] {
				if producer == t.ID {
					return nil, fmt.Errorf("task '%s' reads its own output '%s'", t.ID, in.ID())
				}
				if err := g.AddEdge(producer, t.ID); err != nil {
					return nil, err
				}
			}
		}
	}
	return g, nil
}

// Has reports whether id is a node of the graph.
func (g *Graph) Has(id string) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// AddNode adds a node with the given ID. Adding an existing ID does nothing.
func (g *Graph) AddNode(id string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, ok := g.nodes[id]; ok {
		return
	}
	g.nodes[id] = &node{
		id:         id,
		deps:       make(map[string]*node),
		dependents: make(map[string]*node),
	}
	g.order = append(g.order, id)
}

// AddEdge records that toID reads something fromID writes.
func (g *Graph) AddEdge(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %s -> %s", fromID, fromID)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	fromNode, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}
	toNode, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}

	toNode.deps[fromID] = fromNode
	fromNode.dependents[toID] = toNode
	return nil
}

// Dependencies returns the sorted IDs of the tasks id reads from.
func (g *Graph) Dependencies(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return sortedKeys(n.deps), nil
}

// Dependents returns the sorted IDs of the tasks that read from id.
func (g *Graph) Dependents(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return sortedKeys(n.dependents), nil
}

// DetectCycles returns an error naming a node on the first cycle found.
func (g *Graph) DetectCycles() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	// Depth-first search. temporary holds the current recursion stack.
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(n *node) error
	visit = func(n *node) error {
		if permanent[n.id] {
			return nil
		}
		if temporary[n.id] {
			return fmt.Errorf("cycle detected involving task '%s'", n.id)
		}
		temporary[n.id] = true
		for _, id := range sortedKeys(n.dependents) {
			if err := visit(n.dependents[id]); err != nil {
				return err
			}
		}
		delete(temporary, n.id)
		permanent[n.id] = true
		return nil
	}

	for _, id := range g.order {
		if err := visit(g.nodes[id]); err != nil {
			return err
		}
	}
	return nil
}

// Order returns every task ID so that producers come before consumers.
// Among tasks that are ready at the same time, insertion order wins.
func (g *Graph) Order() ([]string, error) {
	if err := g.DetectCycles(); err != nil {
		return nil, err
	}

	g.mutex.RLock()
	defer g.mutex.RUnlock()

	indegree := make(map[string]int, len(g.nodes))
	for id, n := range g.nodes {
		indegree[id] = len(n.deps)
	}

	out := make([]string, 0, len(g.nodes))
	done := make(map[string]bool, len(g.nodes))
	for len(out) < len(g.order) {
		progressed := false
		for _, id := range g.order {
			if done[id] || indegree[id] > 0 {
				continue
			}
			done[id] = true
			out = append(out, id)
			for dep := range g.nodes[id].dependents {
				indegree[dep]--
			}
			progressed = true
			break
		}
		if !progressed {
			// Unreachable after DetectCycles.
			return nil, fmt.Errorf("graph has unresolved dependencies")
		}
	}
	return out, nil
}

func sortedKeys(m map[string]*node) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}
