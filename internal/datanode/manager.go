package datanode

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"
)

var (
	// ErrNotFound is returned when a data node ID is unknown to the manager.
	ErrNotFound = errors.New("data node not found")
	// ErrExists is returned when creating a data node whose ID is taken.
	ErrExists = errors.New("data node already exists")
)

// Manager owns the lifecycle of data nodes. It is the in-memory stand-in for
// whatever component persists artifacts in a real deployment.
type Manager struct {
	mu    sync.RWMutex
	nodes map[string]*DataNode
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{nodes: make(map[string]*DataNode)}
}

// Create builds and registers a new node.
func (m *Manager) Create(id string, opts ...Option) (*DataNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, id)
	}
	n := New(id, opts...)
	m.nodes[id] = n
	return n, nil
}

// Get returns the node registered under id.
func (m *Manager) Get(id string) (*DataNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return n, nil
}

// All returns every node sorted by ID.
func (m *Manager) All() []*DataNode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := lo.Values(m.nodes)
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Delete forgets a node.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.nodes, id)
	return nil
}
