package datanode

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/raulk/clock"
)

// DefaultWriter is the writer ID recorded for the initial edit of a node
// created with a default value.
const DefaultWriter = "default"

// ErrAlreadyLocked is returned when a lock is requested on a node whose edit
// lock is held by a different, non-expired holder.
var ErrAlreadyLocked = errors.New("data node is being edited")

// Edit is one entry of a node's append-only write history.
type Edit struct {
	Timestamp time.Time
	WriterID  string
	JobID     string
}

// Node is the narrow contract the scheduler needs from any data node.
type Node interface {
	ID() string
	IsReadyForReading() bool
	Read() any
	Lock(holder string) error
	Write(value any, jobID string, ts time.Time)
	ReleaseWithoutWrite()
}

// CacheableArtifact is implemented by nodes that can take part in skip
// decisions.
type CacheableArtifact interface {
	Cacheable() bool
	IsUpToDate() bool
}

// DataNode is the in-memory implementation of Node and CacheableArtifact.
type DataNode struct {
	id             string
	validityPeriod time.Duration
	cacheable      bool
	clock          clock.Clock

	mu               sync.Mutex
	value            any
	edits            []Edit
	editInProgress   bool
	editorID         string
	editorExpiration time.Time // zero means the lock never expires
}

// Option configures a DataNode at construction.
type Option func(*DataNode)

// WithValidityPeriod sets how long a written value stays fresh. Zero means
// forever.
func WithValidityPeriod(d time.Duration) Option {
	return func(n *DataNode) { n.validityPeriod = d }
}

// WithCacheable marks the node as taking part in skip decisions.
func WithCacheable(cacheable bool) Option {
	return func(n *DataNode) { n.cacheable = cacheable }
}

// WithClock overrides the clock used for timestamps and freshness checks.
func WithClock(c clock.Clock) Option {
	return func(n *DataNode) { n.clock = c }
}

// WithDefault writes v as the initial content of the node, so that it is
// ready for reading straight away.
func WithDefault(v any) Option {
	return func(n *DataNode) {
		n.value = v
		n.edits = append(n.edits, Edit{WriterID: DefaultWriter})
	}
}

// New creates a data node. Options are applied in order; the timestamp of a
// default edit is taken from the final clock.
func New(id string, opts ...Option) *DataNode {
	n := &DataNode{id: id, clock: clock.New()}
	for _, opt := range opts {
		opt(n)
	}
	now := n.clock.Now()
	for i := range n.edits {
		if n.edits[i].Timestamp.IsZero() {
			n.edits[i].Timestamp = now
		}
	}
	return n
}

// ID returns the node's stable identity.
func (n *DataNode) ID() string { return n.id }

// Cacheable reports whether the node takes part in skip decisions.
func (n *DataNode) Cacheable() bool { return n.cacheable }

// ValidityPeriod returns the configured freshness window.
func (n *DataNode) ValidityPeriod() time.Duration { return n.validityPeriod }

// IsReadyForReading reports whether the node has been written at least once
// and nobody is currently editing it.
func (n *DataNode) IsReadyForReading() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.readyLocked()
}

func (n *DataNode) readyLocked() bool {
	return len(n.edits) > 0 && !n.editInProgress
}

// IsUpToDate reports whether the node is readable and its last edit still
// falls inside the validity period.
func (n *DataNode) IsUpToDate() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.readyLocked() {
		return false
	}
	if n.validityPeriod == 0 {
		return true
	}
	last := n.edits[len(n.edits)-1].Timestamp
	return n.clock.Since(last) <= n.validityPeriod
}

// Read returns the current content.
func (n *DataNode) Read() any {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.value
}

// Edits returns a copy of the write history.
func (n *DataNode) Edits() []Edit {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Edit, len(n.edits))
	copy(out, n.edits)
	return out
}

// LastEdit returns the timestamp of the most recent edit, if any.
func (n *DataNode) LastEdit() (time.Time, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.edits) == 0 {
		return time.Time{}, false
	}
	return n.edits[len(n.edits)-1].Timestamp, true
}

// EditInProgress reports whether the lock is held, and by whom.
func (n *DataNode) EditInProgress() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.editorID, n.editInProgress
}

// Lock takes the edit lock for holder with no expiry.
func (n *DataNode) Lock(holder string) error {
	return n.LockFor(holder, 0)
}

// LockFor takes the edit lock for editor. A positive ttl makes the lock
// expire, after which another editor may take it over.
func (n *DataNode) LockFor(editor string, ttl time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.clock.Now()
	if n.editInProgress && n.editorID != editor {
		if n.editorExpiration.IsZero() || n.editorExpiration.After(now) {
			return fmt.Errorf("%w: %s held by %q", ErrAlreadyLocked, n.id, n.editorID)
		}
	}
	n.editInProgress = true
	n.editorID = editor
	n.editorExpiration = time.Time{}
	if ttl > 0 {
		n.editorExpiration = now.Add(ttl)
	}
	return nil
}

// Write replaces the content, appends an edit and releases the lock.
func (n *DataNode) Write(value any, jobID string, ts time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ts.IsZero() {
		ts = n.clock.Now()
	}
	n.value = value
	n.edits = append(n.edits, Edit{Timestamp: ts, WriterID: n.editorID, JobID: jobID})
	n.unlockLocked()
}

// ReleaseWithoutWrite releases the lock and leaves content and history as
// they were.
func (n *DataNode) ReleaseWithoutWrite() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.unlockLocked()
}

func (n *DataNode) unlockLocked() {
	n.editInProgress = false
	n.editorID = ""
	n.editorExpiration = time.Time{}
}
