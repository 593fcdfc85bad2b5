package testutil

import (
	"fmt"
	"sync"
	"time"

	"github.com/specialistvlad/taskgrid/internal/registry"
)

// ExecutionRecord holds the start and end times of one call.
type ExecutionRecord struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two calls ran at the same time.
func (r ExecutionRecord) Overlaps(o ExecutionRecord) bool {
	return r.Start.Before(o.End) && o.Start.Before(r.End)
}

// SleeperModule registers "sleep", which sleeps and records when it ran.
// Its first argument is a label; the result is the label.
type SleeperModule struct {
	ExecutionTimes map[string]ExecutionRecord
	mu             sync.Mutex
	sleepDuration  time.Duration
}

// NewSleeperModule creates a sleeper that sleeps for d on every call.
func NewSleeperModule(d time.Duration) *SleeperModule {
	return &SleeperModule{
		ExecutionTimes: make(map[string]ExecutionRecord),
		sleepDuration:  d,
	}
}

// Register registers the sleep function.
func (m *SleeperModule) Register(r *registry.Registry) {
	r.RegisterFunc("sleep", m.sleep)
}

func (m *SleeperModule) sleep(args ...any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("sleep: expected a label")
	}
	label := fmt.Sprint(args[0])
	start := time.Now()
	time.Sleep(m.sleepDuration)
	end := time.Now()

	m.mu.Lock()
	m.ExecutionTimes[label] = ExecutionRecord{Start: start, End: end}
	m.mu.Unlock()
	return label, nil
}

// Record returns the timing of label.
func (m *SleeperModule) Record(label string) (ExecutionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.ExecutionTimes[label]
	return r, ok
}
