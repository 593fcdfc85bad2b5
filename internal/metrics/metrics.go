// Package metrics exposes scheduler instrumentation as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "taskgrid"

// Recorder holds the scheduler's collectors. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	transitions *prometheus.CounterVec
	blocked     prometheus.Gauge
	pending     prometheus.Gauge
	freeSlots   prometheus.Gauge
}

// New creates a Recorder and registers its collectors on reg.
func New(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_transitions_total",
			Help:      "Job status transitions, by target status.",
		}, []string{"status"}),
		blocked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "blocked_jobs",
			Help:      "Jobs waiting for their inputs.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_jobs",
			Help:      "Jobs waiting for a free worker slot.",
		}),
		freeSlots: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "free_worker_slots",
			Help:      "Worker slots not currently running a job.",
		}),
	}
	for _, c := range []prometheus.Collector{r.transitions, r.blocked, r.pending, r.freeSlots} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Transition counts one job entering status.
func (r *Recorder) Transition(status string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(status).Inc()
}

// SetBlocked records the size of the blocked-job set.
func (r *Recorder) SetBlocked(n int) {
	if r == nil {
		return
	}
	r.blocked.Set(float64(n))
}

// SetPending records the length of the dispatcher's ready queue.
func (r *Recorder) SetPending(n int) {
	if r == nil {
		return
	}
	r.pending.Set(float64(n))
}

// SetFreeSlots records how many worker slots are idle.
func (r *Recorder) SetFreeSlots(n int) {
	if r == nil {
		return
	}
	r.freeSlots.Set(float64(n))
}
