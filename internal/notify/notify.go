package notify

import (
	"log/slog"

	"github.com/specialistvlad/taskgrid/internal/job"
)

// EventJobStatus is the event name emitted for every job transition.
const EventJobStatus = "job_status"

// Emitter sends an event with a payload.
type Emitter interface {
	Emit(event string, payload map[string]any)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(event string, payload map[string]any)

// Emit calls f.
func (f EmitterFunc) Emit(event string, payload map[string]any) { f(event, payload) }

// Notifier turns job transitions into EventJobStatus events.
type Notifier struct {
	emitter Emitter
	logger  *slog.Logger
}

// New creates a Notifier emitting through e.
func New(e Emitter, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{emitter: e, logger: logger}
}

// Callback returns the job callback that publishes each transition.
func (n *Notifier) Callback() job.Callback {
	return n.publish
}

func (n *Notifier) publish(j *job.Job, from, to job.Status) {
	payload := Payload(j, from, to)
	n.logger.Debug("Emitting job status.", "job", j.ID(), "from", from, "to", to)
	n.emitter.Emit(EventJobStatus, payload)
}

// Payload builds the event body for one transition. The error key is empty
// unless the job carries a failure cause.
func Payload(j *job.Job, from, to job.Status) map[string]any {
	errMsg := ""
	if err := j.Err(); err != nil {
		errMsg = err.Error()
	}
	return map[string]any{
		"job_id":  string(j.ID()),
		"task_id": j.Task().ID,
		"from":    from.String(),
		"to":      to.String(),
		"error":   errMsg,
	}
}
