package job

// Status is the lifecycle state of a job.
type Status int

const (
	Created Status = iota
	Blocked
	Pending
	Running
	Completed
	Skipped
	Failed
	Canceled
	Abandoned
)

func (s Status) String() string {
	switch s {
	case Created:
		return "CREATED"
	case Blocked:
		return "BLOCKED"
	case Pending:
		return "PENDING"
	case Running:
		return "RUNNING"
	case Completed:
		return "COMPLETED"
	case Skipped:
		return "SKIPPED"
	case Failed:
		return "FAILED"
	case Canceled:
		return "CANCELED"
	case Abandoned:
		return "ABANDONED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText lets statuses appear by name in JSON records and logs.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name produced by MarshalText.
func (s *Status) UnmarshalText(b []byte) error {
	for c := Created; c <= Abandoned; c++ {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return &UnknownStatusError{Name: string(b)}
}

// UnknownStatusError reports an unparsable status name.
type UnknownStatusError struct {
	Name string
}

func (e *UnknownStatusError) Error() string {
	return "unknown job status: " + e.Name
}

// IsTerminal reports whether no further transition can leave s.
func (s Status) IsTerminal() bool {
	switch s {
	case Completed, Skipped, Failed, Canceled, Abandoned:
		return true
	default:
		return false
	}
}

// IsSuccessful reports whether s means the task's outputs are in place.
func (s Status) IsSuccessful() bool {
	return s == Completed || s == Skipped
}

func isAllowedTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if to == Canceled || to == Abandoned {
		return true
	}
	switch from {
	case Created:
		return to == Skipped || to == Blocked || to == Pending
	case Blocked:
		return to == Pending
	case Pending:
		return to == Running || to == Blocked
	case Running:
		return to == Completed || to == Failed
	default:
		return false
	}
}
