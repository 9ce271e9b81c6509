package querymodel

import "time"

// JobState is the normalized lifecycle state of a remote job.
type JobState int

const (
	JobSubmitted JobState = iota
	JobRunning
	JobSuccess
	JobFailed
	JobCancelled
)

func (s JobState) String() string {
	switch s {
	case JobSubmitted:
		return "SUBMITTED"
	case JobRunning:
		return "RUNNING"
	case JobSuccess:
		return "SUCCESS"
	case JobFailed:
		return "FAILED"
	case JobCancelled:
		return "CANCELLED"
	}
	return "UNKNOWN"
}

// Terminal reports whether no further transitions are possible.
func (s JobState) Terminal() bool {
	return s == JobSuccess || s == JobFailed || s == JobCancelled
}

// JobRun tracks one remote job from submission to a terminal state.
type JobRun struct {
	ID        string
	ResultKey string
	Query     string
	State     JobState
	Submitted time.Time
}

// Advance moves the run to next. Transitions never go backwards and a
// terminal run never changes; Advance reports whether the state changed.
func (r *JobRun) Advance(next JobState) bool {
	if r.State.Terminal() || next <= r.State {
		return false
	}
	r.State = next
	return true
}
