package querymodel

import (
	"errors"
	"fmt"
)

var (
	// ErrIteratorExhausted is returned when reading past the last row.
	ErrIteratorExhausted = errors.New("no more rows")
	// ErrIllegalState is returned on operator lifecycle violations.
	ErrIllegalState = errors.New("illegal operator state")
)

// InvalidTimeRangeError is returned when a resolved start is after its end.
type InvalidTimeRangeError struct {
	Query      string
	Start, End int64
}

func (e *InvalidTimeRangeError) Error() string {
	return fmt.Sprintf("invalid time range for %q: start %d is after end %d", e.Query, e.Start, e.End)
}

// InvalidStepError is returned when no usable step can be derived.
type InvalidStepError struct {
	Query  string
	Reason string
}

func (e *InvalidStepError) Error() string {
	return fmt.Sprintf("invalid step for %q: %s", e.Query, e.Reason)
}

// UnsupportedAggregationError is returned for aggregations the backend cannot
// express.
type UnsupportedAggregationError struct {
	Reason string
}

func (e *UnsupportedAggregationError) Error() string {
	return "unsupported aggregation: " + e.Reason
}

// UnexpectedResponseShapeError is returned when a backend payload matches no
// known shape.
type UnexpectedResponseShapeError struct {
	Query  string
	Reason string
}

func (e *UnexpectedResponseShapeError) Error() string {
	return fmt.Sprintf("unexpected response shape for %q: %s", e.Query, e.Reason)
}

// BackendUnavailableError is returned when a backend answers with a non-2xx
// status or cannot be reached.
type BackendUnavailableError struct {
	Backend    string
	StatusCode int
	Body       string
	Err        error
}

func (e *BackendUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s unavailable: %v", e.Backend, e.Err)
	}
	return fmt.Sprintf("%s unavailable: status %d: %s", e.Backend, e.StatusCode, e.Body)
}

func (e *BackendUnavailableError) Unwrap() error { return e.Err }

// JobSubmissionError is returned when the remote service rejects a job.
type JobSubmissionError struct {
	Query string
	Err   error
}

func (e *JobSubmissionError) Error() string {
	return fmt.Sprintf("submitting job for %q: %v", e.Query, e.Err)
}

func (e *JobSubmissionError) Unwrap() error { return e.Err }

// JobTimeoutError is returned when the poll budget is exhausted before the job
// reaches a terminal state. Err is the last poll failure, if any.
type JobTimeoutError struct {
	JobID     string
	Attempts  int
	LastState JobState
	Err       error
}

func (e *JobTimeoutError) Error() string {
	msg := fmt.Sprintf("job %s not finished after %d poll attempts (last state %s)", e.JobID, e.Attempts, e.LastState)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *JobTimeoutError) Unwrap() error { return e.Err }

// JobExecutionError is returned when a job ends FAILED or CANCELLED.
type JobExecutionError struct {
	JobID  string
	State  JobState
	Reason string
}

func (e *JobExecutionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("job %s ended in state %s", e.JobID, e.State)
	}
	return fmt.Sprintf("job %s ended in state %s: %s", e.JobID, e.State, e.Reason)
}

// ResultNotFoundError is returned when a successful job has no stored result.
type ResultNotFoundError struct {
	JobID     string
	ResultKey string
}

func (e *ResultNotFoundError) Error() string {
	return fmt.Sprintf("no result found for job %s (key %s)", e.JobID, e.ResultKey)
}
