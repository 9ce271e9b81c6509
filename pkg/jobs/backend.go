package jobs

import (
	"context"
	"errors"

	"github.com/grafana/sqlbridge/pkg/querymodel"
)

// ErrResultNotFound is returned by a ResultStore that holds no result for a
// key yet.
var ErrResultNotFound = errors.New("result not found")

// Submission identifies a job accepted by a Backend.
type Submission struct {
	ID string
	// ResultKey is the key results are stored under. It may only become
	// known while polling, in which case Status.ResultKey carries it.
	ResultKey string
}

// Status is one observation of a remote job.
type Status struct {
	State     querymodel.JobState
	ResultKey string
	Reason    string
}

// Backend runs SQL statements on a remote compute service.
type Backend interface {
	Submit(ctx context.Context, query string) (Submission, error)
	Poll(ctx context.Context, id string) (Status, error)
	Cancel(ctx context.Context, id string) error
}

// ResultStore holds the materialized results of finished jobs.
type ResultStore interface {
	// Fetch returns the stored result for key, or ErrResultNotFound.
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// RemoteJobClient runs a SQL statement to completion and returns its result.
type RemoteJobClient interface {
	SQL(ctx context.Context, query string) ([]byte, error)
}
