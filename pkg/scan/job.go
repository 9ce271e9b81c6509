package scan

import (
	"context"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/grafana/sqlbridge/pkg/jobs"
	"github.com/grafana/sqlbridge/pkg/querymodel"
	"github.com/grafana/sqlbridge/pkg/response"
	util_log "github.com/grafana/sqlbridge/pkg/util/log"
)

// JobScan runs a SQL statement as a remote job and reads its result.
type JobScan struct {
	cursor

	client jobs.RemoteJobClient
	logger log.Logger

	Query      string
	FieldNames querymodel.ResponseFieldNames
}

// NewJobScan returns a scan of query.
func NewJobScan(c jobs.RemoteJobClient, query string, names querymodel.ResponseFieldNames, logger log.Logger) *JobScan {
	return &JobScan{
		client:     c,
		logger:     logger,
		Query:      query,
		FieldNames: names,
	}
}

// Open blocks until the job finished and its result was fetched.
// Cancelling ctx abandons the job.
func (s *JobScan) Open(ctx context.Context) error {
	return s.open(ctx, func(ctx context.Context) (response.RowIterator, error) {
		level.Debug(util_log.WithContext(ctx, s.logger)).Log("msg", "running sql job", "query", s.Query)
		body, err := s.client.SQL(ctx, s.Query)
		if err != nil {
			return nil, err
		}
		return response.Materialize(s.Query, body, s.FieldNames)
	})
}

func (s *JobScan) Explain() string {
	return fmt.Sprintf("JobScan(query=%s)", s.Query)
}
