package scan

import (
	"context"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/grafana/sqlbridge/pkg/client"
	"github.com/grafana/sqlbridge/pkg/querymodel"
	"github.com/grafana/sqlbridge/pkg/response"
	util_log "github.com/grafana/sqlbridge/pkg/util/log"
)

// MetricScan runs one range query against a metric backend.
type MetricScan struct {
	cursor

	client client.MetricCatalogClient
	logger log.Logger

	Request    querymodel.QueryRequest
	FieldNames querymodel.ResponseFieldNames
}

// NewMetricScan returns a scan of req. names controls how the response
// columns are named.
func NewMetricScan(c client.MetricCatalogClient, req querymodel.QueryRequest, names querymodel.ResponseFieldNames, logger log.Logger) *MetricScan {
	return &MetricScan{
		client:     c,
		logger:     logger,
		Request:    req,
		FieldNames: names,
	}
}

func (s *MetricScan) Open(ctx context.Context) error {
	return s.open(ctx, func(ctx context.Context) (response.RowIterator, error) {
		if err := s.Request.Validate(); err != nil {
			return nil, err
		}
		level.Debug(util_log.WithContext(ctx, s.logger)).Log("msg", "running range query", "request", s.Request)
		body, err := s.client.QueryRange(ctx, s.Request)
		if err != nil {
			return nil, err
		}
		return response.Materialize(s.Request.SeriesQuery, body, s.FieldNames)
	})
}

func (s *MetricScan) Explain() string {
	return fmt.Sprintf("MetricScan(request=%s)", s.Request)
}
