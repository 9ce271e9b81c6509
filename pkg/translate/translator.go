package translate

import (
	"time"

	"github.com/coder/quartz"

	"github.com/grafana/sqlbridge/pkg/plan"
	"github.com/grafana/sqlbridge/pkg/querymodel"
)

// Translator turns pushed down plan nodes into backend query requests.
type Translator struct {
	timeRange   *TimeRangeResolver
	requireSpan bool
}

// NewTranslator returns a Translator. requireSpan rejects aggregations
// without a time span.
func NewTranslator(clock quartz.Clock, window time.Duration, requireSpan bool) *Translator {
	return &Translator{
		timeRange:   NewTimeRangeResolver(clock, window),
		requireSpan: requireSpan,
	}
}

// Scan builds the request for a raw scan of metric.
func (t *Translator) Scan(n *plan.ScanNode) (querymodel.QueryRequest, querymodel.ResponseFieldNames, error) {
	sel, err := BuildSelector(n.MetricName, n.Filter)
	if err != nil {
		return querymodel.QueryRequest{}, querymodel.ResponseFieldNames{}, err
	}
	query := sel.String()
	tr, err := t.timeRange.Resolve(query, n.Filter)
	if err != nil {
		return querymodel.QueryRequest{}, querymodel.ResponseFieldNames{}, err
	}
	step, err := ResolveStep(query, tr, nil)
	if err != nil {
		return querymodel.QueryRequest{}, querymodel.ResponseFieldNames{}, err
	}
	return querymodel.QueryRequest{
		SeriesQuery:  query,
		StartTime:    tr.Start,
		EndTime:      tr.End,
		Step:         step,
		SourceMetric: n.MetricName,
	}, querymodel.DefaultFieldNames(), nil
}

// Aggregation builds the request for an aggregation over a metric.
func (t *Translator) Aggregation(n *plan.AggregationNode) (querymodel.QueryRequest, querymodel.ResponseFieldNames, error) {
	template, err := AggregationTemplate(n, t.requireSpan)
	if err != nil {
		return querymodel.QueryRequest{}, querymodel.ResponseFieldNames{}, err
	}
	sel, err := BuildSelector(n.MetricName, n.Filter)
	if err != nil {
		return querymodel.QueryRequest{}, querymodel.ResponseFieldNames{}, err
	}
	tr, err := t.timeRange.Resolve(sel.String(), n.Filter)
	if err != nil {
		return querymodel.QueryRequest{}, querymodel.ResponseFieldNames{}, err
	}
	step, err := ResolveStep(sel.String(), tr, n.GroupBy)
	if err != nil {
		return querymodel.QueryRequest{}, querymodel.ResponseFieldNames{}, err
	}
	return querymodel.QueryRequest{
		SeriesQuery:  Fill(template, sel.String(), step),
		StartTime:    tr.Start,
		EndTime:      tr.End,
		Step:         step,
		SourceMetric: n.MetricName,
	}, FieldNamesFor(n), nil
}
