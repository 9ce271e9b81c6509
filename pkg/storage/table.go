package storage

import (
	"context"

	"github.com/go-kit/log"
	"github.com/pkg/errors"

	"github.com/grafana/sqlbridge/pkg/client"
	"github.com/grafana/sqlbridge/pkg/jobs"
	"github.com/grafana/sqlbridge/pkg/plan"
	"github.com/grafana/sqlbridge/pkg/querymodel"
	"github.com/grafana/sqlbridge/pkg/scan"
	"github.com/grafana/sqlbridge/pkg/system"
	"github.com/grafana/sqlbridge/pkg/translate"
)

// Table is a relation the host engine can read.
type Table interface {
	// FieldTypes returns the column types by name.
	FieldTypes(ctx context.Context) (map[string]querymodel.ValueType, error)
	// Implement returns the scan running node against the table.
	Implement(node plan.Node) (scan.Operator, error)
}

// defaultFieldTypes returns the columns every metric table has.
func defaultFieldTypes() map[string]querymodel.ValueType {
	return map[string]querymodel.ValueType{
		querymodel.ValueField:     querymodel.Double,
		querymodel.TimestampField: querymodel.Timestamp,
	}
}

// MetricTable is a metric of a catalog. It is either named, in which case
// scans and aggregations are translated into range queries, or bound to the
// request of a query_range call.
type MetricTable struct {
	metric  string
	request *querymodel.QueryRequest

	catalog    client.MetricCatalogClient
	translator *translate.Translator
	labels     *labelCache
	logger     log.Logger
}

// Metric returns the metric name, empty for query_range tables.
func (t *MetricTable) Metric() string { return t.metric }

// Request returns the bound request of a query_range table.
func (t *MetricTable) Request() (querymodel.QueryRequest, bool) {
	if t.request == nil {
		return querymodel.QueryRequest{}, false
	}
	return *t.request, true
}

// FieldTypes returns the metric labels as strings plus the value and
// timestamp columns. Tables of a query_range call carry their labels in a
// single JSON column.
func (t *MetricTable) FieldTypes(ctx context.Context) (map[string]querymodel.ValueType, error) {
	types := defaultFieldTypes()
	if t.request != nil {
		types[querymodel.LabelsField] = querymodel.String
		return types, nil
	}
	labels, err := t.labels.Labels(ctx, t.metric)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching labels of %s", t.metric)
	}
	for _, l := range labels {
		types[l] = querymodel.String
	}
	return types, nil
}

func (t *MetricTable) Implement(node plan.Node) (scan.Operator, error) {
	impl := &metricImplementor{table: t}
	if err := node.Accept(impl); err != nil {
		return nil, err
	}
	return impl.op, nil
}

type metricImplementor struct {
	table *MetricTable
	op    scan.Operator
}

func (i *metricImplementor) bound() scan.Operator {
	names := querymodel.DefaultFieldNames()
	names.LabelsAsJSON = true
	return scan.NewMetricScan(i.table.catalog, *i.table.request, names, i.table.logger)
}

func (i *metricImplementor) VisitScan(n *plan.ScanNode) error {
	if i.table.request != nil {
		i.op = i.bound()
		return nil
	}
	node := *n
	if node.MetricName == "" {
		node.MetricName = i.table.metric
	}
	req, names, err := i.table.translator.Scan(&node)
	if err != nil {
		return err
	}
	i.op = scan.NewMetricScan(i.table.catalog, req, names, i.table.logger)
	return nil
}

func (i *metricImplementor) VisitAggregation(n *plan.AggregationNode) error {
	if i.table.request != nil {
		return &querymodel.UnsupportedAggregationError{Reason: "aggregations cannot be pushed into a query_range table"}
	}
	node := *n
	if node.MetricName == "" {
		node.MetricName = i.table.metric
	}
	req, names, err := i.table.translator.Aggregation(&node)
	if err != nil {
		return err
	}
	i.op = scan.NewMetricScan(i.table.catalog, req, names, i.table.logger)
	return nil
}

func (i *metricImplementor) VisitRelation(*plan.RelationNode) error {
	return i.VisitScan(&plan.ScanNode{MetricName: i.table.metric})
}

// SQLTable is the result of a statement run as a remote job.
type SQLTable struct {
	query  string
	jobs   jobs.RemoteJobClient
	logger log.Logger
}

// Query returns the statement.
func (t *SQLTable) Query() string { return t.query }

// FieldTypes is empty: the schema is only known once the job ran.
func (t *SQLTable) FieldTypes(context.Context) (map[string]querymodel.ValueType, error) {
	return map[string]querymodel.ValueType{}, nil
}

func (t *SQLTable) Implement(node plan.Node) (scan.Operator, error) {
	impl := &relationImplementor{
		kind: "sql",
		build: func() scan.Operator {
			return scan.NewJobScan(t.jobs, t.query, querymodel.DefaultFieldNames(), t.logger)
		},
	}
	if err := node.Accept(impl); err != nil {
		return nil, err
	}
	return impl.op, nil
}

// SystemTable is a metadata table.
type SystemTable struct {
	schema  system.Schema
	request scan.SystemRequest
}

func (t *SystemTable) FieldTypes(context.Context) (map[string]querymodel.ValueType, error) {
	return t.schema.FieldTypes(), nil
}

func (t *SystemTable) Implement(node plan.Node) (scan.Operator, error) {
	impl := &relationImplementor{
		kind: "system",
		build: func() scan.Operator {
			return scan.NewSystemScan(t.request)
		},
	}
	if err := node.Accept(impl); err != nil {
		return nil, err
	}
	return impl.op, nil
}

// relationImplementor serves tables that only support full reads.
type relationImplementor struct {
	kind  string
	build func() scan.Operator
	op    scan.Operator
}

func (i *relationImplementor) VisitScan(*plan.ScanNode) error {
	return errors.Errorf("filters cannot be pushed into a %s table", i.kind)
}

func (i *relationImplementor) VisitAggregation(*plan.AggregationNode) error {
	return errors.Errorf("aggregations cannot be pushed into a %s table", i.kind)
}

func (i *relationImplementor) VisitRelation(*plan.RelationNode) error {
	i.op = i.build()
	return nil
}
