package system

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/grafana/sqlbridge/pkg/client"
	"github.com/grafana/sqlbridge/pkg/querymodel"
	"github.com/grafana/sqlbridge/pkg/translate"
)

// Source names the data source and schema a request runs in.
type Source struct {
	Catalog string
	Schema  string
}

// FieldTypesFunc returns the columns of a metric table.
type FieldTypesFunc func(ctx context.Context) (map[string]querymodel.ValueType, error)

// DescribeRequest lists the columns of one metric.
type DescribeRequest struct {
	source  Source
	schemas Schemas
	metric  string
	fields  FieldTypesFunc
}

// NewDescribeRequest returns the DESCRIBE request of metric.
func NewDescribeRequest(source Source, schemas Schemas, metric string, fields FieldTypesFunc) *DescribeRequest {
	return &DescribeRequest{source: source, schemas: schemas, metric: metric, fields: fields}
}

// Search returns one row per column, sorted by column name.
func (r *DescribeRequest) Search(ctx context.Context) ([]querymodel.Row, error) {
	types, err := r.fields(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching columns of %s", r.metric)
	}
	names := make([]string, 0, len(types))
	for n := range types {
		names = append(names, n)
	}
	sort.Strings(names)

	schema, table := r.source.Schema, r.metric
	if r.schemas.Namespaced {
		if m := translate.ParseMetricName(r.metric); m.Namespace != "" {
			schema, table = m.Namespace, m.Name
		}
	}
	rows := make([]querymodel.Row, 0, len(names))
	for _, n := range names {
		rows = append(rows, r.schemas.Mappings.Row(r.source.Catalog, schema, table, n, strings.ToLower(types[n].String())))
	}
	return rows, nil
}

func (r *DescribeRequest) String() string {
	return fmt.Sprintf("DescribeMetric(metric=%s)", r.metric)
}

// ListMetricsRequest lists every metric of a catalog.
type ListMetricsRequest struct {
	source  Source
	schemas Schemas
	catalog client.MetricCatalogClient
}

// NewListMetricsRequest returns the SHOW TABLES request of a catalog.
func NewListMetricsRequest(source Source, schemas Schemas, catalog client.MetricCatalogClient) *ListMetricsRequest {
	return &ListMetricsRequest{source: source, schemas: schemas, catalog: catalog}
}

// Search returns one row per metric in the order the backend lists them.
func (r *ListMetricsRequest) Search(ctx context.Context) ([]querymodel.Row, error) {
	metrics, err := r.catalog.Metrics(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing metrics")
	}
	rows := make([]querymodel.Row, 0, len(metrics))
	for _, m := range metrics {
		if r.schemas.Namespaced {
			rows = append(rows, r.schemas.Tables.Row(r.source.Catalog, m.Namespace, m.Name))
			continue
		}
		rows = append(rows, r.schemas.Tables.Row(r.source.Catalog, r.source.Schema, m.Name, m.Type, m.Unit, m.Help))
	}
	return rows, nil
}

func (r *ListMetricsRequest) String() string {
	return fmt.Sprintf("ListMetrics(catalog=%s)", r.source.Catalog)
}
