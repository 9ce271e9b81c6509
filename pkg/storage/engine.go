package storage

import (
	"strings"

	"github.com/coder/quartz"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/grafana/sqlbridge/pkg/client"
	"github.com/grafana/sqlbridge/pkg/client/cloudwatch"
	promclient "github.com/grafana/sqlbridge/pkg/client/prometheus"
	"github.com/grafana/sqlbridge/pkg/functions"
	"github.com/grafana/sqlbridge/pkg/jobs"
	"github.com/grafana/sqlbridge/pkg/jobs/emr"
	"github.com/grafana/sqlbridge/pkg/jobs/emrserverless"
	"github.com/grafana/sqlbridge/pkg/jobs/gateway"
	"github.com/grafana/sqlbridge/pkg/jobs/resultstore"
	"github.com/grafana/sqlbridge/pkg/plan"
	"github.com/grafana/sqlbridge/pkg/system"
	"github.com/grafana/sqlbridge/pkg/translate"
)

// Engine resolves the tables and table functions of one data source.
type Engine struct {
	source  system.Source
	schemas system.Schemas
	logger  log.Logger

	// Metric data sources.
	catalog    client.MetricCatalogClient
	translator *translate.Translator
	labels     *labelCache

	// Spark data sources.
	jobs *jobs.Controller
}

// NewEngine validates cfg and builds the clients of the data source.
func NewEngine(cfg Config, clock quartz.Clock, reg prometheus.Registerer, logger log.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = log.With(logger, "datasource", cfg.Name)

	switch cfg.Type {
	case TypeCloudWatch:
		c, err := cloudwatch.New(cfg.CloudWatch, client.NewMetrics(reg), logger)
		if err != nil {
			return nil, err
		}
		return NewMetricEngine(cfg, c, system.CloudWatchSchemas(), clock, logger)
	case TypePrometheus:
		c, err := promclient.New(cfg.Prometheus, client.NewMetrics(reg), logger)
		if err != nil {
			return nil, err
		}
		return NewMetricEngine(cfg, c, system.PrometheusSchemas(), clock, logger)
	}

	backend, field, err := newSparkBackend(cfg.Spark)
	if err != nil {
		return nil, err
	}
	store, err := resultstore.New(cfg.Spark.Results, cfg.Spark.spark().Index(), field)
	if err != nil {
		return nil, err
	}
	controller := jobs.NewController(cfg.Spark.Jobs, cfg.Spark.Backend, backend, store, clock, reg, logger)
	return NewSparkEngine(cfg, controller, logger), nil
}

func newSparkBackend(cfg SparkConfig) (jobs.Backend, string, error) {
	switch cfg.Backend {
	case SparkEMR:
		b, err := emr.New(cfg.EMR)
		return b, emr.ResultField, err
	case SparkGateway:
		b, err := gateway.New(cfg.Gateway)
		return b, gateway.ResultField, err
	}
	b, err := emrserverless.New(cfg.EMRServerless)
	return b, emrserverless.ResultField, err
}

// NewMetricEngine returns an engine serving the metrics of catalog.
func NewMetricEngine(cfg Config, catalog client.MetricCatalogClient, schemas system.Schemas, clock quartz.Clock, logger log.Logger) (*Engine, error) {
	labels, err := newLabelCache(catalog, cfg.LabelCacheSize)
	if err != nil {
		return nil, err
	}
	return &Engine{
		source:     system.Source{Catalog: cfg.Name, Schema: cfg.Schema},
		schemas:    schemas,
		logger:     logger,
		catalog:    catalog,
		translator: translate.NewTranslator(clock, cfg.DefaultWindow, true),
		labels:     labels,
	}, nil
}

// NewSparkEngine returns an engine running SQL through controller.
func NewSparkEngine(cfg Config, controller *jobs.Controller, logger log.Logger) *Engine {
	return &Engine{
		source: system.Source{Catalog: cfg.Name, Schema: cfg.Schema},
		logger: logger,
		jobs:   controller,
	}
}

// Source returns the data source name and schema.
func (e *Engine) Source() system.Source { return e.source }

// Functions returns the table functions the data source supports.
func (e *Engine) Functions() []functions.Signature {
	var out []functions.Signature
	for _, sig := range functions.Signatures() {
		if e.supports(sig.Name) {
			out = append(out, sig)
		}
	}
	return out
}

func (e *Engine) supports(function string) bool {
	switch function {
	case functions.QueryRange:
		return e.catalog != nil
	case functions.SQL:
		return e.jobs != nil
	}
	return false
}

// Table resolves name within schema. The tables listing lives in the
// information schema; every other name of a metric source is a metric.
func (e *Engine) Table(schema, name string) (Table, error) {
	if strings.EqualFold(schema, system.InformationSchema) {
		if strings.EqualFold(name, system.TablesTable) && e.catalog != nil {
			return e.TablesTable(), nil
		}
		return nil, errors.Errorf("information schema doesn't contain %s table", name)
	}
	if e.catalog == nil {
		return nil, errors.Errorf("data source %s has no tables, use the %s table function", e.source.Catalog, functions.SQL)
	}
	return e.MetricTable(name), nil
}

// MetricTable returns the table of a named metric.
func (e *Engine) MetricTable(metric string) *MetricTable {
	return &MetricTable{
		metric:     metric,
		catalog:    e.catalog,
		translator: e.translator,
		labels:     e.labels,
		logger:     e.logger,
	}
}

// TablesTable returns the SHOW TABLES table.
func (e *Engine) TablesTable() *SystemTable {
	return &SystemTable{
		schema:  e.schemas.Tables,
		request: system.NewListMetricsRequest(e.source, e.schemas, e.catalog),
	}
}

// DescribeTable returns the DESCRIBE table of metric.
func (e *Engine) DescribeTable(metric string) (*SystemTable, error) {
	if e.catalog == nil {
		return nil, errors.Errorf("data source %s does not describe tables", e.source.Catalog)
	}
	return &SystemTable{
		schema:  e.schemas.Mappings,
		request: system.NewDescribeRequest(e.source, e.schemas, metric, e.MetricTable(metric).FieldTypes),
	}, nil
}

// TableFunction applies the named table function.
func (e *Engine) TableFunction(name string, args []plan.NamedArgument) (Table, error) {
	name = strings.ToLower(name)
	if !e.supports(name) {
		return nil, errors.Errorf("data source %s does not support table function %s", e.source.Catalog, name)
	}
	if name == functions.SQL {
		query, err := functions.ParseSQL(args)
		if err != nil {
			return nil, err
		}
		return &SQLTable{query: query, jobs: e.jobs, logger: e.logger}, nil
	}
	req, err := functions.ParseQueryRange(args)
	if err != nil {
		return nil, err
	}
	return &MetricTable{
		request:    &req,
		catalog:    e.catalog,
		translator: e.translator,
		labels:     e.labels,
		logger:     e.logger,
	}, nil
}

// Close waits for abandoned jobs to be cancelled.
func (e *Engine) Close() {
	if e.jobs != nil {
		level.Debug(e.logger).Log("msg", "waiting for job cancellations")
		e.jobs.Wait()
	}
}
