package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/sqlbridge/pkg/client"
	"github.com/grafana/sqlbridge/pkg/jobs"
	"github.com/grafana/sqlbridge/pkg/plan"
	"github.com/grafana/sqlbridge/pkg/querymodel"
	"github.com/grafana/sqlbridge/pkg/scan"
	"github.com/grafana/sqlbridge/pkg/system"
)

var now = time.Unix(1_700_000_000, 0)

type fakeCatalog struct {
	mu          sync.Mutex
	labelCalls  int
	lastRequest querymodel.QueryRequest
	body        string
	labelsErr   error
}

func (f *fakeCatalog) QueryRange(_ context.Context, req querymodel.QueryRequest) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRequest = req
	return []byte(f.body), nil
}

func (f *fakeCatalog) Labels(_ context.Context, _ string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labelCalls++
	if f.labelsErr != nil {
		return nil, f.labelsErr
	}
	return []string{"host", "region"}, nil
}

func (f *fakeCatalog) Metrics(context.Context) ([]client.MetricInfo, error) {
	return []client.MetricInfo{{Name: "cpu_usage", Type: "gauge"}}, nil
}

func testConfig() Config {
	return Config{Name: "prom", Type: TypePrometheus, Schema: "default", DefaultWindow: time.Hour, LabelCacheSize: 10}
}

func newMetricEngine(t *testing.T, catalog *fakeCatalog) *Engine {
	t.Helper()
	clock := quartz.NewMock(t)
	clock.Set(now)
	e, err := NewMetricEngine(testConfig(), catalog, system.PrometheusSchemas(), clock, log.NewNopLogger())
	require.NoError(t, err)
	return e
}

func drain(t *testing.T, op scan.Operator) []querymodel.Row {
	t.Helper()
	require.NoError(t, op.Open(context.Background()))
	defer op.Close()
	var rows []querymodel.Row
	for op.HasNext() {
		r, err := op.Next()
		require.NoError(t, err)
		rows = append(rows, r)
	}
	return rows
}

func TestMetricTableFieldTypesCached(t *testing.T) {
	catalog := &fakeCatalog{}
	e := newMetricEngine(t, catalog)

	for i := 0; i < 3; i++ {
		types, err := e.MetricTable("cpu_usage").FieldTypes(context.Background())
		require.NoError(t, err)
		assert.Equal(t, map[string]querymodel.ValueType{
			"host":                    querymodel.String,
			"region":                  querymodel.String,
			querymodel.ValueField:     querymodel.Double,
			querymodel.TimestampField: querymodel.Timestamp,
		}, types)
	}
	assert.Equal(t, 1, catalog.labelCalls)
}

func TestMetricTableFieldTypesError(t *testing.T) {
	boom := errors.New("boom")
	e := newMetricEngine(t, &fakeCatalog{labelsErr: boom})
	_, err := e.MetricTable("cpu_usage").FieldTypes(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestMetricTableScan(t *testing.T) {
	e := newMetricEngine(t, &fakeCatalog{})
	op, err := e.MetricTable("up").Implement(&plan.ScanNode{Filter: plan.Eq(plan.Ref("job"), plan.Str("api"))})
	require.NoError(t, err)

	ms, ok := op.(*scan.MetricScan)
	require.True(t, ok)
	assert.Equal(t, `up{job="api"}`, ms.Request.SeriesQuery)
	assert.Equal(t, now.Unix()-3600, ms.Request.StartTime)
	assert.Equal(t, now.Unix(), ms.Request.EndTime)

	op, err = e.MetricTable("up").Implement(&plan.RelationNode{Name: "up"})
	require.NoError(t, err)
	assert.Equal(t, "up", op.(*scan.MetricScan).Request.SeriesQuery)
}

func TestMetricTableAggregationEndToEnd(t *testing.T) {
	catalog := &fakeCatalog{body: `{"status":"success","data":{"resultType":"matrix","result":[
		{"metric":{"host":"a"},"values":[[3600,"5"]]},
		{"metric":{"host":"b"},"values":[[3600,"7"]]}]}}`}
	e := newMetricEngine(t, catalog)

	start := now.Unix() - 24*3600
	node := &plan.AggregationNode{
		MetricName: "cpu_usage",
		Filter: plan.AndAll(
			plan.Comparison{Op: plan.OpGte, Left: plan.Ref(querymodel.TimestampField), Right: plan.Int(start)},
			plan.Comparison{Op: plan.OpLte, Left: plan.Ref(querymodel.TimestampField), Right: plan.Int(now.Unix())},
		),
		Aggregators: []plan.NamedAggregator{
			{Name: "sum(@value)", Function: "sum", Args: []plan.Expr{plan.Ref(querymodel.ValueField)}, Type: querymodel.Double},
		},
		GroupBy: []plan.NamedExpression{
			{Name: "host", Delegated: plan.Ref("host")},
			{Name: "span(@timestamp,1h)", Delegated: plan.Span{Field: plan.Ref(querymodel.TimestampField), Value: 1, Unit: time.Hour}},
		},
	}
	op, err := e.MetricTable("cpu_usage").Implement(node)
	require.NoError(t, err)

	rows := drain(t, op)
	assert.Equal(t, "3600s", catalog.lastRequest.Step)
	assert.Equal(t, "sum(cpu_usage[3600s]) by (host)", catalog.lastRequest.SeriesQuery)

	require.Len(t, rows, 2)
	for i, host := range []string{"a", "b"} {
		assert.Equal(t, []string{"span(@timestamp,1h)", "sum(@value)", "host"}, rows[i].Columns())
		v, _ := rows[i].Get("host")
		assert.Equal(t, host, v.String())
	}
	v, _ := rows[1].Get("sum(@value)")
	assert.Equal(t, 7.0, v.Interface())
}

func TestMetricTableAggregationWithoutSpan(t *testing.T) {
	e := newMetricEngine(t, &fakeCatalog{})
	_, err := e.MetricTable("cpu_usage").Implement(&plan.AggregationNode{
		Aggregators: []plan.NamedAggregator{{Name: "avg(@value)", Function: "avg", Type: querymodel.Double}},
		GroupBy:     []plan.NamedExpression{{Name: "host", Delegated: plan.Ref("host")}},
	})
	var ue *querymodel.UnsupportedAggregationError
	require.ErrorAs(t, err, &ue)
}

func TestQueryRangeFunction(t *testing.T) {
	catalog := &fakeCatalog{body: `{"resultType":"matrix","result":[{"metric":{"b":"2","a":"1"},"values":[[1,"3"]]}]}`}
	e := newMetricEngine(t, catalog)

	table, err := e.TableFunction("QUERY_RANGE", []plan.NamedArgument{
		{Name: "query", Value: plan.Str("rate(x[1m])")},
		{Name: "starttime", Value: plan.Int(0)},
		{Name: "endtime", Value: plan.Int(60)},
		{Name: "step", Value: plan.Int(10)},
	})
	require.NoError(t, err)

	types, err := table.FieldTypes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, querymodel.String, types[querymodel.LabelsField])
	assert.Equal(t, 0, catalog.labelCalls)

	op, err := table.Implement(&plan.RelationNode{})
	require.NoError(t, err)
	rows := drain(t, op)
	require.Len(t, rows, 1)
	labels, _ := rows[0].Get(querymodel.LabelsField)
	assert.Equal(t, `{"a":"1","b":"2"}`, labels.String())
	assert.Equal(t, "rate(x[1m])", catalog.lastRequest.SeriesQuery)
	assert.Equal(t, "10s", catalog.lastRequest.Step)

	_, err = table.Implement(&plan.AggregationNode{})
	var ue *querymodel.UnsupportedAggregationError
	require.ErrorAs(t, err, &ue)

	_, err = e.TableFunction("sql", []plan.NamedArgument{{Name: "query", Value: plan.Str("select 1")}})
	require.ErrorContains(t, err, "does not support table function sql")
}

func TestSystemTables(t *testing.T) {
	e := newMetricEngine(t, &fakeCatalog{})

	tables, err := e.Table("INFORMATION_SCHEMA", "tables")
	require.NoError(t, err)
	op, err := tables.Implement(&plan.RelationNode{})
	require.NoError(t, err)
	rows := drain(t, op)
	require.Len(t, rows, 1)
	name, _ := rows[0].Get(system.TableName)
	assert.Equal(t, "cpu_usage", name.String())

	_, err = e.Table(system.InformationSchema, "columns")
	require.ErrorContains(t, err, "doesn't contain columns")

	describe, err := e.DescribeTable("cpu_usage")
	require.NoError(t, err)
	types, err := describe.FieldTypes(context.Background())
	require.NoError(t, err)
	assert.Len(t, types, 5)
	op, err = describe.Implement(&plan.RelationNode{})
	require.NoError(t, err)
	rows = drain(t, op)
	require.Len(t, rows, 4)
	col, _ := rows[0].Get(system.ColumnName)
	assert.Equal(t, querymodel.TimestampField, col.String())

	_, err = describe.Implement(&plan.ScanNode{})
	require.Error(t, err)

	other, err := e.Table("default", "cpu_usage")
	require.NoError(t, err)
	assert.Equal(t, "cpu_usage", other.(*MetricTable).Metric())
	assert.Len(t, e.Functions(), 1)
}

type successBackend struct{}

func (successBackend) Submit(context.Context, string) (jobs.Submission, error) {
	return jobs.Submission{ID: "run-1"}, nil
}

func (successBackend) Poll(context.Context, string) (jobs.Status, error) {
	return jobs.Status{State: querymodel.JobSuccess}, nil
}

func (successBackend) Cancel(context.Context, string) error { return nil }

type staticStore struct{ body string }

func (s staticStore) Fetch(context.Context, string) ([]byte, error) { return []byte(s.body), nil }

func TestSparkEngine(t *testing.T) {
	cfg := jobs.Config{PollInterval: time.Second, MaxPollAttempts: 3, ResultRecheckDelay: time.Millisecond, CancelTimeout: time.Second}
	store := staticStore{body: `{"data":{"schema":["{'column_name':'n','data_type':'long'}"],"result":["{'n':42}"]}}`}
	controller := jobs.NewController(cfg, "test", successBackend{}, store, quartz.NewMock(t), prometheus.NewRegistry(), log.NewNopLogger())
	e := NewSparkEngine(Config{Name: "spark", Schema: "default"}, controller, log.NewNopLogger())
	defer e.Close()

	_, err := e.Table("default", "anything")
	require.Error(t, err)
	_, err = e.DescribeTable("anything")
	require.Error(t, err)

	_, err = e.TableFunction("sql", []plan.NamedArgument{{Name: "sql", Value: plan.Str("select 42")}})
	require.Error(t, err)

	table, err := e.TableFunction("sql", []plan.NamedArgument{{Name: "query", Value: plan.Str("select 42 as n")}})
	require.NoError(t, err)
	types, err := table.FieldTypes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, types)

	op, err := table.Implement(&plan.RelationNode{})
	require.NoError(t, err)
	rows := drain(t, op)
	require.Len(t, rows, 1)
	n, _ := rows[0].Get("n")
	assert.Equal(t, int64(42), n.Interface())

	_, err = table.Implement(&plan.ScanNode{})
	require.Error(t, err)
	require.Len(t, e.Functions(), 1)
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig()
	require.ErrorContains(t, cfg.Validate(), "invalid prometheus config")

	cfg.Prometheus.URL = "http://localhost:9090"
	require.NoError(t, cfg.Validate())

	cfg.Name = ""
	require.ErrorContains(t, cfg.Validate(), "name is required")

	cfg = testConfig()
	cfg.Type = "graphite"
	require.ErrorContains(t, cfg.Validate(), "unsupported data source type")

	cfg.Type = TypeSpark
	cfg.Spark.Backend = "yarn"
	require.ErrorContains(t, cfg.Validate(), "unsupported spark backend")

	cfg.Spark.Backend = SparkGateway
	require.Error(t, cfg.Validate())

	_, err := NewEngine(testConfig(), quartz.NewReal(), prometheus.NewRegistry(), log.NewNopLogger())
	require.Error(t, err)
}
