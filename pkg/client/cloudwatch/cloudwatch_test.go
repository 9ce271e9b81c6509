package cloudwatch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/sqlbridge/pkg/client"
	"github.com/grafana/sqlbridge/pkg/querymodel"
	"github.com/grafana/sqlbridge/pkg/response"
)

type recorded struct {
	target string
	body   string
}

type recorder struct {
	mu    sync.Mutex
	calls []recorded
}

func (r *recorder) add(c recorded) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

func (r *recorder) get() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recorded(nil), r.calls...)
}

func fakeServer(t *testing.T, reply func(target, body string) (int, string)) (*Client, *recorder) {
	t.Helper()
	calls := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		target := r.Header.Get("X-Amz-Target")
		calls.add(recorded{target: target, body: string(b)})
		code, out := reply(target, string(b))
		w.WriteHeader(code)
		_, _ = w.Write([]byte(out))
	}))
	t.Cleanup(srv.Close)

	c := NewWithHTTPClient(srv.URL, srv.Client(), client.NewMetrics(prometheus.NewRegistry()), log.NewNopLogger())
	return c, calls
}

func TestQueryRange(t *testing.T) {
	c, calls := fakeServer(t, func(string, string) (int, string) {
		return http.StatusOK, `{"MetricDataResults": [{"Id": "q1", "Label": "CPUUtilization", "StatusCode": "Complete", "Timestamps": [1, 2], "Values": [10, 20], "Messages": []}]}`
	})

	body, err := c.QueryRange(context.Background(), querymodel.QueryRequest{
		SeriesQuery:  `sum(AWS-EC2.CPUUtilization{InstanceId="i-1"}[300s])`,
		StartTime:    100,
		EndTime:      200,
		Step:         "300s",
		SourceMetric: "AWS-EC2.CPUUtilization",
	})
	require.NoError(t, err)

	require.Len(t, calls.get(), 1)
	assert.Equal(t, "GraniteServiceVersion20100801.GetMetricData", calls.get()[0].target)
	assert.JSONEq(t, `{
		"MetricDataQueries": [{"Id": "q1", "MetricStat": {
			"Metric": {"Namespace": "AWS/EC2", "MetricName": "CPUUtilization", "Dimensions": [{"Name": "InstanceId", "Value": "i-1"}]},
			"Period": 300,
			"Stat": "Sum"
		}}],
		"StartTime": 100,
		"EndTime": 200
	}`, calls.get()[0].body)

	it, err := response.Materialize("q", body, querymodel.DefaultFieldNames())
	require.NoError(t, err)
	rows, err := response.Drain(it)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	v, ok := rows[1].Get("InstanceId")
	require.True(t, ok)
	assert.Equal(t, "i-1", v.Interface())
}

func TestQueryRangeUnavailable(t *testing.T) {
	c, _ := fakeServer(t, func(string, string) (int, string) {
		return http.StatusServiceUnavailable, "throttled"
	})

	_, err := c.QueryRange(context.Background(), querymodel.QueryRequest{SeriesQuery: "cpu", Step: "60s", SourceMetric: "cpu"})
	var be *querymodel.BackendUnavailableError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusServiceUnavailable, be.StatusCode)
	assert.Equal(t, "throttled", be.Body)
}

func TestLabels(t *testing.T) {
	c, calls := fakeServer(t, func(string, string) (int, string) {
		return http.StatusOK, `{"Metrics": [{"Namespace": "AWS/EC2", "MetricName": "CPUUtilization", "Dimensions": [{"Name": "InstanceId", "Value": "i-1"}]}]}`
	})

	labels, err := c.Labels(context.Background(), "AWS-EC2.CPUUtilization")
	require.NoError(t, err)
	assert.Equal(t, []string{"InstanceId", "Id", "Label", "StatusCode"}, labels)
	assert.Equal(t, "GraniteServiceVersion20100801.ListMetrics", calls.get()[0].target)
	assert.JSONEq(t, `{"Namespace": "AWS/EC2", "MetricName": "CPUUtilization"}`, calls.get()[0].body)
}

func TestMetricsPaginates(t *testing.T) {
	c, calls := fakeServer(t, func(_, body string) (int, string) {
		if body == `{}` {
			return http.StatusOK, `{"Metrics": [{"Namespace": "AWS/EC2", "MetricName": "CPUUtilization"}], "NextToken": "t1"}`
		}
		return http.StatusOK, `{"Metrics": [{"Namespace": "AWS/S3", "MetricName": "BucketSizeBytes"}]}`
	})

	metrics, err := c.Metrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []client.MetricInfo{
		{Namespace: "AWS/EC2", Name: "CPUUtilization"},
		{Namespace: "AWS/S3", Name: "BucketSizeBytes"},
	}, metrics)
	require.Len(t, calls.get(), 2)
	assert.JSONEq(t, `{"NextToken": "t1"}`, calls.get()[1].body)
}

func TestStatAndPeriod(t *testing.T) {
	assert.Equal(t, "Average", Stat(`cpu{a="1"}`))
	assert.Equal(t, "Maximum", Stat(`max(cpu[60s]) by (a)`))
	assert.Equal(t, "SampleCount", Stat(`count(cpu[60s])`))
	assert.Equal(t, "Average", Stat(`rate(cpu[60s])`))

	assert.Equal(t, int64(1), Period(time.Second))
	assert.Equal(t, int64(30), Period(15*time.Second))
	assert.Equal(t, int64(60), Period(45*time.Second))
	assert.Equal(t, int64(3600), Period(time.Hour))
	assert.Equal(t, int64(120), Period(61*time.Second))
}
