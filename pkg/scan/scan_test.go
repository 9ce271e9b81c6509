package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/sqlbridge/pkg/client"
	"github.com/grafana/sqlbridge/pkg/querymodel"
)

type fakeCatalog struct {
	calls int
	body  string
	err   error
}

func (f *fakeCatalog) QueryRange(_ context.Context, _ querymodel.QueryRequest) ([]byte, error) {
	f.calls++
	return []byte(f.body), f.err
}

func (f *fakeCatalog) Labels(context.Context, string) ([]string, error) { return nil, nil }

func (f *fakeCatalog) Metrics(context.Context) ([]client.MetricInfo, error) { return nil, nil }

type fakeJobs struct {
	calls int
	body  string
	err   error
}

func (f *fakeJobs) SQL(_ context.Context, _ string) ([]byte, error) {
	f.calls++
	return []byte(f.body), f.err
}

type fakeSystem struct {
	rows []querymodel.Row
}

func (f fakeSystem) Search(context.Context) ([]querymodel.Row, error) { return f.rows, nil }
func (f fakeSystem) String() string                                    { return "fake" }

var request = querymodel.QueryRequest{
	SeriesQuery: `cpu{host="a"}`,
	StartTime:   1,
	EndTime:     2,
	Step:        "1s",
}

func TestMetricScanLifecycle(t *testing.T) {
	c := &fakeCatalog{body: `{"Timestamps":[1,2],"Values":[10,20]}`}
	s := NewMetricScan(c, request, querymodel.DefaultFieldNames(), log.NewNopLogger())

	_, err := s.Next()
	require.ErrorIs(t, err, querymodel.ErrIllegalState)
	assert.False(t, s.HasNext())

	require.NoError(t, s.Open(context.Background()))
	require.Equal(t, 1, c.calls)

	var got []time.Time
	for s.HasNext() {
		// HasNext does not consume.
		require.True(t, s.HasNext())
		row, err := s.Next()
		require.NoError(t, err)
		ts, ok := row.Get(querymodel.TimestampField)
		require.True(t, ok)
		got = append(got, ts.Time())
	}
	assert.Equal(t, []time.Time{time.UnixMilli(1000).UTC(), time.UnixMilli(2000).UTC()}, got)

	_, err = s.Next()
	require.ErrorIs(t, err, querymodel.ErrIteratorExhausted)

	require.ErrorIs(t, s.Open(context.Background()), querymodel.ErrIllegalState)
	require.Equal(t, 1, c.calls)
	require.NoError(t, s.Close())
	assert.Contains(t, s.Explain(), `cpu{host="a"}`)
}

func TestMetricScanInvalidRequest(t *testing.T) {
	c := &fakeCatalog{}
	req := request
	req.StartTime, req.EndTime = 10, 5
	s := NewMetricScan(c, req, querymodel.DefaultFieldNames(), log.NewNopLogger())

	var tr *querymodel.InvalidTimeRangeError
	require.ErrorAs(t, s.Open(context.Background()), &tr)
	require.Equal(t, 0, c.calls)
	assert.False(t, s.HasNext())
}

func TestMetricScanBackendError(t *testing.T) {
	boom := errors.New("boom")
	s := NewMetricScan(&fakeCatalog{err: boom}, request, querymodel.DefaultFieldNames(), log.NewNopLogger())
	require.ErrorIs(t, s.Open(context.Background()), boom)

	_, err := s.Next()
	require.ErrorIs(t, err, querymodel.ErrIteratorExhausted)
}

func TestMetricScanUnexpectedShape(t *testing.T) {
	s := NewMetricScan(&fakeCatalog{body: `{"resultType":"vector","result":[]}`}, request, querymodel.DefaultFieldNames(), log.NewNopLogger())
	var shape *querymodel.UnexpectedResponseShapeError
	require.ErrorAs(t, s.Open(context.Background()), &shape)
}

func TestJobScan(t *testing.T) {
	j := &fakeJobs{body: `{"data":{"schema":["{'column_name':'a','data_type':'integer'}"],"result":["{'a':1}","{'a':2}"]}}`}
	s := NewJobScan(j, "select a from t", querymodel.DefaultFieldNames(), log.NewNopLogger())
	require.NoError(t, s.Open(context.Background()))
	require.Equal(t, 1, j.calls)

	var got []interface{}
	for s.HasNext() {
		row, err := s.Next()
		require.NoError(t, err)
		v, _ := row.Get("a")
		got = append(got, v.Interface())
	}
	assert.Equal(t, []interface{}{int32(1), int32(2)}, got)
	assert.Equal(t, "JobScan(query=select a from t)", s.Explain())
}

func TestJobScanError(t *testing.T) {
	err := &querymodel.JobTimeoutError{JobID: "j-1", Attempts: 3}
	s := NewJobScan(&fakeJobs{err: err}, "select 1", querymodel.DefaultFieldNames(), log.NewNopLogger())

	var timeout *querymodel.JobTimeoutError
	require.ErrorAs(t, s.Open(context.Background()), &timeout)
	assert.Equal(t, "j-1", timeout.JobID)
}

func TestSystemScan(t *testing.T) {
	r := querymodel.NewRow(1)
	r.Set("TABLE_NAME", querymodel.StringValue("cpu"))
	s := NewSystemScan(fakeSystem{rows: []querymodel.Row{r}})

	require.NoError(t, s.Open(context.Background()))
	require.True(t, s.HasNext())
	row, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, r, row)
	assert.False(t, s.HasNext())

	require.NoError(t, s.Close())
	_, err = s.Next()
	require.ErrorIs(t, err, querymodel.ErrIllegalState)
	assert.Equal(t, "SystemScan(request=fake)", s.Explain())
}
