package resultstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/olivere/elastic/v7"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/atomic"

	"github.com/grafana/sqlbridge/pkg/jobs"
)

func newStore(t *testing.T, handler http.HandlerFunc) *Store {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := elastic.NewClient(
		elastic.SetURL(srv.URL),
		elastic.SetSniff(false),
		elastic.SetHealthcheck(false),
	)
	require.NoError(t, err)
	return NewWithClient(c, ".query_execution_result", "jobRunId.keyword")
}

func TestFetch(t *testing.T) {
	var path, body atomic.String
	s := newStore(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		path.Store(r.URL.Path)
		body.Store(string(b))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"hits":{"total":{"value":1},"hits":[{"_index":"x","_id":"1","_source":{"jobRunId":"run-1","schema":["{'column_name':'a','data_type':'integer'}"],"result":["{'a':1}"]}}]}}`)
	})

	out, err := s.Fetch(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, "run-1", gjson.GetBytes(out, "data.jobRunId").String())
	require.Len(t, gjson.GetBytes(out, "data.result").Array(), 1)

	require.True(t, strings.HasPrefix(path.Load(), "/.query_execution_result/_search"))
	require.Equal(t, "run-1", gjson.Get(body.Load(), `query.term.jobRunId\.keyword`).String())
	require.Equal(t, int64(1), gjson.Get(body.Load(), "size").Int())
}

func TestFetchNoHits(t *testing.T) {
	s := newStore(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"hits":{"total":{"value":0},"hits":[]}}`)
	})

	_, err := s.Fetch(context.Background(), "run-1")
	require.ErrorIs(t, err, jobs.ErrResultNotFound)
}

func TestFetchMissingIndex(t *testing.T) {
	s := newStore(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"type":"index_not_found_exception","reason":"no such index"},"status":404}`)
	})

	_, err := s.Fetch(context.Background(), "run-1")
	require.ErrorIs(t, err, jobs.ErrResultNotFound)
}

func TestFetchServerError(t *testing.T) {
	s := newStore(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"type":"parse_exception","reason":"bad"},"status":400}`)
	})

	_, err := s.Fetch(context.Background(), "run-1")
	require.Error(t, err)
	require.NotErrorIs(t, err, jobs.ErrResultNotFound)
}
