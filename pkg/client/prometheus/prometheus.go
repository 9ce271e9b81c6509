package prometheus

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/go-kit/log"
	"github.com/grafana/jsonparser"
	"github.com/prometheus/prometheus/model/labels"

	"github.com/grafana/sqlbridge/pkg/client"
	"github.com/grafana/sqlbridge/pkg/querymodel"
)

const (
	backendName = "prometheus"

	queryRangePath = "/api/v1/query_range"
	labelsPath     = "/api/v1/labels"
	metadataPath   = "/api/v1/metadata"
)

// Client talks to the Prometheus HTTP API.
type Client struct {
	url     string
	http    *http.Client
	metrics *client.Metrics
	logger  log.Logger
}

// New returns a Client for cfg.
func New(cfg client.Config, metrics *client.Metrics, logger log.Logger) (*Client, error) {
	httpClient, err := client.NewHTTPClient(cfg, backendName)
	if err != nil {
		return nil, err
	}
	return NewWithHTTPClient(cfg.URL, httpClient, metrics, logger), nil
}

// NewWithHTTPClient returns a Client sending requests through httpClient.
func NewWithHTTPClient(u string, httpClient *http.Client, metrics *client.Metrics, logger log.Logger) *Client {
	return &Client{url: strings.TrimSuffix(u, "/"), http: httpClient, metrics: metrics, logger: logger}
}

// QueryRange implements client.MetricCatalogClient and returns the data
// object of the response.
func (c *Client) QueryRange(ctx context.Context, req querymodel.QueryRequest) ([]byte, error) {
	form := url.Values{}
	form.Set("query", req.SeriesQuery)
	form.Set("start", strconv.FormatInt(req.StartTime, 10))
	form.Set("end", strconv.FormatInt(req.EndTime, 10))
	form.Set("step", req.Step)

	httpReq, err := http.NewRequest(http.MethodPost, c.url+queryRangePath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := client.Do(ctx, c.http, c.metrics, c.logger, backendName, "query_range", httpReq)
	if err != nil {
		return nil, err
	}
	return data(req.SeriesQuery, body)
}

// Labels implements client.MetricCatalogClient. The internal __name__ label
// is dropped.
func (c *Client) Labels(ctx context.Context, metric string) ([]string, error) {
	q := url.Values{}
	q.Set("match[]", metric)
	httpReq, err := http.NewRequest(http.MethodGet, c.url+labelsPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	body, err := client.Do(ctx, c.http, c.metrics, c.logger, backendName, "labels", httpReq)
	if err != nil {
		return nil, err
	}
	if _, err := data(metric, body); err != nil {
		return nil, err
	}

	var out []string
	_, err = jsonparser.ArrayEach(body, func(value []byte, dt jsonparser.ValueType, _ int, _ error) {
		if dt != jsonparser.String {
			return
		}
		name, err := jsonparser.ParseString(value)
		if err == nil && name != labels.MetricName {
			out = append(out, name)
		}
	}, "data")
	if err != nil {
		return nil, &querymodel.UnexpectedResponseShapeError{Query: metric, Reason: err.Error()}
	}
	return out, nil
}

// Metrics implements client.MetricCatalogClient using the metadata
// endpoint. Metrics are sorted by name.
func (c *Client) Metrics(ctx context.Context) ([]client.MetricInfo, error) {
	httpReq, err := http.NewRequest(http.MethodGet, c.url+metadataPath, nil)
	if err != nil {
		return nil, err
	}
	body, err := client.Do(ctx, c.http, c.metrics, c.logger, backendName, "metadata", httpReq)
	if err != nil {
		return nil, err
	}
	meta, err := data("metadata", body)
	if err != nil {
		return nil, err
	}

	var out []client.MetricInfo
	err = jsonparser.ObjectEach(meta, func(key, value []byte, _ jsonparser.ValueType, _ int) error {
		info := client.MetricInfo{Name: string(key)}
		// A metric may carry several metadata entries; the first one wins.
		if first, _, _, err := jsonparser.Get(value, "[0]"); err == nil {
			info.Type, _ = jsonparser.GetString(first, "type")
			info.Unit, _ = jsonparser.GetString(first, "unit")
			info.Help, _ = jsonparser.GetString(first, "help")
		}
		out = append(out, info)
		return nil
	})
	if err != nil {
		return nil, &querymodel.UnexpectedResponseShapeError{Query: "metadata", Reason: err.Error()}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// data checks the status field of an API response and returns its data.
func data(query string, body []byte) ([]byte, error) {
	status, err := jsonparser.GetString(body, "status")
	if err != nil {
		return nil, &querymodel.UnexpectedResponseShapeError{Query: query, Reason: "missing status"}
	}
	if status != "success" {
		msg, _ := jsonparser.GetString(body, "error")
		return nil, &querymodel.BackendUnavailableError{Backend: backendName, StatusCode: http.StatusOK, Body: msg}
	}
	d, _, _, err := jsonparser.Get(body, "data")
	if err != nil {
		return nil, &querymodel.UnexpectedResponseShapeError{Query: query, Reason: "missing data"}
	}
	return d, nil
}
