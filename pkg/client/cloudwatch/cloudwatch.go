package cloudwatch

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/jsonparser"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/grafana/sqlbridge/pkg/client"
	"github.com/grafana/sqlbridge/pkg/querymodel"
	"github.com/grafana/sqlbridge/pkg/translate"
	"github.com/grafana/sqlbridge/pkg/util/awsutil"
)

const (
	backendName = "cloudwatch"
	service     = "monitoring"
	targetPfx   = "GraniteServiceVersion20100801."

	actionGetMetricData = "GetMetricData"
	actionListMetrics   = "ListMetrics"

	defaultStat = "Average"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Extra columns reported by GetMetricData besides the dimensions.
var resultLabels = []string{"Id", "Label", "StatusCode"}

var stats = map[string]string{
	"sum":   "Sum",
	"avg":   "Average",
	"min":   "Minimum",
	"max":   "Maximum",
	"count": "SampleCount",
}

// Config configures the CloudWatch client.
type Config struct {
	client.Config `yaml:",inline"`
	AWS           awsutil.Config `yaml:"aws"`
	// SignRequests disables SigV4 signing when false, for local fakes.
	SignRequests bool `yaml:"sign_requests"`
}

// RegisterFlagsWithPrefix registers the flags under prefix.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	cfg.Config.RegisterFlagsWithPrefix(prefix, f)
	cfg.AWS.RegisterFlagsWithPrefix(prefix, f)
	f.BoolVar(&cfg.SignRequests, prefix+"sign-requests", true, "Sign requests with AWS SigV4.")
}

// Validate checks the configuration.
func (cfg *Config) Validate() error {
	if err := cfg.AWS.Validate(); err != nil {
		return err
	}
	if cfg.URL == "" {
		cfg.URL = fmt.Sprintf("https://%s.%s.amazonaws.com", service, cfg.AWS.Region)
	}
	return cfg.Config.Validate()
}

// Client talks to the CloudWatch JSON API.
type Client struct {
	url     string
	http    *http.Client
	metrics *client.Metrics
	logger  log.Logger
}

// New returns a Client. Requests are signed at the transport when
// cfg.SignRequests is set.
func New(cfg Config, metrics *client.Metrics, logger log.Logger) (*Client, error) {
	httpClient, err := client.NewHTTPClient(cfg.Config, backendName)
	if err != nil {
		return nil, err
	}
	if cfg.SignRequests {
		sess, err := awsutil.NewSession(cfg.AWS, nil)
		if err != nil {
			return nil, err
		}
		httpClient.Transport = awsutil.NewSigV4RoundTripper(sess, service, httpClient.Transport)
	}
	return NewWithHTTPClient(cfg.URL, httpClient, metrics, logger), nil
}

// NewWithHTTPClient returns a Client sending requests through httpClient.
func NewWithHTTPClient(url string, httpClient *http.Client, metrics *client.Metrics, logger log.Logger) *Client {
	return &Client{
		url:     strings.TrimSuffix(url, "/"),
		http:    httpClient,
		metrics: metrics,
		logger:  logger,
	}
}

type dimension struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

type metric struct {
	Namespace  string      `json:"Namespace,omitempty"`
	MetricName string      `json:"MetricName"`
	Dimensions []dimension `json:"Dimensions,omitempty"`
}

type metricStat struct {
	Metric metric `json:"Metric"`
	Period int64  `json:"Period"`
	Stat   string `json:"Stat"`
}

type metricDataQuery struct {
	ID         string     `json:"Id"`
	MetricStat metricStat `json:"MetricStat"`
}

type getMetricDataInput struct {
	MetricDataQueries []metricDataQuery `json:"MetricDataQueries"`
	StartTime         int64             `json:"StartTime"`
	EndTime           int64             `json:"EndTime"`
}

type listMetricsInput struct {
	Namespace  string `json:"Namespace,omitempty"`
	MetricName string `json:"MetricName,omitempty"`
	NextToken  string `json:"NextToken,omitempty"`
}

// QueryRange implements client.MetricCatalogClient. The first
// MetricDataResults entry is returned with the query's label filter added
// as constant keys.
func (c *Client) QueryRange(ctx context.Context, req querymodel.QueryRequest) ([]byte, error) {
	matchers, err := translate.ParseLabelFilter(req.SeriesQuery)
	if err != nil {
		return nil, err
	}
	step, err := time.ParseDuration(req.Step)
	if err != nil {
		return nil, &querymodel.InvalidStepError{Query: req.SeriesQuery, Reason: err.Error()}
	}

	name := translate.ParseMetricName(metricName(req))
	m := metric{Namespace: name.Namespace, MetricName: name.Name}
	for _, lm := range matchers {
		m.Dimensions = append(m.Dimensions, dimension{Name: lm.Name, Value: lm.Value})
	}
	in := getMetricDataInput{
		MetricDataQueries: []metricDataQuery{{
			ID: "q1",
			MetricStat: metricStat{
				Metric: m,
				Period: Period(step),
				Stat:   Stat(req.SeriesQuery),
			},
		}},
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	}

	body, err := c.call(ctx, actionGetMetricData, in)
	if err != nil {
		return nil, err
	}
	result, dt, _, err := jsonparser.Get(body, "MetricDataResults", "[0]")
	if err != nil || dt != jsonparser.Object {
		return nil, &querymodel.UnexpectedResponseShapeError{Query: req.SeriesQuery, Reason: "no MetricDataResults"}
	}
	// jsonparser.Set may write into its input.
	result = append([]byte(nil), result...)
	for _, lm := range matchers {
		v, err := json.Marshal(lm.Value)
		if err != nil {
			return nil, err
		}
		if result, err = jsonparser.Set(result, v, lm.Name); err != nil {
			return nil, errors.Wrapf(err, "adding label %s", lm.Name)
		}
	}
	return result, nil
}

// Labels implements client.MetricCatalogClient.
func (c *Client) Labels(ctx context.Context, metricName string) ([]string, error) {
	name := translate.ParseMetricName(metricName)
	body, err := c.call(ctx, actionListMetrics, listMetricsInput{Namespace: name.Namespace, MetricName: name.Name})
	if err != nil {
		return nil, err
	}

	var labels []string
	_, err = jsonparser.ArrayEach(body, func(value []byte, _ jsonparser.ValueType, _ int, _ error) {
		if n, err := jsonparser.GetString(value, "Name"); err == nil {
			labels = append(labels, n)
		}
	}, "Metrics", "[0]", "Dimensions")
	if err != nil && err != jsonparser.KeyPathNotFoundError {
		return nil, &querymodel.UnexpectedResponseShapeError{Query: metricName, Reason: err.Error()}
	}
	return append(labels, resultLabels...), nil
}

// Metrics implements client.MetricCatalogClient, following NextToken until
// every page was read.
func (c *Client) Metrics(ctx context.Context) ([]client.MetricInfo, error) {
	var (
		out   []client.MetricInfo
		token string
	)
	for {
		body, err := c.call(ctx, actionListMetrics, listMetricsInput{NextToken: token})
		if err != nil {
			return nil, err
		}
		_, err = jsonparser.ArrayEach(body, func(value []byte, _ jsonparser.ValueType, _ int, _ error) {
			ns, _ := jsonparser.GetString(value, "Namespace")
			name, _ := jsonparser.GetString(value, "MetricName")
			out = append(out, client.MetricInfo{Namespace: ns, Name: name})
		}, "Metrics")
		if err != nil && err != jsonparser.KeyPathNotFoundError {
			return nil, &querymodel.UnexpectedResponseShapeError{Query: actionListMetrics, Reason: err.Error()}
		}
		next, err := jsonparser.GetString(body, "NextToken")
		if err != nil || next == "" || next == token {
			return out, nil
		}
		token = next
		level.Debug(c.logger).Log("msg", "fetching next metrics page", "backend", backendName)
	}
}

func (c *Client) call(ctx context.Context, action string, in interface{}) ([]byte, error) {
	buf, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, c.url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-amz-json-1.0")
	req.Header.Set("X-Amz-Target", targetPfx+action)
	return client.Do(ctx, c.http, c.metrics, c.logger, backendName, action, req)
}

func metricName(req querymodel.QueryRequest) string {
	if req.SourceMetric != "" {
		return req.SourceMetric
	}
	q := req.SeriesQuery
	if i := strings.LastIndexByte(q, '('); i >= 0 {
		q = q[i+1:]
	}
	if i := strings.IndexAny(q, "{[)"); i >= 0 {
		q = q[:i]
	}
	return strings.TrimSpace(q)
}

// Stat maps the aggregation wrapping a series query to a CloudWatch
// statistic, defaulting to Average.
func Stat(query string) string {
	fn, _, ok := strings.Cut(query, "(")
	if !ok {
		return defaultStat
	}
	if s, ok := stats[strings.ToLower(strings.TrimSpace(fn))]; ok {
		return s
	}
	return defaultStat
}

// Period rounds step up to a period CloudWatch accepts: 1, 5, 10, 30 or a
// multiple of 60 seconds.
func Period(step time.Duration) int64 {
	secs := int64((step + time.Second - 1) / time.Second)
	for _, p := range []int64{1, 5, 10, 30, 60} {
		if secs <= p {
			return p
		}
	}
	return (secs + 59) / 60 * 60
}
