// Package client holds the metric catalog contract shared by the metric
// backends and the HTTP plumbing they have in common.
package client

import (
	"context"
	"flag"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/config"

	"github.com/grafana/sqlbridge/pkg/querymodel"
)

const userAgent = "sqlbridge"

// MetricInfo describes one metric known to a backend.
type MetricInfo struct {
	Namespace string
	Name      string
	Type      string
	Unit      string
	Help      string
}

// MetricCatalogClient is implemented by every metric backend.
type MetricCatalogClient interface {
	// QueryRange runs req and returns the backend's JSON result object: a
	// flat Timestamps/Values object or a matrix.
	QueryRange(ctx context.Context, req querymodel.QueryRequest) ([]byte, error)
	// Labels returns the label names of metric.
	Labels(ctx context.Context, metric string) ([]string, error)
	// Metrics lists every metric.
	Metrics(ctx context.Context) ([]MetricInfo, error)
}

// Config is the HTTP configuration of a metric backend.
type Config struct {
	URL              string                  `yaml:"url"`
	Timeout          time.Duration           `yaml:"timeout"`
	HTTPClientConfig config.HTTPClientConfig `yaml:"http_config"`
}

// RegisterFlagsWithPrefix registers the flags under prefix.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.URL, prefix+"url", "", "Base URL of the backend.")
	f.DurationVar(&cfg.Timeout, prefix+"timeout", 30*time.Second, "Timeout for a single backend request.")
	cfg.HTTPClientConfig = config.DefaultHTTPClientConfig
}

// Validate checks that the backend can be reached.
func (cfg *Config) Validate() error {
	if cfg.URL == "" {
		return errors.New("url is required")
	}
	return cfg.HTTPClientConfig.Validate()
}

// NewHTTPClient builds the HTTP client for cfg. Both the dial and the whole
// request are bounded by cfg.Timeout.
func NewHTTPClient(cfg Config, name string) (*http.Client, error) {
	dialer := &net.Dialer{Timeout: cfg.Timeout, KeepAlive: 30 * time.Second}
	c, err := config.NewClientFromConfig(cfg.HTTPClientConfig, name, config.WithDialContextFunc(dialer.DialContext))
	if err != nil {
		return nil, errors.Wrapf(err, "building %s http client", name)
	}
	c.Timeout = cfg.Timeout
	return c, nil
}

// Metrics instruments backend requests.
type Metrics struct {
	requestDuration *prometheus.HistogramVec
}

// NewMetrics registers the request metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		requestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sqlbridge",
			Name:      "backend_request_duration_seconds",
			Help:      "Time spent doing metric backend requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "operation", "status_code"}),
	}
}

// Do sends req and returns the response body. Responses other than 2xx and
// transport failures are returned as BackendUnavailableError.
func Do(ctx context.Context, c *http.Client, m *Metrics, logger log.Logger, backend, operation string, req *http.Request) ([]byte, error) {
	req = req.WithContext(ctx)
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.Do(req)
	if err != nil {
		m.observe(backend, operation, "error", start)
		return nil, &querymodel.BackendUnavailableError{Backend: backend, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			level.Warn(logger).Log("msg", "error closing body", "backend", backend, "err", err)
		}
	}()
	m.observe(backend, operation, strconv.Itoa(resp.StatusCode), start)

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &querymodel.BackendUnavailableError{Backend: backend, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode/100 != 2 {
		return nil, &querymodel.BackendUnavailableError{Backend: backend, StatusCode: resp.StatusCode, Body: string(buf)}
	}
	return buf, nil
}

func (m *Metrics) observe(backend, operation, status string, start time.Time) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(backend, operation, status).Observe(time.Since(start).Seconds())
}
