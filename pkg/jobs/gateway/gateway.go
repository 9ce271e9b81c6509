// Package gateway runs SQL as batches of a Livy-style submission gateway.
package gateway

import (
	"context"
	"flag"
	"io"
	"net/http"
	"strings"

	"github.com/carlmjohnson/requests"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/grafana/sqlbridge/pkg/client"
	"github.com/grafana/sqlbridge/pkg/jobs"
	"github.com/grafana/sqlbridge/pkg/querymodel"
)

// ResultField is the results index field holding the application id.
const ResultField = "applicationId.keyword"

const backendName = "gateway"

// Config configures the gateway backend.
type Config struct {
	client.Config `yaml:",inline"`
	Spark         jobs.SparkConfig `yaml:"spark"`
}

// RegisterFlagsWithPrefix registers the flags under prefix.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	cfg.Config.RegisterFlagsWithPrefix(prefix+"gateway.", f)
	cfg.Spark.RegisterFlagsWithPrefix(prefix+"gateway.", f)
}

// Validate checks the configuration.
func (cfg *Config) Validate() error {
	if err := cfg.Config.Validate(); err != nil {
		return err
	}
	return cfg.Spark.Validate()
}

var states = map[string]querymodel.JobState{
	"not_started":   querymodel.JobSubmitted,
	"starting":      querymodel.JobSubmitted,
	"running":       querymodel.JobRunning,
	"busy":          querymodel.JobRunning,
	"idle":          querymodel.JobRunning,
	"success":       querymodel.JobSuccess,
	"dead":          querymodel.JobFailed,
	"error":         querymodel.JobFailed,
	"killed":        querymodel.JobCancelled,
	"shutting_down": querymodel.JobCancelled,
}

type batchRequest struct {
	File      string   `json:"file"`
	ClassName string   `json:"className"`
	Args      []string `json:"args"`
	Jars      []string `json:"jars,omitempty"`
}

// Backend implements jobs.Backend on gateway batches. Job ids are batch
// ids; results are keyed by the Spark application id.
type Backend struct {
	cfg  Config
	url  string
	http *http.Client
}

// New returns a Backend for cfg.
func New(cfg Config) (*Backend, error) {
	httpClient, err := client.NewHTTPClient(cfg.Config, backendName)
	if err != nil {
		return nil, err
	}
	return NewWithHTTPClient(cfg, httpClient), nil
}

// NewWithHTTPClient returns a Backend sending requests through httpClient.
func NewWithHTTPClient(cfg Config, httpClient *http.Client) *Backend {
	return &Backend{cfg: cfg, url: strings.TrimSuffix(cfg.URL, "/"), http: httpClient}
}

func (b *Backend) builder(path string) *requests.Builder {
	return requests.
		URL(b.url + path).
		Client(b.http).
		Header("User-Agent", "sqlbridge").
		AddValidator(checkStatus)
}

// checkStatus turns non-2xx responses into BackendUnavailableError.
func checkStatus(res *http.Response) error {
	if res.StatusCode/100 == 2 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return &querymodel.BackendUnavailableError{Backend: backendName, StatusCode: res.StatusCode, Body: string(body)}
}

func (b *Backend) Submit(ctx context.Context, query string) (jobs.Submission, error) {
	s := b.cfg.Spark
	req := batchRequest{
		File:      s.ApplicationJar,
		ClassName: s.Driver(),
		Args:      append([]string{query}, s.SinkArgs()...),
		Jars:      s.Jars(),
	}

	var out string
	err := b.builder("/batches").BodyJSON(req).ToString(&out).Post().Fetch(ctx)
	if err != nil {
		return jobs.Submission{}, errors.Wrap(err, "submitting batch")
	}

	id := gjson.Get(out, "id")
	if !id.Exists() {
		return jobs.Submission{}, errors.Errorf("batch id missing from response %s", out)
	}
	return jobs.Submission{ID: id.String(), ResultKey: gjson.Get(out, "appId").String()}, nil
}

func (b *Backend) Poll(ctx context.Context, id string) (jobs.Status, error) {
	var out string
	if err := b.builder("/batches/"+id+"/state").ToString(&out).Fetch(ctx); err != nil {
		return jobs.Status{}, errors.Wrapf(err, "polling batch %s", id)
	}
	raw := gjson.Get(out, "state").String()
	state, ok := states[raw]
	if !ok {
		return jobs.Status{}, errors.Errorf("unknown batch state %q", raw)
	}

	st := jobs.Status{State: state}
	if state.Terminal() {
		// The application id and the failure log are only in the batch
		// description.
		var desc string
		if err := b.builder("/batches/" + id).ToString(&desc).Fetch(ctx); err != nil {
			return jobs.Status{}, errors.Wrapf(err, "describing batch %s", id)
		}
		st.ResultKey = gjson.Get(desc, "appId").String()
		if state != querymodel.JobSuccess {
			st.Reason = lastLogLine(gjson.Get(desc, "log"))
		}
	}
	return st, nil
}

func lastLogLine(log gjson.Result) string {
	lines := log.Array()
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1].String()
}

func (b *Backend) Cancel(ctx context.Context, id string) error {
	err := b.builder("/batches/" + id).Delete().Fetch(ctx)
	return errors.Wrapf(err, "deleting batch %s", id)
}
