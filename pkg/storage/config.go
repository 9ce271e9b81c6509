package storage

import (
	"flag"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/grafana/sqlbridge/pkg/client"
	"github.com/grafana/sqlbridge/pkg/client/cloudwatch"
	"github.com/grafana/sqlbridge/pkg/jobs"
	"github.com/grafana/sqlbridge/pkg/jobs/emr"
	"github.com/grafana/sqlbridge/pkg/jobs/emrserverless"
	"github.com/grafana/sqlbridge/pkg/jobs/gateway"
	"github.com/grafana/sqlbridge/pkg/jobs/resultstore"
	"github.com/grafana/sqlbridge/pkg/translate"
)

// Data source types.
const (
	TypeCloudWatch = "cloudwatch"
	TypePrometheus = "prometheus"
	TypeSpark      = "spark"
)

// Spark job backends.
const (
	SparkEMR           = "emr"
	SparkEMRServerless = "emr-serverless"
	SparkGateway       = "gateway"
)

// Config configures one data source.
type Config struct {
	Name           string        `yaml:"name"`
	Type           string        `yaml:"type"`
	Schema         string        `yaml:"schema"`
	DefaultWindow  time.Duration `yaml:"default_window"`
	LabelCacheSize int           `yaml:"label_cache_size"`

	CloudWatch cloudwatch.Config `yaml:"cloudwatch"`
	Prometheus client.Config     `yaml:"prometheus"`
	Spark      SparkConfig       `yaml:"spark"`
}

// RegisterFlags registers the data source flags.
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("datasource.", f)
}

// RegisterFlagsWithPrefix registers the flags under prefix.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.Name, prefix+"name", "", "Name of the data source, reported as TABLE_CATALOG.")
	f.StringVar(&cfg.Type, prefix+"type", TypePrometheus, fmt.Sprintf("Type of the data source. Valid types: [%s, %s, %s]", TypeCloudWatch, TypePrometheus, TypeSpark))
	f.StringVar(&cfg.Schema, prefix+"schema", "default", "Schema reported for the data source tables.")
	f.DurationVar(&cfg.DefaultWindow, prefix+"default-window", translate.DefaultWindow, "Time range queried when a query gives no time bounds.")
	f.IntVar(&cfg.LabelCacheSize, prefix+"label-cache-size", 1000, "Number of metrics whose label names are cached.")

	cfg.CloudWatch.RegisterFlagsWithPrefix(prefix+"cloudwatch.", f)
	cfg.Prometheus.RegisterFlagsWithPrefix(prefix+"prometheus.", f)
	cfg.Spark.RegisterFlagsWithPrefix(prefix+"spark.", f)
}

// Validate checks the configuration of the selected type only.
func (cfg *Config) Validate() error {
	if cfg.Name == "" {
		return errors.New("data source name is required")
	}
	if cfg.DefaultWindow <= 0 {
		return errors.New("default window must be positive")
	}
	switch cfg.Type {
	case TypeCloudWatch, TypePrometheus:
		if cfg.LabelCacheSize <= 0 {
			return errors.New("label cache size must be positive")
		}
		if cfg.Type == TypeCloudWatch {
			return errors.Wrap(cfg.CloudWatch.Validate(), "invalid cloudwatch config")
		}
		return errors.Wrap(cfg.Prometheus.Validate(), "invalid prometheus config")
	case TypeSpark:
		return errors.Wrap(cfg.Spark.Validate(), "invalid spark config")
	}
	return errors.Errorf("unsupported data source type %q", cfg.Type)
}

// SparkConfig configures a Spark data source.
type SparkConfig struct {
	Backend       string               `yaml:"backend"`
	EMR           emr.Config           `yaml:"emr"`
	EMRServerless emrserverless.Config `yaml:"emr_serverless"`
	Gateway       gateway.Config       `yaml:"gateway"`
	Results       resultstore.Config   `yaml:"results"`
	Jobs          jobs.Config          `yaml:"jobs"`
}

// RegisterFlagsWithPrefix registers the flags under prefix.
func (cfg *SparkConfig) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.Backend, prefix+"backend", SparkEMRServerless, fmt.Sprintf("Service running the Spark jobs. Valid backends: [%s, %s, %s]", SparkEMR, SparkEMRServerless, SparkGateway))
	cfg.EMR.RegisterFlagsWithPrefix(prefix, f)
	cfg.EMRServerless.RegisterFlagsWithPrefix(prefix, f)
	cfg.Gateway.RegisterFlagsWithPrefix(prefix, f)
	cfg.Results.RegisterFlagsWithPrefix(prefix, f)
	cfg.Jobs.RegisterFlagsWithPrefix(prefix+"jobs.", f)
}

// Validate checks the selected backend, the results index and polling.
func (cfg *SparkConfig) Validate() error {
	var err error
	switch cfg.Backend {
	case SparkEMR:
		err = cfg.EMR.Validate()
	case SparkEMRServerless:
		err = cfg.EMRServerless.Validate()
	case SparkGateway:
		err = cfg.Gateway.Validate()
	default:
		return errors.Errorf("unsupported spark backend %q", cfg.Backend)
	}
	if err != nil {
		return err
	}
	if err := cfg.Results.Validate(); err != nil {
		return errors.Wrap(err, "invalid results index config")
	}
	return cfg.Jobs.Validate()
}

// spark returns the Spark application settings of the selected backend.
func (cfg *SparkConfig) spark() jobs.SparkConfig {
	switch cfg.Backend {
	case SparkEMR:
		return cfg.EMR.Spark
	case SparkGateway:
		return cfg.Gateway.Spark
	}
	return cfg.EMRServerless.Spark
}
