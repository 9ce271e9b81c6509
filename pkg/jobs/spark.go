package jobs

import (
	"errors"
	"flag"
	"fmt"
	"strings"
)

const (
	// ResultIndex is the index the Spark SQL job writes results to.
	ResultIndex = ".query_execution_result"

	defaultDriverClass = "org.opensearch.sql.SQLJob"
)

// ResultSinkConfig tells the Spark job where to write its result.
type ResultSinkConfig struct {
	Host   string `yaml:"host"`
	Port   string `yaml:"port"`
	Scheme string `yaml:"scheme"`
	Auth   string `yaml:"auth"`
	Region string `yaml:"region"`
}

// SparkConfig describes the Spark application running submitted SQL.
type SparkConfig struct {
	DriverClass    string           `yaml:"driver_class"`
	ApplicationJar string           `yaml:"application_jar"`
	IntegrationJar string           `yaml:"integration_jar"`
	ExtraJars      []string         `yaml:"extra_jars"`
	ResultIndex    string           `yaml:"result_index"`
	Sink           ResultSinkConfig `yaml:"result_sink"`
}

// RegisterFlagsWithPrefix registers the flags under prefix.
func (cfg *SparkConfig) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.DriverClass, prefix+"spark.driver-class", defaultDriverClass, "Main class of the SQL application.")
	f.StringVar(&cfg.ApplicationJar, prefix+"spark.application-jar", "", "Location of the SQL application jar.")
	f.StringVar(&cfg.IntegrationJar, prefix+"spark.integration-jar", "", "Location of the result sink integration jar.")
	f.StringVar(&cfg.ResultIndex, prefix+"spark.result-index", ResultIndex, "Index the application writes results to.")
	f.StringVar(&cfg.Sink.Host, prefix+"spark.result-sink.host", "", "Host of the result sink.")
	f.StringVar(&cfg.Sink.Port, prefix+"spark.result-sink.port", "9200", "Port of the result sink.")
	f.StringVar(&cfg.Sink.Scheme, prefix+"spark.result-sink.scheme", "https", "Scheme of the result sink.")
	f.StringVar(&cfg.Sink.Auth, prefix+"spark.result-sink.auth", "noauth", "Authentication type of the result sink.")
	f.StringVar(&cfg.Sink.Region, prefix+"spark.result-sink.region", "", "Region of the result sink.")
}

// Validate checks the configuration.
func (cfg *SparkConfig) Validate() error {
	var missing []string
	if cfg.ApplicationJar == "" {
		missing = append(missing, "application_jar")
	}
	if cfg.Sink.Host == "" {
		missing = append(missing, "result_sink.host")
	}
	if len(missing) > 0 {
		return errors.New("missing spark configuration: " + strings.Join(missing, ", "))
	}
	return nil
}

// Index returns the result index, defaulting to ResultIndex.
func (cfg SparkConfig) Index() string {
	if cfg.ResultIndex == "" {
		return ResultIndex
	}
	return cfg.ResultIndex
}

// Driver returns the main class, defaulting to the SQL job.
func (cfg SparkConfig) Driver() string {
	if cfg.DriverClass == "" {
		return defaultDriverClass
	}
	return cfg.DriverClass
}

// Jars returns the integration jar followed by the extra jars.
func (cfg SparkConfig) Jars() []string {
	var jars []string
	if cfg.IntegrationJar != "" {
		jars = append(jars, cfg.IntegrationJar)
	}
	return append(jars, cfg.ExtraJars...)
}

// SinkArgs returns the positional application arguments following the
// query: result index, then the sink host, port, scheme, auth and region.
func (cfg SparkConfig) SinkArgs() []string {
	return []string{cfg.Index(), cfg.Sink.Host, cfg.Sink.Port, cfg.Sink.Scheme, cfg.Sink.Auth, cfg.Sink.Region}
}

// SinkConf returns the sink as spark --conf settings.
func (cfg SparkConfig) SinkConf() []string {
	return []string{
		fmt.Sprintf("spark.datasource.flint.host=%s", cfg.Sink.Host),
		fmt.Sprintf("spark.datasource.flint.port=%s", cfg.Sink.Port),
		fmt.Sprintf("spark.datasource.flint.scheme=%s", cfg.Sink.Scheme),
		fmt.Sprintf("spark.datasource.flint.auth=%s", cfg.Sink.Auth),
		fmt.Sprintf("spark.datasource.flint.region=%s", cfg.Sink.Region),
	}
}
