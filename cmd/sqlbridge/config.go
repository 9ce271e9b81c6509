package main

import (
	"flag"

	"github.com/grafana/sqlbridge/pkg/storage"
	util_log "github.com/grafana/sqlbridge/pkg/util/log"
)

// Config is the root configuration of the command line tool.
type Config struct {
	Log        util_log.Config `yaml:",inline"`
	DataSource storage.Config  `yaml:"datasource"`
}

// RegisterFlags registers every configuration flag.
func (c *Config) RegisterFlags(f *flag.FlagSet) {
	c.Log.RegisterFlags(f)
	c.DataSource.RegisterFlags(f)
}

// Validate checks the data source configuration.
func (c *Config) Validate() error {
	return c.DataSource.Validate()
}

// configArgs turns the command line configuration options into the
// arguments of a flag set.
func configArgs(files []string, expandEnv bool, overrides []string) []string {
	var args []string
	for _, f := range files {
		args = append(args, "-config.file="+f)
	}
	if expandEnv {
		args = append(args, "-config.expand-env=true")
	}
	for _, o := range overrides {
		args = append(args, "-"+o)
	}
	return args
}
