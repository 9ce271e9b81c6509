package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/coder/quartz"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/grafana/sqlbridge/pkg/cfg"
	"github.com/grafana/sqlbridge/pkg/plan"
	"github.com/grafana/sqlbridge/pkg/storage"
	util_log "github.com/grafana/sqlbridge/pkg/util/log"
)

type globalOptions struct {
	configFiles *[]string
	expandEnv   *bool
	overrides   *[]string
	output      *string
}

func main() {
	app := kingpin.New("sqlbridge", "Query metric backends and Spark through SQL table semantics.")
	opts := &globalOptions{
		configFiles: app.Flag("config.file", "YAML file to load. May be given more than once.").Strings(),
		expandEnv:   app.Flag("config.expand-env", "Expand ${var} or $var in config files.").Bool(),
		overrides:   app.Flag("set", "Set a configuration flag, e.g. --set datasource.type=cloudwatch.").Short('s').Strings(),
		output:      app.Flag("output", "Output format.").Short('o').Default(outputTable).Enum(outputTable, outputJSON),
	}

	addQueryRangeCommand(app, opts)
	addScanCommand(app, opts)
	addSQLCommand(app, opts)
	addDescribeCommand(app, opts)
	addShowTablesCommand(app, opts)

	kingpin.MustParse(app.Parse(os.Args[1:]))
}

// withEngine loads the configuration, builds the data source engine and
// runs fn with a context cancelled on SIGINT or SIGTERM.
func withEngine(opts *globalOptions, fn func(ctx context.Context, e *storage.Engine) error) error {
	var c Config
	fs := flag.NewFlagSet("sqlbridge", flag.ContinueOnError)
	if err := cfg.Parse(fs, configArgs(*opts.configFiles, *opts.expandEnv, *opts.overrides), &c); err != nil {
		return err
	}
	logger := util_log.InitLogger(c.Log)

	engine, err := storage.NewEngine(c.DataSource, quartz.NewReal(), prometheus.NewRegistry(), logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = util_log.InjectQueryID(ctx, uuid.NewString())

	err = fn(ctx, engine)
	if err != nil {
		level.Error(util_log.WithContext(ctx, logger)).Log("msg", "query failed", "err", err)
	}
	return err
}

// run implements node on table and prints every row of the scan.
func run(ctx context.Context, opts *globalOptions, table storage.Table, node plan.Node) error {
	op, err := table.Implement(node)
	if err != nil {
		return err
	}
	level.Debug(util_log.WithContext(ctx, util_log.Logger)).Log("msg", "running scan", "plan", op.Explain())
	if err := op.Open(ctx); err != nil {
		return err
	}
	defer op.Close()

	p := newPrinter(os.Stdout, *opts.output)
	return p.print(op, func() ([]string, error) {
		types, err := table.FieldTypes(ctx)
		if err != nil {
			return nil, err
		}
		return sortedColumns(types), nil
	})
}
