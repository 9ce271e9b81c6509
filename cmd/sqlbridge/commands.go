package main

import (
	"context"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/pkg/errors"

	"github.com/grafana/sqlbridge/pkg/functions"
	"github.com/grafana/sqlbridge/pkg/plan"
	"github.com/grafana/sqlbridge/pkg/querymodel"
	"github.com/grafana/sqlbridge/pkg/storage"
	"github.com/grafana/sqlbridge/pkg/system"
)

// queryRangeCommand runs the query_range table function.
type queryRangeCommand struct {
	query, start, end, step *string
}

func addQueryRangeCommand(app *kingpin.Application, opts *globalOptions) {
	cmd := &queryRangeCommand{}
	c := app.Command("query-range", "Run a native range query through the query_range table function.")
	cmd.query = c.Arg("query", "Series query.").Required().String()
	cmd.start = c.Flag("start", "Start of the range, as epoch seconds or RFC3339.").Required().String()
	cmd.end = c.Flag("end", "End of the range, as epoch seconds or RFC3339.").Required().String()
	cmd.step = c.Flag("step", "Query resolution, as seconds or a duration.").Default("60s").String()
	c.Action(func(_ *kingpin.ParseContext) error {
		return withEngine(opts, func(ctx context.Context, e *storage.Engine) error {
			table, err := e.TableFunction(functions.QueryRange, []plan.NamedArgument{
				{Name: functions.ArgQuery, Value: plan.Str(*cmd.query)},
				{Name: functions.ArgStartTime, Value: plan.Str(*cmd.start)},
				{Name: functions.ArgEndTime, Value: plan.Str(*cmd.end)},
				{Name: functions.ArgStep, Value: plan.Str(*cmd.step)},
			})
			if err != nil {
				return err
			}
			return run(ctx, opts, table, &plan.RelationNode{Name: functions.QueryRange})
		})
	})
}

// scanCommand reads a metric table, optionally filtered and aggregated.
type scanCommand struct {
	metric    *string
	where     *[]string
	from, to  *string
	aggregate *string
	groupBy   *[]string
	span      *time.Duration
}

func addScanCommand(app *kingpin.Application, opts *globalOptions) {
	cmd := &scanCommand{}
	c := app.Command("scan", "Read a metric table.")
	cmd.metric = c.Arg("metric", "Metric name, e.g. AWS-EC2.CPUUtilization.").Required().String()
	cmd.where = c.Flag("where", "Label filter label=value or label!=value. May be repeated.").Short('w').Strings()
	cmd.from = c.Flag("from", "Start of the range, as epoch seconds or RFC3339.").String()
	cmd.to = c.Flag("to", "End of the range, as epoch seconds or RFC3339.").String()
	cmd.aggregate = c.Flag("aggregate", "Aggregate function applied to the value.").Enum("sum", "avg", "min", "max", "count")
	cmd.groupBy = c.Flag("by", "Label to group the aggregation by. May be repeated.").Strings()
	cmd.span = c.Flag("span", "Width of the aggregation time buckets.").Default("1h").Duration()
	c.Action(func(_ *kingpin.ParseContext) error {
		node, err := cmd.node()
		if err != nil {
			return err
		}
		return withEngine(opts, func(ctx context.Context, e *storage.Engine) error {
			table, err := e.Table("", *cmd.metric)
			if err != nil {
				return err
			}
			return run(ctx, opts, table, node)
		})
	})
}

func (cmd *scanCommand) node() (plan.Node, error) {
	var preds []plan.Expr
	for _, w := range *cmd.where {
		op, sep := plan.OpEq, "="
		if strings.Contains(w, "!=") {
			op, sep = plan.OpNeq, "!="
		}
		name, value, ok := strings.Cut(w, sep)
		if !ok || name == "" {
			return nil, errors.Errorf("invalid filter %q, expected label=value", w)
		}
		preds = append(preds, plan.Comparison{Op: op, Left: plan.Ref(strings.TrimSpace(name)), Right: plan.Str(strings.TrimSpace(value))})
	}
	if *cmd.from != "" {
		preds = append(preds, plan.Comparison{Op: plan.OpGte, Left: plan.Ref(querymodel.TimestampField), Right: plan.Str(*cmd.from)})
	}
	if *cmd.to != "" {
		preds = append(preds, plan.Comparison{Op: plan.OpLte, Left: plan.Ref(querymodel.TimestampField), Right: plan.Str(*cmd.to)})
	}
	filter := plan.AndAll(preds...)

	if *cmd.aggregate == "" {
		return &plan.ScanNode{MetricName: *cmd.metric, Filter: filter}, nil
	}
	fn := *cmd.aggregate
	node := &plan.AggregationNode{
		MetricName: *cmd.metric,
		Filter:     filter,
		Aggregators: []plan.NamedAggregator{{
			Name:     fn + "(" + querymodel.ValueField + ")",
			Function: fn,
			Args:     []plan.Expr{plan.Ref(querymodel.ValueField)},
			Type:     querymodel.Double,
		}},
	}
	for _, g := range *cmd.groupBy {
		node.GroupBy = append(node.GroupBy, plan.NamedExpression{Name: g, Delegated: plan.Ref(g)})
	}
	span := plan.Span{Field: plan.Ref(querymodel.TimestampField), Value: int64(*cmd.span / time.Second), Unit: time.Second}
	node.GroupBy = append(node.GroupBy, plan.NamedExpression{Name: span.String(), Delegated: span})
	return node, nil
}

// sqlCommand runs a statement through the sql table function.
type sqlCommand struct {
	query *string
}

func addSQLCommand(app *kingpin.Application, opts *globalOptions) {
	cmd := &sqlCommand{}
	c := app.Command("sql", "Run a SQL statement as a Spark job.")
	cmd.query = c.Arg("query", "SQL statement.").Required().String()
	c.Action(func(_ *kingpin.ParseContext) error {
		return withEngine(opts, func(ctx context.Context, e *storage.Engine) error {
			table, err := e.TableFunction(functions.SQL, []plan.NamedArgument{
				{Name: functions.ArgQuery, Value: plan.Str(*cmd.query)},
			})
			if err != nil {
				return err
			}
			return run(ctx, opts, table, &plan.RelationNode{Name: functions.SQL})
		})
	})
}

// describeCommand lists the columns of a metric.
type describeCommand struct {
	metric *string
}

func addDescribeCommand(app *kingpin.Application, opts *globalOptions) {
	cmd := &describeCommand{}
	c := app.Command("describe", "List the columns of a metric table.")
	cmd.metric = c.Arg("metric", "Metric name.").Required().String()
	c.Action(func(_ *kingpin.ParseContext) error {
		return withEngine(opts, func(ctx context.Context, e *storage.Engine) error {
			table, err := e.DescribeTable(*cmd.metric)
			if err != nil {
				return err
			}
			return run(ctx, opts, table, &plan.RelationNode{Name: *cmd.metric})
		})
	})
}

func addShowTablesCommand(app *kingpin.Application, opts *globalOptions) {
	c := app.Command("show-tables", "List the metrics of the data source.")
	c.Action(func(_ *kingpin.ParseContext) error {
		return withEngine(opts, func(ctx context.Context, e *storage.Engine) error {
			table, err := e.Table(system.InformationSchema, system.TablesTable)
			if err != nil {
				return err
			}
			return run(ctx, opts, table, &plan.RelationNode{Name: system.TablesTable})
		})
	})
}
