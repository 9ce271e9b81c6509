package translate

import (
	"fmt"
	"strings"

	"github.com/grafana/sqlbridge/pkg/plan"
	"github.com/grafana/sqlbridge/pkg/querymodel"
)

var supportedAggregations = map[string]struct{}{
	"sum":   {},
	"avg":   {},
	"min":   {},
	"max":   {},
	"count": {},
}

// AggregationTemplate returns a template such as `sum(%s) by (host)` for a
// single-aggregator node. The %s verb is later filled by Fill. When
// requireSpan is set, nodes without a time span in the group by are
// rejected.
func AggregationTemplate(n *plan.AggregationNode, requireSpan bool) (string, error) {
	if len(n.Aggregators) != 1 {
		return "", &querymodel.UnsupportedAggregationError{
			Reason: fmt.Sprintf("exactly one aggregator is supported, got %d", len(n.Aggregators)),
		}
	}
	fn := strings.ToLower(n.Aggregators[0].Function)
	if _, ok := supportedAggregations[fn]; !ok {
		return "", &querymodel.UnsupportedAggregationError{Reason: fmt.Sprintf("function %q", n.Aggregators[0].Function)}
	}
	if _, _, ok := n.Span(); requireSpan && !ok {
		return "", &querymodel.UnsupportedAggregationError{Reason: "a span on " + querymodel.TimestampField + " is required"}
	}

	var groups []string
	for _, g := range n.GroupBy {
		if ref, ok := g.Delegated.(plan.Reference); ok {
			groups = append(groups, ref.Name)
		}
	}
	if len(groups) == 0 {
		return fn + "(%s)", nil
	}
	return fn + "(%s) by (" + strings.Join(groups, ",") + ")", nil
}

// Fill substitutes the range selector `selector[step]` into template.
func Fill(template, selector, step string) string {
	return fmt.Sprintf(template, selector+"["+step+"]")
}

// FieldNamesFor returns the response field names for an aggregation: the
// value column is named after the aggregator, the timestamp column after the
// span, and label columns after their group by aliases.
func FieldNamesFor(n *plan.AggregationNode) querymodel.ResponseFieldNames {
	names := querymodel.DefaultFieldNames()
	if len(n.Aggregators) > 0 {
		names.ValueFieldName = n.Aggregators[0].Name
		names.ValueType = n.Aggregators[0].Type
	}
	if span, _, ok := n.Span(); ok {
		names.TimestampFieldName = span.OutputName()
	}
	for _, g := range n.GroupBy {
		ref, ok := g.Delegated.(plan.Reference)
		if !ok {
			continue
		}
		if names.GroupByAliases == nil {
			names.GroupByAliases = map[string]string{}
		}
		names.GroupByAliases[ref.Name] = g.OutputName()
	}
	return names
}
