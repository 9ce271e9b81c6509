package translate

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/prometheus/model/labels"

	"github.com/grafana/sqlbridge/pkg/plan"
	"github.com/grafana/sqlbridge/pkg/querymodel"
)

// Selector is a metric name with label matchers kept in input order.
type Selector struct {
	Metric   string
	Matchers []*labels.Matcher
}

func (s Selector) String() string {
	if len(s.Matchers) == 0 {
		return s.Metric
	}
	var sb strings.Builder
	sb.WriteString(s.Metric)
	sb.WriteByte('{')
	for i, m := range s.Matchers {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(m.String())
	}
	sb.WriteByte('}')
	return sb.String()
}

// MetricName is a dotted table name split into a namespace and metric.
type MetricName struct {
	Namespace string
	Name      string
}

// ParseMetricName splits "AWS-EC2.CPUUtilization" into the namespace AWS/EC2
// and the metric CPUUtilization. Names without a dot have no namespace.
func ParseMetricName(s string) MetricName {
	ns, name, ok := strings.Cut(s, ".")
	if !ok {
		return MetricName{Name: s}
	}
	return MetricName{Namespace: strings.ReplaceAll(ns, "-", "/"), Name: name}
}

// BuildSelector collects the equality and inequality predicates on label
// columns of filter, in tree order. Timestamp predicates are skipped.
func BuildSelector(metric string, filter plan.Expr) (Selector, error) {
	sel := Selector{Metric: metric}
	err := collectMatchers(filter, &sel.Matchers)
	return sel, err
}

func collectMatchers(e plan.Expr, out *[]*labels.Matcher) error {
	switch e := e.(type) {
	case plan.And:
		if err := collectMatchers(e.Left, out); err != nil {
			return err
		}
		return collectMatchers(e.Right, out)
	case plan.Comparison:
		var mt labels.MatchType
		switch e.Op {
		case plan.OpEq:
			mt = labels.MatchEqual
		case plan.OpNeq:
			mt = labels.MatchNotEqual
		default:
			return nil
		}
		ref, ok := e.Left.(plan.Reference)
		lit, litOK := e.Right.(plan.Literal)
		if !ok || !litOK {
			ref, ok = e.Right.(plan.Reference)
			lit, litOK = e.Left.(plan.Literal)
		}
		if !ok || !litOK || ref.Name == querymodel.TimestampField {
			return nil
		}
		m, err := labels.NewMatcher(mt, ref.Name, lit.Value.String())
		if err != nil {
			return errors.Wrapf(err, "building matcher for %s", e)
		}
		*out = append(*out, m)
	}
	return nil
}

// ParseLabelFilter parses the brace part of a selector such as
// `cpu{a="1", b = "2"}` into equality matchers in textual order. Text
// without braces yields no matchers.
func ParseLabelFilter(query string) ([]*labels.Matcher, error) {
	open := strings.IndexByte(query, '{')
	if open < 0 {
		return nil, nil
	}
	closing := strings.IndexByte(query[open:], '}')
	if closing < 0 {
		return nil, errors.Errorf("unterminated label filter in %q", query)
	}
	body := query[open+1 : open+closing]

	var out []*labels.Matcher
	for _, pair := range strings.Split(body, ",") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, errors.Errorf("invalid label filter %q in %q", pair, query)
		}
		name = strings.TrimSpace(name)
		value = strings.Trim(strings.TrimSpace(value), `"`)
		m, err := labels.NewMatcher(labels.MatchEqual, name, value)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
