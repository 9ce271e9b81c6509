package translate

import (
	"strconv"
	"time"

	"github.com/coder/quartz"
	"github.com/pkg/errors"

	"github.com/grafana/sqlbridge/pkg/plan"
	"github.com/grafana/sqlbridge/pkg/querymodel"
)

// DefaultWindow is the lookback used when a filter does not bound the time
// range.
const DefaultWindow = time.Hour

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// TimeRange is an inclusive range in epoch seconds.
type TimeRange struct {
	Start, End int64
}

// Duration returns the range length.
func (r TimeRange) Duration() time.Duration {
	return time.Duration(r.End-r.Start) * time.Second
}

// TimeRangeResolver derives a query's time range from the comparisons on
// the timestamp column.
type TimeRangeResolver struct {
	clock  quartz.Clock
	window time.Duration
}

// NewTimeRangeResolver returns a resolver that defaults to the window ending
// at clock.Now(). A zero window means DefaultWindow.
func NewTimeRangeResolver(clock quartz.Clock, window time.Duration) *TimeRangeResolver {
	if window <= 0 {
		window = DefaultWindow
	}
	return &TimeRangeResolver{clock: clock, window: window}
}

// Resolve walks filter for bounds on the timestamp column. Only conjunctions
// are walked; disjunctions cannot narrow the range and are ignored. Missing
// bounds come from the default window.
func (r *TimeRangeResolver) Resolve(query string, filter plan.Expr) (TimeRange, error) {
	var start, end *int64
	err := walkTimestamp(filter, func(op plan.Op, ts int64) {
		switch op {
		case plan.OpGt, plan.OpGte:
			if start == nil || ts > *start {
				start = &ts
			}
		case plan.OpLt, plan.OpLte:
			if end == nil || ts < *end {
				end = &ts
			}
		case plan.OpEq:
			start, end = &ts, &ts
		}
	})
	if err != nil {
		return TimeRange{}, err
	}

	now := r.clock.Now().Unix()
	window := int64(r.window / time.Second)
	var tr TimeRange
	switch {
	case start != nil && end != nil:
		tr = TimeRange{Start: *start, End: *end}
	case start != nil:
		tr = TimeRange{Start: *start, End: now}
		if tr.End < tr.Start {
			tr.End = tr.Start + window
		}
	case end != nil:
		tr = TimeRange{Start: *end - window, End: *end}
	default:
		tr = TimeRange{Start: now - window, End: now}
	}

	if tr.Start > tr.End {
		return TimeRange{}, &querymodel.InvalidTimeRangeError{Query: query, Start: tr.Start, End: tr.End}
	}
	return tr, nil
}

func walkTimestamp(e plan.Expr, fn func(plan.Op, int64)) error {
	switch e := e.(type) {
	case plan.And:
		if err := walkTimestamp(e.Left, fn); err != nil {
			return err
		}
		return walkTimestamp(e.Right, fn)
	case plan.Comparison:
		op, lit, ok := timestampComparison(e)
		if !ok {
			return nil
		}
		ts, err := EpochSeconds(lit)
		if err != nil {
			return errors.Wrapf(err, "invalid timestamp in %s", e)
		}
		fn(op, ts)
	}
	return nil
}

// timestampComparison normalises `@timestamp op literal` and
// `literal op @timestamp` to the former.
func timestampComparison(c plan.Comparison) (plan.Op, plan.Literal, bool) {
	if ref, ok := c.Left.(plan.Reference); ok && ref.Name == querymodel.TimestampField {
		if lit, ok := c.Right.(plan.Literal); ok {
			return c.Op, lit, true
		}
	}
	if ref, ok := c.Right.(plan.Reference); ok && ref.Name == querymodel.TimestampField {
		if lit, ok := c.Left.(plan.Literal); ok {
			return flip(c.Op), lit, true
		}
	}
	return "", plan.Literal{}, false
}

func flip(op plan.Op) plan.Op {
	switch op {
	case plan.OpGt:
		return plan.OpLt
	case plan.OpGte:
		return plan.OpLte
	case plan.OpLt:
		return plan.OpGt
	case plan.OpLte:
		return plan.OpGte
	}
	return op
}

// EpochSeconds reads a timestamp literal as epoch seconds.
func EpochSeconds(lit plan.Literal) (int64, error) {
	v := lit.Value
	switch v.Type() {
	case querymodel.Timestamp:
		return v.Time().Unix(), nil
	case querymodel.Integer, querymodel.Long:
		return strconv.ParseInt(v.String(), 10, 64)
	case querymodel.Float, querymodel.Double:
		f, err := strconv.ParseFloat(v.String(), 64)
		return int64(f), err
	case querymodel.String:
		s := v.String()
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		for _, layout := range timestampLayouts {
			if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return t.Unix(), nil
			}
		}
		return 0, errors.Errorf("cannot parse %q as a timestamp", s)
	}
	return 0, errors.Errorf("unsupported timestamp literal of type %s", v.Type())
}
