package translate

import (
	"fmt"
	"time"

	"github.com/grafana/sqlbridge/pkg/plan"
	"github.com/grafana/sqlbridge/pkg/querymodel"
)

// MaxPoints caps the number of points a derived step yields over a range.
const MaxPoints = 250

// ResolveStep returns the step for a query over tr. A span in groupBy wins;
// otherwise the step is the range split into at most MaxPoints intervals,
// never less than one second.
func ResolveStep(query string, tr TimeRange, groupBy []plan.NamedExpression) (string, error) {
	for _, g := range groupBy {
		s, ok := g.Delegated.(plan.Span)
		if !ok {
			continue
		}
		w := s.Width()
		if w < time.Second {
			return "", &querymodel.InvalidStepError{Query: query, Reason: fmt.Sprintf("span %s is shorter than one second", w)}
		}
		return formatStep(int64(w / time.Second)), nil
	}

	if tr.End <= tr.Start {
		return "", &querymodel.InvalidStepError{
			Query:  query,
			Reason: fmt.Sprintf("end %d is not after start %d", tr.End, tr.Start),
		}
	}
	secs := (tr.End - tr.Start + MaxPoints - 1) / MaxPoints
	if secs < 1 {
		secs = 1
	}
	return formatStep(secs), nil
}

func formatStep(seconds int64) string {
	return fmt.Sprintf("%ds", seconds)
}
