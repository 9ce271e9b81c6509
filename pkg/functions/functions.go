// Package functions parses the arguments of the table functions a data
// source exposes.
package functions

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/common/model"

	"github.com/grafana/sqlbridge/pkg/plan"
	"github.com/grafana/sqlbridge/pkg/querymodel"
	"github.com/grafana/sqlbridge/pkg/translate"
)

// Function names.
const (
	QueryRange = "query_range"
	SQL        = "sql"
)

// Argument names. Matching is case insensitive.
const (
	ArgQuery     = "query"
	ArgStartTime = "starttime"
	ArgEndTime   = "endtime"
	ArgStep      = "step"
)

// UnknownArgumentError is returned for an argument a function does not
// accept.
type UnknownArgumentError struct {
	Function string
	Argument string
}

func (e *UnknownArgumentError) Error() string {
	return fmt.Sprintf("invalid function argument %s for %s", e.Argument, e.Function)
}

// Signature lists the arguments of a table function.
type Signature struct {
	Name      string
	Arguments []string
}

// Signatures returns the signatures of every table function.
func Signatures() []Signature {
	return []Signature{
		{Name: QueryRange, Arguments: []string{ArgQuery, ArgStartTime, ArgEndTime, ArgStep}},
		{Name: SQL, Arguments: []string{ArgQuery}},
	}
}

// ParseQueryRange builds the request of a query_range call.
func ParseQueryRange(args []plan.NamedArgument) (querymodel.QueryRequest, error) {
	var (
		req  querymodel.QueryRequest
		seen = map[string]bool{}
	)
	for _, arg := range args {
		name := strings.ToLower(arg.Name)
		lit, ok := arg.Value.(plan.Literal)
		if !ok {
			return req, errors.Errorf("%s argument %s must be a literal, got %s", QueryRange, arg.Name, arg.Value)
		}
		var err error
		switch name {
		case ArgQuery:
			req.SeriesQuery = lit.Value.String()
		case ArgStartTime:
			req.StartTime, err = translate.EpochSeconds(lit)
		case ArgEndTime:
			req.EndTime, err = translate.EpochSeconds(lit)
		case ArgStep:
			req.Step, err = parseStep(lit.Value)
		default:
			return req, &UnknownArgumentError{Function: QueryRange, Argument: arg.Name}
		}
		if err != nil {
			return req, errors.Wrapf(err, "%s argument %s", QueryRange, arg.Name)
		}
		seen[name] = true
	}
	for _, a := range []string{ArgQuery, ArgStartTime, ArgEndTime, ArgStep} {
		if !seen[a] {
			return req, errors.Errorf("%s requires argument %s", QueryRange, a)
		}
	}
	return req, req.Validate()
}

// ParseSQL returns the statement of a sql call.
func ParseSQL(args []plan.NamedArgument) (string, error) {
	var query string
	for _, arg := range args {
		if strings.ToLower(arg.Name) != ArgQuery {
			return "", &UnknownArgumentError{Function: SQL, Argument: arg.Name}
		}
		lit, ok := arg.Value.(plan.Literal)
		if !ok {
			return "", errors.Errorf("%s argument %s must be a literal, got %s", SQL, arg.Name, arg.Value)
		}
		query = lit.Value.String()
	}
	if query == "" {
		return "", errors.Errorf("%s requires argument %s", SQL, ArgQuery)
	}
	return query, nil
}

// parseStep accepts a number of seconds or a Prometheus duration and
// returns it as whole seconds, e.g. "300s".
func parseStep(v querymodel.Value) (string, error) {
	s := strings.TrimSpace(v.String())
	var d time.Duration
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		d = time.Duration(f * float64(time.Second))
	} else {
		md, err := model.ParseDuration(s)
		if err != nil {
			return "", err
		}
		d = time.Duration(md)
	}
	if d < time.Second {
		return "", errors.Errorf("step %q is shorter than one second", s)
	}
	return strconv.FormatInt(int64(d/time.Second), 10) + "s", nil
}
