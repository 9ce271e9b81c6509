package response

import (
	"math"
	"strconv"
	"time"

	"github.com/grafana/jsonparser"
	"github.com/pkg/errors"

	"github.com/grafana/sqlbridge/pkg/querymodel"
)

// RowIterator yields rows one at a time. Rows are only built when Next is
// called, and the iterator cannot be rewound.
type RowIterator interface {
	// Next advances to the next row and reports whether there is one.
	Next() bool
	// At returns the current row.
	At() querymodel.Row
	// Err returns the first error met while iterating.
	Err() error
}

// Column is one entry of a result schema.
type Column struct {
	Name string
	Type querymodel.ValueType
}

// Materialize picks the materializer matching the shape of body:
//   - an object with a Timestamps array is a flat metric result,
//   - an object with resultType "matrix" is a series matrix,
//   - an object with data.schema is a SQL result.
//
// A top level "data" object wrapping a matrix is unwrapped first.
func Materialize(query string, body []byte, names querymodel.ResponseFieldNames) (RowIterator, error) {
	if _, dt, _, err := jsonparser.Get(body, "Timestamps"); err == nil && dt == jsonparser.Array {
		return wrap(NewFlatIterator(query, body, names))
	}
	if rt, err := jsonparser.GetString(body, "resultType"); err == nil {
		if rt != "matrix" {
			return nil, &querymodel.UnexpectedResponseShapeError{Query: query, Reason: "resultType " + strconv.Quote(rt) + ", expected \"matrix\""}
		}
		return wrap(NewMatrixIterator(query, body, names))
	}
	if _, err := jsonparser.GetString(body, "data", "resultType"); err == nil {
		data, _, _, _ := jsonparser.Get(body, "data")
		return Materialize(query, data, names)
	}
	if _, dt, _, err := jsonparser.Get(body, "data", "schema"); err == nil && dt == jsonparser.Array {
		return wrap(NewSQLIterator(query, body))
	}
	return nil, &querymodel.UnexpectedResponseShapeError{Query: query, Reason: "no Timestamps, resultType or data.schema key"}
}

func wrap[T RowIterator](it T, err error) (RowIterator, error) {
	if err != nil {
		return nil, err
	}
	return it, nil
}

// Drain reads every remaining row of it.
func Drain(it RowIterator) ([]querymodel.Row, error) {
	var rows []querymodel.Row
	for it.Next() {
		rows = append(rows, it.At())
	}
	return rows, it.Err()
}

// parseTimestamp reads epoch seconds, possibly fractional, as milliseconds.
func parseTimestamp(raw []byte, dt jsonparser.ValueType) (time.Time, error) {
	s := string(raw)
	if dt == jsonparser.String {
		unquoted, err := jsonparser.ParseString(raw)
		if err != nil {
			return time.Time{}, err
		}
		s = unquoted
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if t, terr := time.Parse(time.RFC3339Nano, s); terr == nil {
			return t.UTC(), nil
		}
		return time.Time{}, errors.Wrapf(err, "invalid timestamp %q", s)
	}
	return time.UnixMilli(int64(math.Round(f * 1000))).UTC(), nil
}

// parseValue coerces a JSON number or numeric string to typ.
func parseValue(raw []byte, dt jsonparser.ValueType, typ querymodel.ValueType) (querymodel.Value, error) {
	switch dt {
	case jsonparser.Null:
		return querymodel.Null, nil
	case jsonparser.String:
		s, err := jsonparser.ParseString(raw)
		if err != nil {
			return querymodel.Null, err
		}
		return querymodel.ParseNumeric(s, typ)
	case jsonparser.Number:
		return querymodel.ParseNumeric(string(raw), typ)
	}
	return querymodel.Null, errors.Errorf("value %q is not numeric", raw)
}

func scalarString(raw []byte, dt jsonparser.ValueType) (string, bool) {
	switch dt {
	case jsonparser.String:
		s, err := jsonparser.ParseString(raw)
		return s, err == nil
	case jsonparser.Number, jsonparser.Boolean:
		return string(raw), true
	}
	return "", false
}

func arrayElements(data []byte, keys ...string) ([][]byte, []jsonparser.ValueType, error) {
	var (
		out   [][]byte
		types []jsonparser.ValueType
	)
	_, err := jsonparser.ArrayEach(data, func(value []byte, dt jsonparser.ValueType, _ int, _ error) {
		out = append(out, value)
		types = append(types, dt)
	}, keys...)
	return out, types, err
}

// SliceIterator iterates rows that are already in memory.
type SliceIterator struct {
	rows []querymodel.Row
	idx  int
}

// NewSliceIterator returns an iterator over rows.
func NewSliceIterator(rows []querymodel.Row) *SliceIterator {
	return &SliceIterator{rows: rows, idx: -1}
}

func (it *SliceIterator) Next() bool {
	if it.idx+1 >= len(it.rows) {
		it.idx = len(it.rows)
		return false
	}
	it.idx++
	return true
}

func (it *SliceIterator) At() querymodel.Row { return it.rows[it.idx] }
func (it *SliceIterator) Err() error         { return nil }
