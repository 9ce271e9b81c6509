package response

import (
	"github.com/grafana/jsonparser"
	jsoniter "github.com/json-iterator/go"

	"github.com/grafana/sqlbridge/pkg/querymodel"
)

type series struct {
	labels map[string]string
	values []byte
}

// MatrixIterator materializes a Prometheus-style matrix, one row per series
// point. Rows carry the timestamp, the value and then every label seen in
// any series, in first-seen order; labels a series lacks are NULL.
type MatrixIterator struct {
	query  string
	names  querymodel.ResponseFieldNames
	labels []string
	series []series

	seriesIdx int
	points    [][]byte
	pointIdx  int

	cur querymodel.Row
	err error
}

// NewMatrixIterator collects the series of a matrix result. Points are only
// decoded while iterating.
func NewMatrixIterator(query string, body []byte, names querymodel.ResponseFieldNames) (*MatrixIterator, error) {
	it := &MatrixIterator{query: query, names: names, seriesIdx: -1}
	seen := map[string]struct{}{}

	var iterErr error
	_, err := jsonparser.ArrayEach(body, func(item []byte, dt jsonparser.ValueType, _ int, _ error) {
		if iterErr != nil {
			return
		}
		if dt != jsonparser.Object {
			iterErr = &querymodel.UnexpectedResponseShapeError{Query: query, Reason: "matrix entry is not an object"}
			return
		}
		s := series{labels: map[string]string{}}
		err := jsonparser.ObjectEach(item, func(key, value []byte, dt jsonparser.ValueType, _ int) error {
			v, ok := scalarString(value, dt)
			if !ok {
				return nil
			}
			k := string(key)
			s.labels[k] = v
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				it.labels = append(it.labels, k)
			}
			return nil
		}, "metric")
		if err != nil && err != jsonparser.KeyPathNotFoundError {
			iterErr = &querymodel.UnexpectedResponseShapeError{Query: query, Reason: err.Error()}
			return
		}
		values, vdt, _, err := jsonparser.Get(item, "values")
		if err != nil || vdt != jsonparser.Array {
			iterErr = &querymodel.UnexpectedResponseShapeError{Query: query, Reason: "series without values"}
			return
		}
		s.values = values
		it.series = append(it.series, s)
	}, "result")
	if err != nil {
		return nil, &querymodel.UnexpectedResponseShapeError{Query: query, Reason: err.Error()}
	}
	if iterErr != nil {
		return nil, iterErr
	}
	return it, nil
}

// Labels returns the union of label keys in first-seen order.
func (it *MatrixIterator) Labels() []string { return it.labels }

func (it *MatrixIterator) Next() bool {
	if it.err != nil {
		return false
	}
	for it.seriesIdx < 0 || it.pointIdx >= len(it.points) {
		it.seriesIdx++
		if it.seriesIdx >= len(it.series) {
			return false
		}
		points, _, err := arrayElements(it.series[it.seriesIdx].values)
		if err != nil {
			it.err = &querymodel.UnexpectedResponseShapeError{Query: it.query, Reason: err.Error()}
			return false
		}
		it.points, it.pointIdx = points, 0
	}

	row, err := it.row(it.series[it.seriesIdx], it.points[it.pointIdx])
	if err != nil {
		it.err = err
		return false
	}
	it.pointIdx++
	it.cur = row
	return true
}

func (it *MatrixIterator) row(s series, point []byte) (querymodel.Row, error) {
	pair, types, err := arrayElements(point)
	if err != nil || len(pair) != 2 {
		return querymodel.Row{}, &querymodel.UnexpectedResponseShapeError{Query: it.query, Reason: "point is not a [timestamp, value] pair"}
	}
	ts, err := parseTimestamp(pair[0], types[0])
	if err != nil {
		return querymodel.Row{}, &querymodel.UnexpectedResponseShapeError{Query: it.query, Reason: err.Error()}
	}
	v, err := parseValue(pair[1], types[1], it.names.ValueType)
	if err != nil {
		return querymodel.Row{}, &querymodel.UnexpectedResponseShapeError{Query: it.query, Reason: err.Error()}
	}

	row := querymodel.NewRow(2 + len(it.labels))
	row.Set(it.names.TimestampFieldName, querymodel.TimestampValue(ts))
	row.Set(it.names.ValueFieldName, v)

	if it.names.LabelsAsJSON {
		buf, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(s.labels)
		if err != nil {
			return querymodel.Row{}, err
		}
		row.Set(querymodel.LabelsField, querymodel.StringValue(string(buf)))
		return row, nil
	}
	for _, l := range it.labels {
		if v, ok := s.labels[l]; ok {
			row.Set(it.names.Alias(l), querymodel.StringValue(v))
		} else {
			row.Set(it.names.Alias(l), querymodel.Null)
		}
	}
	return row, nil
}

func (it *MatrixIterator) At() querymodel.Row { return it.cur }
func (it *MatrixIterator) Err() error         { return it.err }
