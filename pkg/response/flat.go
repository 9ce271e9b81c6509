package response

import (
	"fmt"

	"github.com/grafana/jsonparser"

	"github.com/grafana/sqlbridge/pkg/querymodel"
)

const (
	flatTimestampsKey = "Timestamps"
	flatValuesKey     = "Values"
)

type flatColumn struct {
	name  string
	value string
	kind  int
}

const (
	kindTimestamp = iota
	kindValue
	kindConstant
)

// FlatIterator materializes an object holding parallel Timestamps and Values
// arrays into one row per index. Other scalar keys are repeated on every row
// in document order; arrays and objects other than the two are skipped.
type FlatIterator struct {
	query   string
	names   querymodel.ResponseFieldNames
	columns []flatColumn

	timestamps [][]byte
	tsTypes    []jsonparser.ValueType
	values     [][]byte
	valueTypes []jsonparser.ValueType

	idx int
	cur querymodel.Row
	err error
}

// NewFlatIterator validates the shape of body and returns an iterator over it.
func NewFlatIterator(query string, body []byte, names querymodel.ResponseFieldNames) (*FlatIterator, error) {
	it := &FlatIterator{query: query, names: names, idx: -1}

	err := jsonparser.ObjectEach(body, func(key, value []byte, dt jsonparser.ValueType, _ int) error {
		k := string(key)
		switch k {
		case flatTimestampsKey:
			it.columns = append(it.columns, flatColumn{name: names.TimestampFieldName, kind: kindTimestamp})
			return nil
		case flatValuesKey:
			it.columns = append(it.columns, flatColumn{name: names.ValueFieldName, kind: kindValue})
			return nil
		}
		if s, ok := scalarString(value, dt); ok {
			it.columns = append(it.columns, flatColumn{name: k, value: s, kind: kindConstant})
		}
		return nil
	})
	if err != nil {
		return nil, &querymodel.UnexpectedResponseShapeError{Query: query, Reason: err.Error()}
	}

	if it.timestamps, it.tsTypes, err = arrayElements(body, flatTimestampsKey); err != nil {
		return nil, &querymodel.UnexpectedResponseShapeError{Query: query, Reason: err.Error()}
	}
	if _, _, _, verr := jsonparser.Get(body, flatValuesKey); verr == nil {
		if it.values, it.valueTypes, err = arrayElements(body, flatValuesKey); err != nil {
			return nil, &querymodel.UnexpectedResponseShapeError{Query: query, Reason: err.Error()}
		}
	}
	if len(it.values) != len(it.timestamps) {
		return nil, &querymodel.UnexpectedResponseShapeError{
			Query:  query,
			Reason: fmt.Sprintf("%d timestamps but %d values", len(it.timestamps), len(it.values)),
		}
	}
	return it, nil
}

func (it *FlatIterator) Next() bool {
	if it.err != nil || it.idx+1 >= len(it.timestamps) {
		return false
	}
	it.idx++

	row := querymodel.NewRow(len(it.columns))
	for _, c := range it.columns {
		switch c.kind {
		case kindTimestamp:
			ts, err := parseTimestamp(it.timestamps[it.idx], it.tsTypes[it.idx])
			if err != nil {
				it.err = &querymodel.UnexpectedResponseShapeError{Query: it.query, Reason: err.Error()}
				return false
			}
			row.Set(c.name, querymodel.TimestampValue(ts))
		case kindValue:
			v, err := parseValue(it.values[it.idx], it.valueTypes[it.idx], it.names.ValueType)
			if err != nil {
				it.err = &querymodel.UnexpectedResponseShapeError{Query: it.query, Reason: err.Error()}
				return false
			}
			row.Set(c.name, v)
		default:
			row.Set(c.name, querymodel.StringValue(c.value))
		}
	}
	it.cur = row
	return true
}

func (it *FlatIterator) At() querymodel.Row { return it.cur }
func (it *FlatIterator) Err() error         { return it.err }
