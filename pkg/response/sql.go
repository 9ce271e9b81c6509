package response

import (
	"strconv"
	"strings"
	"time"

	"github.com/grafana/jsonparser"
	"github.com/pkg/errors"

	"github.com/grafana/sqlbridge/pkg/querymodel"
)

// SQLIterator materializes a batch SQL result of the form
// {"data": {"schema": [...], "result": [...]}}. Schema entries and rows may
// be objects or strings holding single quoted JSON.
type SQLIterator struct {
	query  string
	schema []Column
	rows   [][]byte
	types  []jsonparser.ValueType

	idx int
	cur querymodel.Row
	err error
}

// NewSQLIterator reads the schema of body and returns an iterator over its
// rows.
func NewSQLIterator(query string, body []byte) (*SQLIterator, error) {
	it := &SQLIterator{query: query, idx: -1}

	entries, types, err := arrayElements(body, "data", "schema")
	if err != nil {
		return nil, &querymodel.UnexpectedResponseShapeError{Query: query, Reason: "missing data.schema: " + err.Error()}
	}
	for i, e := range entries {
		obj, err := normaliseObject(e, types[i])
		if err != nil {
			return nil, &querymodel.UnexpectedResponseShapeError{Query: query, Reason: err.Error()}
		}
		name, err := jsonparser.GetString(obj, "column_name")
		if err != nil {
			return nil, &querymodel.UnexpectedResponseShapeError{Query: query, Reason: "schema entry without column_name"}
		}
		typ, _ := jsonparser.GetString(obj, "data_type")
		vt := querymodel.ParseValueType(typ)
		if vt == querymodel.Undefined {
			vt = querymodel.String
		}
		it.schema = append(it.schema, Column{Name: name, Type: vt})
	}

	if _, _, _, err := jsonparser.Get(body, "data", "result"); err == nil {
		if it.rows, it.types, err = arrayElements(body, "data", "result"); err != nil {
			return nil, &querymodel.UnexpectedResponseShapeError{Query: query, Reason: err.Error()}
		}
	}
	return it, nil
}

// Schema returns the result columns.
func (it *SQLIterator) Schema() []Column { return it.schema }

func (it *SQLIterator) Next() bool {
	if it.err != nil || it.idx+1 >= len(it.rows) {
		return false
	}
	it.idx++

	obj, err := normaliseObject(it.rows[it.idx], it.types[it.idx])
	if err != nil {
		it.err = &querymodel.UnexpectedResponseShapeError{Query: it.query, Reason: err.Error()}
		return false
	}
	row := querymodel.NewRow(len(it.schema))
	for _, c := range it.schema {
		raw, dt, _, err := jsonparser.Get(obj, c.Name)
		if err != nil || dt == jsonparser.Null {
			row.Set(c.Name, querymodel.Null)
			continue
		}
		v, err := typedValue(raw, dt, c.Type)
		if err != nil {
			it.err = &querymodel.UnexpectedResponseShapeError{Query: it.query, Reason: errors.Wrapf(err, "column %s", c.Name).Error()}
			return false
		}
		row.Set(c.Name, v)
	}
	it.cur = row
	return true
}

func (it *SQLIterator) At() querymodel.Row { return it.cur }
func (it *SQLIterator) Err() error         { return it.err }

// normaliseObject returns raw as a JSON object, decoding strings of single
// quoted JSON first.
func normaliseObject(raw []byte, dt jsonparser.ValueType) ([]byte, error) {
	switch dt {
	case jsonparser.Object:
		return raw, nil
	case jsonparser.String:
		s, err := jsonparser.ParseString(raw)
		if err != nil {
			return nil, err
		}
		return []byte(strings.ReplaceAll(s, "'", `"`)), nil
	}
	return nil, errors.Errorf("expected an object, got %s", dt)
}

func typedValue(raw []byte, dt jsonparser.ValueType, typ querymodel.ValueType) (querymodel.Value, error) {
	switch typ {
	case querymodel.Integer, querymodel.Long, querymodel.Float, querymodel.Double:
		v, err := parseValue(raw, dt, typ)
		if err != nil || typ != querymodel.Float {
			return v, err
		}
		f, _ := v.Interface().(float64)
		return querymodel.FloatValue(float32(f)), nil
	case querymodel.Boolean:
		b, err := jsonparser.ParseBoolean(raw)
		if err != nil {
			s, _ := scalarString(raw, dt)
			b, err = strconv.ParseBool(s)
		}
		return querymodel.BooleanValue(b), err
	case querymodel.Timestamp:
		s, _ := scalarString(raw, dt)
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999", "2006-01-02"} {
			if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return querymodel.TimestampValue(t), nil
			}
		}
		return parseTimestampValue(raw, dt)
	}
	s, ok := scalarString(raw, dt)
	if !ok {
		s = string(raw)
	}
	return querymodel.StringValue(s), nil
}

func parseTimestampValue(raw []byte, dt jsonparser.ValueType) (querymodel.Value, error) {
	t, err := parseTimestamp(raw, dt)
	if err != nil {
		return querymodel.Null, err
	}
	return querymodel.TimestampValue(t), nil
}
