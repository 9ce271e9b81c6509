package querymodel

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ValueType is the column type reported to the query engine.
type ValueType int

const (
	Undefined ValueType = iota
	String
	Integer
	Long
	Float
	Double
	Boolean
	Timestamp
)

var valueTypeNames = map[ValueType]string{
	Undefined: "UNDEFINED",
	String:    "STRING",
	Integer:   "INTEGER",
	Long:      "LONG",
	Float:     "FLOAT",
	Double:    "DOUBLE",
	Boolean:   "BOOLEAN",
	Timestamp: "TIMESTAMP",
}

func (t ValueType) String() string {
	if s, ok := valueTypeNames[t]; ok {
		return s
	}
	return "UNDEFINED"
}

// ParseValueType maps both engine type names (DOUBLE) and Spark schema
// type names (double, bigint, timestamp) to a ValueType.
func ParseValueType(s string) ValueType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "varchar", "char", "keyword", "text":
		return String
	case "integer", "int", "short", "byte", "smallint", "tinyint":
		return Integer
	case "long", "bigint":
		return Long
	case "float", "real":
		return Float
	case "double", "decimal":
		return Double
	case "boolean", "bool":
		return Boolean
	case "timestamp", "date":
		return Timestamp
	}
	return Undefined
}

// Value is a typed scalar. The zero Value is NULL.
type Value struct {
	typ ValueType
	s   string
	i   int64
	f   float64
	b   bool
	t   time.Time
	set bool
}

var Null = Value{}

func StringValue(s string) Value       { return Value{typ: String, s: s, set: true} }
func IntegerValue(i int32) Value       { return Value{typ: Integer, i: int64(i), set: true} }
func LongValue(i int64) Value          { return Value{typ: Long, i: i, set: true} }
func FloatValue(f float32) Value       { return Value{typ: Float, f: float64(f), set: true} }
func DoubleValue(f float64) Value      { return Value{typ: Double, f: f, set: true} }
func BooleanValue(b bool) Value        { return Value{typ: Boolean, b: b, set: true} }
func TimestampValue(t time.Time) Value { return Value{typ: Timestamp, t: t.UTC(), set: true} }

// IsNull reports whether v is NULL.
func (v Value) IsNull() bool { return !v.set }

// Type returns the value type; NULL values report Undefined.
func (v Value) Type() ValueType { return v.typ }

// Interface returns the Go representation of v: string, int32, int64,
// float32, float64, bool, time.Time or nil.
func (v Value) Interface() interface{} {
	if !v.set {
		return nil
	}
	switch v.typ {
	case String:
		return v.s
	case Integer:
		return int32(v.i)
	case Long:
		return v.i
	case Float:
		return float32(v.f)
	case Double:
		return v.f
	case Boolean:
		return v.b
	case Timestamp:
		return v.t
	}
	return nil
}

// Time returns the timestamp held by v.
func (v Value) Time() time.Time { return v.t }

func (v Value) String() string {
	if !v.set {
		return "NULL"
	}
	switch v.typ {
	case String:
		return v.s
	case Integer, Long:
		return strconv.FormatInt(v.i, 10)
	case Float:
		return strconv.FormatFloat(v.f, 'g', -1, 32)
	case Double:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case Boolean:
		return strconv.FormatBool(v.b)
	case Timestamp:
		return v.t.Format("2006-01-02 15:04:05.000")
	}
	return fmt.Sprint(v.Interface())
}

// ParseNumeric coerces a numeric text into a value of type typ. INTEGER
// yields int32, LONG int64 and anything else a double.
func ParseNumeric(raw string, typ ValueType) (Value, error) {
	switch typ {
	case Integer:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Null, err
		}
		return IntegerValue(int32(f)), nil
	case Long:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Null, err
		}
		return LongValue(int64(f)), nil
	default:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Null, err
		}
		return DoubleValue(f), nil
	}
}
