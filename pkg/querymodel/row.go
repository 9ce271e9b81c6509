package querymodel

import "strings"

// Row is an ordered mapping of column name to value. Column order is the
// order in which columns were first set.
type Row struct {
	names  []string
	values map[string]Value
}

// NewRow returns an empty row with room for n columns.
func NewRow(n int) Row {
	return Row{names: make([]string, 0, n), values: make(map[string]Value, n)}
}

// Set assigns a column. Re-setting an existing column keeps its position.
func (r *Row) Set(name string, v Value) {
	if r.values == nil {
		r.values = map[string]Value{}
	}
	if _, ok := r.values[name]; !ok {
		r.names = append(r.names, name)
	}
	r.values[name] = v
}

// Get returns the column value and whether the column exists.
func (r Row) Get(name string) (Value, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Columns returns the column names in order.
func (r Row) Columns() []string { return r.names }

// Values returns the values in column order.
func (r Row) Values() []Value {
	out := make([]Value, len(r.names))
	for i, n := range r.names {
		out[i] = r.values[n]
	}
	return out
}

// Len returns the number of columns.
func (r Row) Len() int { return len(r.names) }

func (r Row) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, n := range r.names {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(n)
		sb.WriteByte('=')
		sb.WriteString(r.values[n].String())
	}
	sb.WriteByte('}')
	return sb.String()
}
