// Package system serves the metadata tables of a data source: the metric
// listing behind SHOW TABLES and the column listing behind DESCRIBE.
package system

import (
	"github.com/grafana/sqlbridge/pkg/querymodel"
)

// Column names of the metadata tables.
const (
	TableCatalog   = "TABLE_CATALOG"
	TableSchema    = "TABLE_SCHEMA"
	TableNamespace = "TABLE_NAMESPACE"
	TableName      = "TABLE_NAME"
	TableType      = "TABLE_TYPE"
	Unit           = "UNIT"
	Remarks        = "REMARKS"
	ColumnName     = "COLUMN_NAME"
	DataType       = "DATA_TYPE"
)

// InformationSchema is the schema holding the tables listing.
const InformationSchema = "information_schema"

// TablesTable is the name of the tables listing inside InformationSchema.
const TablesTable = "tables"

// Column is one column of a metadata table.
type Column struct {
	Name string
	Type querymodel.ValueType
}

// Schema is the fixed column list of a metadata table.
type Schema struct {
	columns []Column
}

// NewSchema returns a schema of string columns named names.
func NewSchema(names ...string) Schema {
	cols := make([]Column, 0, len(names))
	for _, n := range names {
		cols = append(cols, Column{Name: n, Type: querymodel.String})
	}
	return Schema{columns: cols}
}

// Columns returns a copy of the columns in order.
func (s Schema) Columns() []Column {
	return append([]Column(nil), s.columns...)
}

// FieldTypes returns the column types by name.
func (s Schema) FieldTypes() map[string]querymodel.ValueType {
	out := make(map[string]querymodel.ValueType, len(s.columns))
	for _, c := range s.columns {
		out[c.Name] = c.Type
	}
	return out
}

// Row builds a row of the schema from values given in column order.
// Missing trailing values are NULL.
func (s Schema) Row(values ...string) querymodel.Row {
	r := querymodel.NewRow(len(s.columns))
	for i, c := range s.columns {
		if i < len(values) {
			r.Set(c.Name, querymodel.StringValue(values[i]))
			continue
		}
		r.Set(c.Name, querymodel.Null)
	}
	return r
}

// Schemas are the metadata table layouts of one kind of data source.
type Schemas struct {
	// Tables is the SHOW TABLES layout.
	Tables Schema
	// Mappings is the DESCRIBE layout.
	Mappings Schema
	// Namespaced metric names put their namespace in TABLE_SCHEMA of
	// DESCRIBE rows and list it in TABLE_NAMESPACE of SHOW TABLES rows.
	Namespaced bool
}

func mappings() Schema {
	return NewSchema(TableCatalog, TableSchema, TableName, ColumnName, DataType)
}

// CloudWatchSchemas returns the layouts of namespaced metric catalogs.
func CloudWatchSchemas() Schemas {
	return Schemas{
		Tables:     NewSchema(TableCatalog, TableNamespace, TableName),
		Mappings:   mappings(),
		Namespaced: true,
	}
}

// PrometheusSchemas returns the layouts of flat metric catalogs.
func PrometheusSchemas() Schemas {
	return Schemas{
		Tables:   NewSchema(TableCatalog, TableSchema, TableName, TableType, Unit, Remarks),
		Mappings: mappings(),
	}
}
