package querymodel

import "fmt"

const (
	// TimestampField is the column on which time filters are resolved.
	TimestampField = "@timestamp"
	// ValueField is the default value column of a metric table.
	ValueField = "@value"
	// LabelsField holds all series labels as one JSON object.
	LabelsField = "@labels"
)

// QueryRequest is the backend-neutral description of a single series query.
// StartTime and EndTime are epoch seconds; Step is a duration string such
// as "60s".
type QueryRequest struct {
	SeriesQuery  string
	StartTime    int64
	EndTime      int64
	Step         string
	SourceMetric string
}

// Validate checks the request bounds.
func (r QueryRequest) Validate() error {
	if r.EndTime < r.StartTime {
		return &InvalidTimeRangeError{Query: r.SeriesQuery, Start: r.StartTime, End: r.EndTime}
	}
	if r.Step == "" {
		return &InvalidStepError{Query: r.SeriesQuery, Reason: "step is empty"}
	}
	return nil
}

func (r QueryRequest) String() string {
	return fmt.Sprintf("query=%s, start=%d, end=%d, step=%s", r.SeriesQuery, r.StartTime, r.EndTime, r.Step)
}

// ResponseFieldNames controls how backend payloads are named and typed when
// materialized into rows.
type ResponseFieldNames struct {
	ValueFieldName     string
	ValueType          ValueType
	TimestampFieldName string
	// GroupByAliases renames label keys; keys absent from the map are kept.
	GroupByAliases map[string]string
	// LabelsAsJSON collapses every label into a single LabelsField column.
	LabelsAsJSON bool
}

// DefaultFieldNames returns the field names used when nothing is aggregated.
func DefaultFieldNames() ResponseFieldNames {
	return ResponseFieldNames{
		ValueFieldName:     ValueField,
		ValueType:          Double,
		TimestampFieldName: TimestampField,
	}
}

// Alias returns the output column name for a backend label.
func (n ResponseFieldNames) Alias(label string) string {
	if a, ok := n.GroupByAliases[label]; ok && a != "" {
		return a
	}
	return label
}
