package plan

// Node is a logical plan node pushed down to storage.
type Node interface {
	Accept(v Visitor) error
	node()
}

// Visitor dispatches over every Node kind. Adding a node kind breaks every
// implementation until it handles the new kind.
type Visitor interface {
	VisitScan(*ScanNode) error
	VisitAggregation(*AggregationNode) error
	VisitRelation(*RelationNode) error
}

// ScanNode reads raw series points of one metric, optionally filtered.
type ScanNode struct {
	MetricName string
	Filter     Expr
}

// AggregationNode aggregates a metric grouped by labels and optionally by a
// time span.
type AggregationNode struct {
	MetricName  string
	Filter      Expr
	Aggregators []NamedAggregator
	GroupBy     []NamedExpression
}

// RelationNode reads a table without any pushed down operation.
type RelationNode struct {
	Name string
}

func (n *ScanNode) Accept(v Visitor) error        { return v.VisitScan(n) }
func (n *AggregationNode) Accept(v Visitor) error { return v.VisitAggregation(n) }
func (n *RelationNode) Accept(v Visitor) error    { return v.VisitRelation(n) }

func (*ScanNode) node()        {}
func (*AggregationNode) node() {}
func (*RelationNode) node()    {}

// Span returns the first span in the group by list, if any.
func (n *AggregationNode) Span() (NamedExpression, Span, bool) {
	for _, g := range n.GroupBy {
		if s, ok := g.Delegated.(Span); ok {
			return g, s, true
		}
	}
	return NamedExpression{}, Span{}, false
}
