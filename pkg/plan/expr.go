package plan

import (
	"fmt"
	"strings"
	"time"

	"github.com/grafana/sqlbridge/pkg/querymodel"
)

// Expr is a node of a filter or projection expression.
type Expr interface {
	fmt.Stringer
	expr()
}

// Reference names a column.
type Reference struct {
	Name string
}

// Literal is a constant.
type Literal struct {
	Value querymodel.Value
}

// Op is a comparison operator.
type Op string

const (
	OpEq  Op = "="
	OpNeq Op = "!="
	OpGt  Op = ">"
	OpGte Op = ">="
	OpLt  Op = "<"
	OpLte Op = "<="
)

// Comparison is a binary predicate between two expressions.
type Comparison struct {
	Op          Op
	Left, Right Expr
}

// And is a conjunction.
type And struct {
	Left, Right Expr
}

// Or is a disjunction.
type Or struct {
	Left, Right Expr
}

// Span buckets Field into fixed windows of Value units.
type Span struct {
	Field Expr
	Value int64
	Unit  time.Duration
}

// Width returns the span window.
func (s Span) Width() time.Duration { return time.Duration(s.Value) * s.Unit }

// NamedExpression gives an expression an output name. Delegated holds the
// underlying expression, typically a Reference or a Span.
type NamedExpression struct {
	Name      string
	Alias     string
	Delegated Expr
}

// OutputName returns the alias if set, the name otherwise.
func (n NamedExpression) OutputName() string {
	if n.Alias != "" {
		return n.Alias
	}
	return n.Name
}

// NamedAggregator is an aggregate function call with an output name.
type NamedAggregator struct {
	Name     string
	Function string
	Args     []Expr
	Type     querymodel.ValueType
}

// NamedArgument is a named table function argument.
type NamedArgument struct {
	Name  string
	Value Expr
}

func (Reference) expr()       {}
func (Literal) expr()         {}
func (Comparison) expr()      {}
func (And) expr()             {}
func (Or) expr()              {}
func (Span) expr()            {}
func (NamedExpression) expr() {}
func (NamedAggregator) expr() {}
func (NamedArgument) expr()   {}

func (r Reference) String() string { return r.Name }

func (l Literal) String() string {
	if l.Value.Type() == querymodel.String {
		return "'" + l.Value.String() + "'"
	}
	return l.Value.String()
}

func (c Comparison) String() string { return fmt.Sprintf("%s %s %s", c.Left, c.Op, c.Right) }
func (a And) String() string        { return fmt.Sprintf("(%s and %s)", a.Left, a.Right) }
func (o Or) String() string         { return fmt.Sprintf("(%s or %s)", o.Left, o.Right) }
func (s Span) String() string       { return fmt.Sprintf("span(%s, %s)", s.Field, s.Width()) }
func (n NamedExpression) String() string {
	return n.OutputName()
}

func (n NamedAggregator) String() string {
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", n.Function, strings.Join(args, ", "))
}

func (n NamedArgument) String() string { return n.Name + "=" + n.Value.String() }

// Ref is shorthand for a column reference.
func Ref(name string) Reference { return Reference{Name: name} }

// Str is shorthand for a string literal.
func Str(s string) Literal { return Literal{Value: querymodel.StringValue(s)} }

// Int is shorthand for a long literal.
func Int(i int64) Literal { return Literal{Value: querymodel.LongValue(i)} }

// Eq is shorthand for an equality comparison.
func Eq(left, right Expr) Comparison { return Comparison{Op: OpEq, Left: left, Right: right} }

// AndAll folds the given predicates left to right. It returns nil for no
// predicates.
func AndAll(preds ...Expr) Expr {
	var out Expr
	for _, p := range preds {
		if out == nil {
			out = p
			continue
		}
		out = And{Left: out, Right: p}
	}
	return out
}
