// Package projection compiles declarative document projections into
// executable plan subtrees: a recursive keep/drop/compute pass over path
// levels, a separate pass for array slicing, and a final rewrite for the
// positional operator.
package projection

import (
	"strings"

	"github.com/pallasdb/pallas/expr"
	"github.com/pallasdb/pallas/value"
)

// Type distinguishes the two projection polarities. An inclusion names the
// fields the output consists of; an exclusion names the fields the output
// omits. The two are never mixed within one projection.
type Type int

const (
	Inclusion Type = iota
	Exclusion
)

func (t Type) String() string {
	if t == Inclusion {
		return "inclusion"
	}
	return "exclusion"
}

// Node is one vertex of the projection tree. Interior vertices are
// PathNodes; the rest are leaves describing what happens to one field.
type Node interface {
	projectionNode()
}

// PathNode is one level of the projection: an ordered list of field names,
// each mapped to the node describing that field.
type PathNode struct {
	Names    []string
	Children []Node
}

func NewPathNode() *PathNode { return &PathNode{} }

// Add appends a field to the level. Order is preserved into the output
// document.
func (n *PathNode) Add(name string, child Node) *PathNode {
	n.Names = append(n.Names, name)
	n.Children = append(n.Children, child)
	return n
}

func (n *PathNode) projectionNode() {}

// BooleanConstantNode is a plain 1 or 0 leaf.
type BooleanConstantNode struct {
	Keep bool
}

func (n *BooleanConstantNode) projectionNode() {}

// ExpressionNode computes the field's value. The expression reads the
// enclosing level's document through the compiler-provided input slot.
type ExpressionNode struct {
	Expr expr.Expr
}

func (n *ExpressionNode) projectionNode() {}

// SliceNode limits an array-valued field to a contiguous run of elements.
// Skip is optional; with it, a negative value counts from the end.
type SliceNode struct {
	Limit int32
	Skip  *int32
}

func (n *SliceNode) projectionNode() {}

// ElemMatchNode replaces an array-valued field with a one-element array
// holding the first element satisfying the match, or drops the field when
// nothing matches or the field is not an array.
type ElemMatchNode struct {
	Match MatchExpression
}

func (n *ElemMatchNode) projectionNode() {}

// PositionalNode marks a path terminated by the positional operator. The
// array on the path is reduced to the single element whose index the query's
// match recorded.
type PositionalNode struct {
	Match MatchExpression
}

func (n *PositionalNode) projectionNode() {}

// MatchExpression is the subset of query predicates the projection operators
// consume.
type MatchExpression interface {
	// Predicate builds the boolean expression testing one candidate value.
	Predicate(input expr.Expr) expr.Expr
}

// ComparisonMatch compares the value at Path (relative to the candidate)
// against a constant.
type ComparisonMatch struct {
	Path    []string
	Op      expr.CompareOp
	Operand value.Value
}

func (m *ComparisonMatch) Predicate(input expr.Expr) expr.Expr {
	target := input
	for _, seg := range m.Path {
		target = expr.NewGetField(target, seg)
	}
	return expr.NewCompare(m.Op, target, expr.NewConstant(m.Operand))
}

func (m *ComparisonMatch) String() string {
	return strings.Join(m.Path, ".") + " " + m.Op.String() + " " + m.Operand.String()
}

// AndMatch requires every child predicate to hold.
type AndMatch struct {
	Children []MatchExpression
}

func (m *AndMatch) Predicate(input expr.Expr) expr.Expr {
	if len(m.Children) == 0 {
		return expr.NewConstant(value.NewBool(true))
	}
	pred := m.Children[0].Predicate(input)
	for _, c := range m.Children[1:] {
		pred = expr.NewAnd(pred, c.Predicate(input))
	}
	return pred
}
