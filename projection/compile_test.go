package projection

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pallasdb/pallas/common"
	"github.com/pallasdb/pallas/expr"
	"github.com/pallasdb/pallas/stage"
	"github.com/pallasdb/pallas/value"
)

func obj(fields ...any) value.Value {
	o := value.NewObject()
	for i := 0; i < len(fields); i += 2 {
		o.Push(fields[i].(string), fields[i+1].(value.Value))
	}
	return value.NewObjectValue(o)
}

func arr(vals ...value.Value) value.Value {
	a := value.NewArray()
	for _, v := range vals {
		a.Push(v)
	}
	return value.NewArrayValue(a)
}

func i32(v int32) value.Value { return value.NewInt32(v) }

// compileOver lowers the projection onto a one-row input holding doc and
// runs it, returning the projected rows.
func compileOver(t *testing.T, doc value.Value, projType Type, root *PathNode,
	output stage.OutputType) []value.Value {
	t.Helper()
	rows, err := tryCompileOver(doc, projType, root, output)
	require.NoError(t, err)
	return rows
}

func tryCompileOver(doc value.Value, projType Type, root *PathNode,
	output stage.OutputType) ([]value.Value, error) {

	slots := &value.SlotIDGenerator{}
	inputSlot := slots.Generate()
	input := stage.NewProject(stage.NewLimitOne(1000),
		map[value.SlotID]expr.Expr{inputSlot: expr.NewConstant(doc)}, 1001)

	plan, resultSlot, err := NewCompiler(slots, output).Compile(input, inputSlot, projType, root)
	if err != nil {
		return nil, err
	}
	if err := plan.Prepare(stage.NewPrepareContext()); err != nil {
		return nil, err
	}
	acc, ok := plan.GetAccessor(resultSlot)
	if !ok {
		return nil, common.Errorf(common.SlotNotFoundError, "result slot not exposed")
	}
	if err := plan.Open(false); err != nil {
		return nil, err
	}
	defer plan.Close()

	var out []value.Value
	for {
		st, err := plan.GetNext()
		if err != nil {
			return nil, err
		}
		if st == stage.EOF {
			return out, nil
		}
		out = append(out, acc.View().Copy())
	}
}

func project(t *testing.T, doc value.Value, projType Type, root *PathNode) value.Value {
	t.Helper()
	rows := compileOver(t, doc, projType, root, stage.OutputObject)
	require.Len(t, rows, 1)
	return rows[0]
}

func names(t *testing.T, doc value.Value) []string {
	t.Helper()
	n, _, ok := value.DocumentFields(doc)
	require.True(t, ok)
	return n
}

func field(t *testing.T, doc value.Value, name string) value.Value {
	t.Helper()
	v, err := value.LookupField(doc, name)
	require.NoError(t, err)
	return v
}

func keep() *BooleanConstantNode { return &BooleanConstantNode{Keep: true} }
func drop() *BooleanConstantNode { return &BooleanConstantNode{Keep: false} }

func TestCompileInclusionKeepsNamedFields(t *testing.T) {
	doc := obj("a", i32(1), "b", i32(2), "c", i32(3))
	out := project(t, doc, Inclusion,
		NewPathNode().Add("a", keep()).Add("c", keep()))
	require.Equal(t, []string{"a", "c"}, names(t, out))
}

func TestCompileExclusionDropsNamedFields(t *testing.T) {
	doc := obj("a", i32(1), "b", i32(2), "c", i32(3))
	out := project(t, doc, Exclusion, NewPathNode().Add("b", drop()))
	require.Equal(t, []string{"a", "c"}, names(t, out))
}

func TestCompileEmptyExclusionIsPassthrough(t *testing.T) {
	doc := obj("a", i32(1), "b", arr(i32(2), i32(3)))
	out := project(t, doc, Exclusion, NewPathNode())
	require.True(t, value.Equal(doc, out))
}

func TestCompileComputedReplacesInPlaceAndAppendsNew(t *testing.T) {
	doc := obj("a", i32(1), "b", i32(2), "c", i32(3))
	// b is recomputed from c; z is new and lands at the end.
	slots := &value.SlotIDGenerator{}
	inputSlot := slots.Generate()
	input := stage.NewProject(stage.NewLimitOne(1000),
		map[value.SlotID]expr.Expr{inputSlot: expr.NewConstant(doc)}, 1001)

	root := NewPathNode().
		Add("a", keep()).
		Add("b", &ExpressionNode{Expr: expr.NewGetField(expr.NewVariable(inputSlot), "c")}).
		Add("z", &ExpressionNode{Expr: expr.NewConstant(i32(99))})

	plan, resultSlot, err := NewCompiler(slots, stage.OutputObject).
		Compile(input, inputSlot, Inclusion, root)
	require.NoError(t, err)
	require.NoError(t, plan.Prepare(stage.NewPrepareContext()))
	acc, ok := plan.GetAccessor(resultSlot)
	require.True(t, ok)
	require.NoError(t, plan.Open(false))
	defer plan.Close()
	st, err := plan.GetNext()
	require.NoError(t, err)
	require.Equal(t, stage.Advanced, st)

	out := acc.View()
	require.Equal(t, []string{"a", "b", "z"}, names(t, out))
	require.Equal(t, int32(3), field(t, out, "b").Int32())
	require.Equal(t, int32(99), field(t, out, "z").Int32())
}

func TestCompileNestedInclusionOverObject(t *testing.T) {
	doc := obj("a", obj("b", i32(1), "c", i32(2)), "d", i32(3))
	out := project(t, doc, Inclusion,
		NewPathNode().Add("a", NewPathNode().Add("b", keep())))
	require.Equal(t, []string{"a"}, names(t, out))
	require.Equal(t, []string{"b"}, names(t, field(t, out, "a")))
}

func TestCompileNestedInclusionOverArray(t *testing.T) {
	doc := obj("a", arr(
		obj("b", i32(1), "c", i32(2)),
		i32(5),
		obj("c", i32(3))))
	out := project(t, doc, Inclusion,
		NewPathNode().Add("a", NewPathNode().Add("b", keep())))

	elems, ok := value.ArrayElements(field(t, out, "a"))
	require.True(t, ok)
	// The scalar element is dropped; the object without b projects empty.
	require.Len(t, elems, 2)
	require.Equal(t, []string{"b"}, names(t, elems[0]))
	require.Empty(t, names(t, elems[1]))
}

func TestCompileNestedExclusionPreservesNonObjects(t *testing.T) {
	doc := obj("a", arr(
		obj("b", i32(1), "c", i32(2)),
		i32(5),
		obj("c", i32(3))))
	out := project(t, doc, Exclusion,
		NewPathNode().Add("a", NewPathNode().Add("b", drop())))

	elems, ok := value.ArrayElements(field(t, out, "a"))
	require.True(t, ok)
	require.Len(t, elems, 3)
	require.Equal(t, []string{"c"}, names(t, elems[0]))
	require.Equal(t, int32(5), elems[1].Int32())
	require.Equal(t, []string{"c"}, names(t, elems[2]))
}

func TestCompileNestedComputedForcesObjectOnScalar(t *testing.T) {
	doc := obj("a", i32(7))
	out := project(t, doc, Inclusion,
		NewPathNode().Add("a", NewPathNode().Add("b", &ExpressionNode{
			Expr: expr.NewConstant(i32(1)),
		})))
	inner := field(t, out, "a")
	require.Equal(t, []string{"b"}, names(t, inner))
	require.Equal(t, int32(1), field(t, inner, "b").Int32())
}

func TestCompileSliceInExclusion(t *testing.T) {
	doc := obj("a", arr(i32(1), i32(2), i32(3), i32(4)), "b", i32(5))
	out := project(t, doc, Exclusion,
		NewPathNode().Add("a", &SliceNode{Limit: 2}))

	elems, ok := value.ArrayElements(field(t, out, "a"))
	require.True(t, ok)
	require.Len(t, elems, 2)
	require.Equal(t, int32(1), elems[0].Int32())
	require.Equal(t, int32(2), elems[1].Int32())
	require.Equal(t, int32(5), field(t, out, "b").Int32())
}

func TestCompileSliceWithSkip(t *testing.T) {
	skip := int32(1)
	doc := obj("a", arr(i32(1), i32(2), i32(3), i32(4)))
	out := project(t, doc, Exclusion,
		NewPathNode().Add("a", &SliceNode{Limit: 2, Skip: &skip}))

	elems, ok := value.ArrayElements(field(t, out, "a"))
	require.True(t, ok)
	require.Len(t, elems, 2)
	require.Equal(t, int32(2), elems[0].Int32())
	require.Equal(t, int32(3), elems[1].Int32())
}

func TestCompileSliceInsideInclusion(t *testing.T) {
	doc := obj("a", arr(i32(1), i32(2), i32(3)), "b", i32(2), "c", i32(3))
	out := project(t, doc, Inclusion,
		NewPathNode().Add("a", &SliceNode{Limit: 2}).Add("b", keep()))

	require.Equal(t, []string{"a", "b"}, names(t, out))
	elems, ok := value.ArrayElements(field(t, out, "a"))
	require.True(t, ok)
	require.Len(t, elems, 2)
}

func TestCompileNestedSlicePreservesNonObjectElements(t *testing.T) {
	doc := obj(
		"a", arr(
			obj("b", arr(i32(1), i32(2))),
			i32(7)),
		"c", i32(3))
	out := project(t, doc, Exclusion,
		NewPathNode().Add("a", NewPathNode().Add("b", &SliceNode{Limit: 1})))

	elems, ok := value.ArrayElements(field(t, out, "a"))
	require.True(t, ok)
	require.Len(t, elems, 2)
	sliced, ok := value.ArrayElements(field(t, elems[0], "b"))
	require.True(t, ok)
	require.Len(t, sliced, 1)
	require.Equal(t, int32(1), sliced[0].Int32())
	require.Equal(t, int32(7), elems[1].Int32())
	require.Equal(t, int32(3), field(t, out, "c").Int32())
}

func elemMatchGt(name string, operand int32) *ElemMatchNode {
	return &ElemMatchNode{Match: &ComparisonMatch{
		Path: []string{name}, Op: expr.OpGt, Operand: i32(operand)}}
}

func TestCompileElemMatchKeepsFirstMatch(t *testing.T) {
	doc := obj(
		"a", arr(obj("x", i32(1)), obj("x", i32(7)), obj("x", i32(9))),
		"b", i32(2))
	out := project(t, doc, Inclusion,
		NewPathNode().Add("a", elemMatchGt("x", 5)).Add("b", keep()))

	elems, ok := value.ArrayElements(field(t, out, "a"))
	require.True(t, ok)
	require.Len(t, elems, 1)
	require.Equal(t, int32(7), field(t, elems[0], "x").Int32())
	require.Equal(t, int32(2), field(t, out, "b").Int32())
}

func TestCompileElemMatchNoMatchDropsField(t *testing.T) {
	doc := obj("a", arr(obj("x", i32(1))), "b", i32(2))
	out := project(t, doc, Inclusion,
		NewPathNode().Add("a", elemMatchGt("x", 100)).Add("b", keep()))
	require.Equal(t, []string{"b"}, names(t, out))
}

func TestCompileElemMatchNonArrayDropsField(t *testing.T) {
	doc := obj("a", i32(3), "b", i32(2))
	out := project(t, doc, Inclusion,
		NewPathNode().Add("a", elemMatchGt("x", 0)).Add("b", keep()))
	require.Equal(t, []string{"b"}, names(t, out))
}

func positionalEq(path []string, operand int32) *PositionalNode {
	return &PositionalNode{Match: &ComparisonMatch{
		Path: path, Op: expr.OpEq, Operand: i32(operand)}}
}

func TestCompilePositionalKeepsMatchedElement(t *testing.T) {
	doc := obj(
		"a", arr(obj("x", i32(1)), obj("x", i32(5)), obj("x", i32(9))),
		"b", i32(2))
	out := project(t, doc, Inclusion,
		NewPathNode().Add("a", positionalEq([]string{"a", "x"}, 5)))

	require.Equal(t, []string{"a"}, names(t, out))
	elems, ok := value.ArrayElements(field(t, out, "a"))
	require.True(t, ok)
	require.Len(t, elems, 1)
	require.Equal(t, int32(5), field(t, elems[0], "x").Int32())
}

func TestCompilePositionalNoMatchFails(t *testing.T) {
	doc := obj("a", arr(obj("x", i32(1))))
	_, err := tryCompileOver(doc, Inclusion,
		NewPathNode().Add("a", positionalEq([]string{"a", "x"}, 42)),
		stage.OutputObject)
	code, ok := common.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, common.PositionalNoMatchError, code)
}

func TestCompilePositionalScalarPathPassesFieldThrough(t *testing.T) {
	doc := obj("a", i32(7), "b", i32(2))
	out := project(t, doc, Inclusion,
		NewPathNode().Add("a", positionalEq([]string{"a", "x"}, 5)))
	require.Equal(t, []string{"a"}, names(t, out))
	require.Equal(t, int32(7), field(t, out, "a").Int32())
}

func TestCompilePositionalMissingFieldStaysAbsent(t *testing.T) {
	doc := obj("b", i32(2))
	out := project(t, doc, Inclusion,
		NewPathNode().Add("a", positionalEq([]string{"a", "x"}, 5)))
	require.NotContains(t, names(t, out), "a")
}

func TestCompilePositionalUntrackableMatchFailsOnArray(t *testing.T) {
	doc := obj("a", arr(i32(1)))
	root := NewPathNode().Add("a", &PositionalNode{Match: &AndMatch{
		Children: []MatchExpression{
			&ComparisonMatch{Path: []string{"a"}, Op: expr.OpGt, Operand: i32(0)},
			&ComparisonMatch{Path: []string{"a"}, Op: expr.OpLt, Operand: i32(5)},
		}}})
	_, err := tryCompileOver(doc, Inclusion, root, stage.OutputObject)
	code, ok := common.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, common.EvalError, code)
}

func TestCompileRejectsMultiplePositionals(t *testing.T) {
	root := NewPathNode().
		Add("a", positionalEq([]string{"a", "x"}, 1)).
		Add("b", positionalEq([]string{"b", "x"}, 1))
	_, err := tryCompileOver(obj(), Inclusion, root, stage.OutputObject)
	code, ok := common.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, common.InvalidConfigurationError, code)
}

func TestCompileRejectsPositionalInExclusion(t *testing.T) {
	root := NewPathNode().Add("a", positionalEq([]string{"a", "x"}, 1))
	_, err := tryCompileOver(obj(), Exclusion, root, stage.OutputObject)
	code, ok := common.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, common.InvalidConfigurationError, code)
}

func TestCompileOutputRepresentationsAgree(t *testing.T) {
	doc := obj(
		"a", arr(obj("b", i32(1), "c", i32(2)), obj("b", i32(3))),
		"d", i32(4))
	root := NewPathNode().Add("a", NewPathNode().Add("b", keep()))

	asObject := compileOver(t, doc, Inclusion, root, stage.OutputObject)
	asBSON := compileOver(t, doc, Inclusion, root, stage.OutputBSON)
	require.Len(t, asObject, 1)
	require.Len(t, asBSON, 1)
	require.True(t, value.Equal(asObject[0], asBSON[0]))
}
