package projection

import (
	"github.com/pallasdb/pallas/common"
	"github.com/pallasdb/pallas/expr"
	"github.com/pallasdb/pallas/stage"
	"github.com/pallasdb/pallas/value"
)

// Compiler lowers a projection tree onto an input plan. The same compiler
// may be reused across projections; slot ids keep advancing.
type Compiler struct {
	Slots *value.SlotIDGenerator
	// Output picks the document representation every construction site in
	// the compiled plan builds.
	Output stage.OutputType

	nodeSeq int
}

func NewCompiler(slots *value.SlotIDGenerator, output stage.OutputType) *Compiler {
	return &Compiler{Slots: slots, Output: output}
}

func (c *Compiler) slot() value.SlotID { return c.Slots.Generate() }

func (c *Compiler) id() int {
	c.nodeSeq++
	return c.nodeSeq
}

// Compile builds the plan computing the projected document for every row of
// the input. The compiled plan runs up to three passes stacked on top of the
// input: the general keep/drop/compute pass, a slicing pass when any $slice
// is present, and a positional rewrite when the path tree ends in `$`.
// It returns the combined plan and the slot holding the projection result.
func (c *Compiler) Compile(input stage.PlanStage, inputSlot value.SlotID,
	projType Type, root *PathNode) (stage.PlanStage, value.SlotID, error) {

	positionalPaths := collectPositionalPaths(root)
	if len(positionalPaths) > 1 {
		return nil, 0, common.Errorf(common.InvalidConfigurationError,
			"at most one positional operator is allowed per projection")
	}
	if len(positionalPaths) == 1 && projType == Exclusion {
		return nil, 0, common.Errorf(common.InvalidConfigurationError,
			"the positional operator is not allowed in an exclusion")
	}

	from, resultSlot, err := c.buildLevel(input, inputSlot, root, projType)
	if err != nil {
		return nil, 0, err
	}

	if containsSlice(root) {
		from, resultSlot, err = c.buildSliceLevel(from, resultSlot, root)
		if err != nil {
			return nil, 0, err
		}
	}

	if len(positionalPaths) == 1 {
		p := positionalPaths[0]
		from, resultSlot, err = c.buildPositional(from, inputSlot, resultSlot, p.path, p.node.Match)
		if err != nil {
			return nil, 0, err
		}
	}
	return from, resultSlot, nil
}

// buildLevel lowers one level of the path tree: expressions and nested
// levels are evaluated into slots on the way up, then a single
// document-construction stage assembles the level's output.
func (c *Compiler) buildLevel(from stage.PlanStage, inputSlot value.SlotID,
	level *PathNode, projType Type) (stage.PlanStage, value.SlotID, error) {

	var keepDrop []string
	var projectFields []string
	var projectSlots []value.SlotID
	var err error

	for i, name := range level.Names {
		switch n := level.Children[i].(type) {
		case *BooleanConstantNode:
			if projType == Inclusion && n.Keep {
				keepDrop = append(keepDrop, name)
			} else if projType == Exclusion && !n.Keep {
				keepDrop = append(keepDrop, name)
			}
		case *ExpressionNode:
			slot := c.slot()
			from = stage.NewProject(from,
				map[value.SlotID]expr.Expr{slot: n.Expr}, c.id())
			projectFields = append(projectFields, name)
			projectSlots = append(projectSlots, slot)
		case *SliceNode:
			// Handled by the slicing pass; here the field survives as-is.
			if projType == Inclusion {
				keepDrop = append(keepDrop, name)
			}
		case *PositionalNode:
			// Handled by the positional pass over the post-image.
			if projType == Inclusion {
				keepDrop = append(keepDrop, name)
			}
		case *ElemMatchNode:
			var slot value.SlotID
			from, slot, err = c.buildElemMatch(from, inputSlot, name, n)
			if err != nil {
				return nil, 0, err
			}
			projectFields = append(projectFields, name)
			projectSlots = append(projectSlots, slot)
		case *PathNode:
			var slot value.SlotID
			from, slot, err = c.buildNestedField(from, inputSlot, name, n, projType)
			if err != nil {
				return nil, 0, err
			}
			projectFields = append(projectFields, name)
			projectSlots = append(projectSlots, slot)
		}
	}

	resultSlot := c.slot()
	rootSlot := inputSlot
	if projType == Inclusion {
		from = stage.NewMakeObj(from, resultSlot, &rootSlot, stage.FieldBehaviorKeep,
			keepDrop, projectFields, projectSlots,
			true /*forceNewObject*/, false /*returnOldObject*/, c.Output, c.id())
	} else {
		from = stage.NewMakeObj(from, resultSlot, &rootSlot, stage.FieldBehaviorDrop,
			keepDrop, projectFields, projectSlots,
			false /*forceNewObject*/, true /*returnOldObject*/, c.Output, c.id())
	}
	return from, resultSlot, nil
}

// buildNestedField lowers one dotted sub-level. The child level runs as a
// correlated subtree under a traverse, so an array-valued field has the
// projection applied to every element, at any nesting depth.
//
// Under an inclusion with no computed field in the subtree, a non-document
// value contributes nothing to the output: the subtree sits behind a filter
// on the document check, evaluated once per traversed element.
func (c *Compiler) buildNestedField(from stage.PlanStage, inputSlot value.SlotID,
	name string, level *PathNode, projType Type) (stage.PlanStage, value.SlotID, error) {

	fieldSlot := c.slot()
	from = stage.NewProject(from, map[value.SlotID]expr.Expr{
		fieldSlot: expr.NewGetField(expr.NewVariable(inputSlot), name),
	}, c.id())

	var inner stage.PlanStage = stage.NewLimitOne(c.id())
	if projType == Inclusion && !containsComputed(level) {
		inner = stage.NewConstFilter(inner,
			expr.NewIsObject(expr.NewVariable(fieldSlot)), c.id())
	}
	inner, innerResult, err := c.buildLevel(inner, fieldSlot, level, projType)
	if err != nil {
		return nil, 0, err
	}

	outSlot := c.slot()
	from = stage.NewTraverse(from, inner, fieldSlot, outSlot, innerResult,
		0 /*unbounded depth*/, nil, c.id())
	return from, outSlot, nil
}

// buildElemMatch lowers one $elemMatch field: traverse the array one level
// deep, keep the first element satisfying the match, and drop the field when
// the input is not an array or nothing matched.
func (c *Compiler) buildElemMatch(from stage.PlanStage, inputSlot value.SlotID,
	name string, n *ElemMatchNode) (stage.PlanStage, value.SlotID, error) {

	fieldSlot := c.slot()
	arrFlagSlot := c.slot()
	from = stage.NewProject(from, map[value.SlotID]expr.Expr{
		fieldSlot: expr.NewGetField(expr.NewVariable(inputSlot), name),
	}, c.id())
	from = stage.NewProject(from, map[value.SlotID]expr.Expr{
		arrFlagSlot: expr.NewIsArray(expr.NewVariable(fieldSlot)),
	}, c.id())

	// The inner subtree only runs while traversing an actual array; the
	// match predicate then sees one element at a time through fieldSlot.
	var inner stage.PlanStage = stage.NewLimitOne(c.id())
	inner = stage.NewConstFilter(inner, expr.NewVariable(arrFlagSlot), c.id())
	inner = stage.NewFilter(inner,
		n.Match.Predicate(expr.NewVariable(fieldSlot)), c.id())
	elemSlot := c.slot()
	inner = stage.NewProject(inner, map[value.SlotID]expr.Expr{
		elemSlot: expr.NewVariable(fieldSlot),
	}, c.id())

	matchedSlot := c.slot()
	from = stage.NewTraverse(from, inner, fieldSlot, matchedSlot, elemSlot,
		1, expr.NewConstant(value.NewBool(true)), c.id())

	resultSlot := c.slot()
	from = stage.NewProject(from, map[value.SlotID]expr.Expr{
		resultSlot: expr.NewIf(
			expr.NewIsArrayEmpty(expr.NewVariable(matchedSlot)),
			expr.NewConstant(value.Nothing()),
			expr.NewVariable(matchedSlot)),
	}, c.id())
	return from, resultSlot, nil
}

func containsComputed(level *PathNode) bool {
	for _, child := range level.Children {
		switch n := child.(type) {
		case *ExpressionNode:
			return true
		case *PathNode:
			if containsComputed(n) {
				return true
			}
		}
	}
	return false
}

func containsSlice(level *PathNode) bool {
	for _, child := range level.Children {
		switch n := child.(type) {
		case *SliceNode:
			return true
		case *PathNode:
			if containsSlice(n) {
				return true
			}
		}
	}
	return false
}

type positionalPath struct {
	path []string
	node *PositionalNode
}

func collectPositionalPaths(level *PathNode) []positionalPath {
	var out []positionalPath
	for i, child := range level.Children {
		switch n := child.(type) {
		case *PositionalNode:
			out = append(out, positionalPath{path: []string{level.Names[i]}, node: n})
		case *PathNode:
			for _, p := range collectPositionalPaths(n) {
				p.path = append([]string{level.Names[i]}, p.path...)
				out = append(out, p)
			}
		}
	}
	return out
}
