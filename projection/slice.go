package projection

import (
	"github.com/pallasdb/pallas/expr"
	"github.com/pallasdb/pallas/stage"
	"github.com/pallasdb/pallas/value"
)

// The slicing pass runs over the general pass's output document. It touches
// only the fields on a path to a $slice and leaves every other field alone,
// so it behaves like an exclusion regardless of the projection's polarity.
// Unlike the general pass it descends a single array level: a $slice below a
// nested path applies to documents and to elements of a directly enclosing
// array, never deeper.

func (c *Compiler) buildSliceLevel(from stage.PlanStage, inputSlot value.SlotID,
	level *PathNode) (stage.PlanStage, value.SlotID, error) {

	var projectFields []string
	var projectSlots []value.SlotID
	var err error

	for i, name := range level.Names {
		switch n := level.Children[i].(type) {
		case *SliceNode:
			fieldSlot := c.slot()
			from = stage.NewProject(from, map[value.SlotID]expr.Expr{
				fieldSlot: expr.NewGetField(expr.NewVariable(inputSlot), name),
			}, c.id())
			slicedSlot := c.slot()
			from = stage.NewProject(from, map[value.SlotID]expr.Expr{
				slicedSlot: expr.NewSlice(expr.NewVariable(fieldSlot), n.Limit, n.Skip),
			}, c.id())
			projectFields = append(projectFields, name)
			projectSlots = append(projectSlots, slicedSlot)
		case *PathNode:
			if !containsSlice(n) {
				continue
			}
			var slot value.SlotID
			from, slot, err = c.buildSliceNested(from, inputSlot, name, n)
			if err != nil {
				return nil, 0, err
			}
			projectFields = append(projectFields, name)
			projectSlots = append(projectSlots, slot)
		}
	}

	resultSlot := c.slot()
	rootSlot := inputSlot
	from = stage.NewMakeObj(from, resultSlot, &rootSlot, stage.FieldBehaviorDrop,
		nil, projectFields, projectSlots,
		false /*forceNewObject*/, false /*returnOldObject*/, c.Output, c.id())
	return from, resultSlot, nil
}

// buildSliceNested rewrites one field on the way to a deeper $slice. The
// rewrite applies to a document value directly and to the document elements
// of an array value; everything else passes through unchanged.
func (c *Compiler) buildSliceNested(from stage.PlanStage, inputSlot value.SlotID,
	name string, level *PathNode) (stage.PlanStage, value.SlotID, error) {

	fieldSlot := c.slot()
	from = stage.NewProject(from, map[value.SlotID]expr.Expr{
		fieldSlot: expr.NewGetField(expr.NewVariable(inputSlot), name),
	}, c.id())

	rewritten, rewrittenSlot, err := c.buildSliceLevel(stage.NewLimitOne(c.id()), fieldSlot, level)
	if err != nil {
		return nil, 0, err
	}
	identSlot := c.slot()
	passthrough := stage.NewProject(stage.NewLimitOne(c.id()), map[value.SlotID]expr.Expr{
		identSlot: expr.NewVariable(fieldSlot),
	}, c.id())

	valSlot := c.slot()
	inner := stage.NewBranch(expr.NewIsObject(expr.NewVariable(fieldSlot)),
		rewritten, passthrough,
		[]value.SlotID{rewrittenSlot}, []value.SlotID{identSlot}, []value.SlotID{valSlot},
		c.id())

	outSlot := c.slot()
	from = stage.NewTraverse(from, inner, fieldSlot, outSlot, valSlot,
		1, nil, c.id())
	return from, outSlot, nil
}
