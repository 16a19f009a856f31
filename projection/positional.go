package projection

import (
	"github.com/pallasdb/pallas/common"
	"github.com/pallasdb/pallas/expr"
	"github.com/pallasdb/pallas/stage"
	"github.com/pallasdb/pallas/value"
)

// The positional pass rewrites the general pass's output so that the array
// on the positional path keeps only the element whose index the query match
// recorded. It walks the path one segment per correlated subtree, innermost
// segment built first:
//
//   - an array value is reduced to [element-at-index] right at that segment,
//   - a document value recurses into the next segment and is rebuilt with
//     that one field replaced,
//   - any other value passes through unchanged, so a scalar on the path
//     leaves the document as it was.
//
// The match index itself is computed on the pre-image, since the general
// pass may already have reshaped the array's elements.

// buildPositional stacks the positional rewrite onto the post-image plan.
func (c *Compiler) buildPositional(from stage.PlanStage, preImageSlot, postImageSlot value.SlotID,
	path []string, match MatchExpression) (stage.PlanStage, value.SlotID, error) {

	indexExpr, indexable := c.positionalIndexExpr(preImageSlot, path, match)
	indexSlot := c.slot()
	from = stage.NewProject(from,
		map[value.SlotID]expr.Expr{indexSlot: indexExpr}, c.id())

	seg, segSlot, err := c.buildPositionalSegment(path, 0, postImageSlot, indexSlot, indexable)
	if err != nil {
		return nil, 0, err
	}
	from = stage.NewLoopJoin(from, seg,
		[]value.SlotID{postImageSlot},
		[]value.SlotID{postImageSlot, indexSlot},
		nil, c.id())

	resultSlot := c.slot()
	rootSlot := postImageSlot
	from = stage.NewMakeObj(from, resultSlot, &rootSlot, stage.FieldBehaviorDrop,
		nil, []string{path[0]}, []value.SlotID{segSlot},
		false /*forceNewObject*/, true /*returnOldObject*/, c.Output, c.id())
	return from, resultSlot, nil
}

// buildPositionalSegment builds the correlated subtree computing the
// rewritten value of path[i] within the document held by docSlot.
func (c *Compiler) buildPositionalSegment(path []string, i int,
	docSlot, indexSlot value.SlotID, indexable bool) (stage.PlanStage, value.SlotID, error) {

	fieldSlot := c.slot()
	outer := stage.NewProject(stage.NewLimitOne(c.id()), map[value.SlotID]expr.Expr{
		fieldSlot: expr.NewGetField(expr.NewVariable(docSlot), path[i]),
	}, c.id())
	isLast := i == len(path)-1

	var applyExpr expr.Expr
	if indexable {
		applyExpr = expr.NewApplyPositional(
			expr.NewVariable(fieldSlot), expr.NewVariable(indexSlot))
	} else {
		applyExpr = expr.NewFail(common.EvalError,
			"positional projection requires a single comparison predicate on the array")
	}
	applySlot := c.slot()
	applyStage := stage.NewProject(stage.NewLimitOne(c.id()),
		map[value.SlotID]expr.Expr{applySlot: applyExpr}, c.id())

	var thenStage stage.PlanStage
	var thenSlot value.SlotID
	if isLast {
		thenStage, thenSlot = applyStage, applySlot
	} else {
		inner, innerSlot, err := c.buildPositionalSegment(path, i+1, fieldSlot, indexSlot, indexable)
		if err != nil {
			return nil, 0, err
		}
		newDocSlot := c.slot()
		rootSlot := fieldSlot
		rewritten := stage.NewMakeObj(inner, newDocSlot, &rootSlot, stage.FieldBehaviorDrop,
			nil, []string{path[i+1]}, []value.SlotID{innerSlot},
			false, false, c.Output, c.id())

		valSlot := c.slot()
		thenStage = stage.NewBranch(expr.NewIsArray(expr.NewVariable(fieldSlot)),
			applyStage, rewritten,
			[]value.SlotID{applySlot}, []value.SlotID{newDocSlot}, []value.SlotID{valSlot},
			c.id())
		thenSlot = valSlot
	}

	// A value the rewrite cannot descend into passes through untouched. For a
	// missing field this is Nothing, which leaves the field absent upstream.
	passSlot := c.slot()
	elseStage := stage.NewProject(stage.NewLimitOne(c.id()), map[value.SlotID]expr.Expr{
		passSlot: expr.NewVariable(fieldSlot),
	}, c.id())

	fieldVar := func() expr.Expr { return expr.NewVariable(fieldSlot) }
	var applies expr.Expr = expr.NewIsArray(fieldVar())
	if !isLast {
		applies = expr.NewOr(applies, expr.NewIsObject(fieldVar()))
	}
	cond := expr.NewAnd(expr.NewExists(fieldVar()), applies)

	resultSlot := c.slot()
	inner := stage.NewBranch(cond, thenStage, elseStage,
		[]value.SlotID{thenSlot}, []value.SlotID{passSlot}, []value.SlotID{resultSlot},
		c.id())

	seg := stage.NewLoopJoin(outer, inner, nil,
		[]value.SlotID{fieldSlot}, nil, c.id())
	return seg, resultSlot, nil
}

// positionalIndexExpr derives the expression computing the matched element's
// index from the query predicate. Only a single comparison can be tracked;
// anything else leaves the positional operator without an index and the
// rewrite fails if it ever reaches an array.
func (c *Compiler) positionalIndexExpr(preImageSlot value.SlotID,
	projPath []string, match MatchExpression) (expr.Expr, bool) {

	cmp, ok := match.(*ComparisonMatch)
	if !ok {
		return expr.NewConstant(value.Nothing()), false
	}
	arrayExpr := expr.Expr(expr.NewVariable(preImageSlot))
	for _, seg := range projPath {
		arrayExpr = expr.NewGetField(arrayExpr, seg)
	}
	elemPath := cmp.Path
	if len(cmp.Path) >= len(projPath) && pathHasPrefix(cmp.Path, projPath) {
		elemPath = cmp.Path[len(projPath):]
	}
	return expr.NewFirstMatchIndex(arrayExpr, elemPath, cmp.Op, cmp.Operand), true
}

func pathHasPrefix(path, prefix []string) bool {
	for i, seg := range prefix {
		if path[i] != seg {
			return false
		}
	}
	return true
}
