package stage

import (
	"fmt"

	"github.com/pallasdb/pallas/common"
	"github.com/pallasdb/pallas/expr"
	"github.com/pallasdb/pallas/value"
)

// TraverseStage applies its inner subtree to a value from the outer row,
// element by element when that value is an array. For every outer row it
// produces one output value:
//
//   - array input: a new array holding, in order, the inner subtree's result
//     for each element. Elements on which the inner subtree produces no row
//     are dropped. Nested arrays are recursed into while the depth bound
//     allows, preserving the nesting in the output.
//   - any other input: the inner subtree's result for the value itself, or
//     Nothing when the inner subtree produces no row.
//
// The inner subtree reads the current element through the inField slot and
// may read any other outer slot as correlated. After each produced element
// the optional early-exit expression is evaluated against the inner row;
// boolean true stops the traversal, keeping what was accumulated so far.
type TraverseStage struct {
	stageBase
	outer PlanStage
	inner PlanStage

	inField       value.SlotID
	outField      value.SlotID
	outFieldInner value.SlotID

	// maxDepth bounds recursion into nested arrays; 0 means unbounded.
	maxDepth  int
	earlyExit expr.Expr

	inAccessor  value.SlotAccessor
	innerResult value.SlotAccessor
	elem        *value.OwnedAccessor
	out         *value.OwnedAccessor
	innerOpened bool
}

func NewTraverse(outer, inner PlanStage, inField, outField, outFieldInner value.SlotID,
	maxDepth int, earlyExit expr.Expr, nodeID int) *TraverseStage {

	return &TraverseStage{
		stageBase:     newStageBase("traverse", nodeID),
		outer:         outer,
		inner:         inner,
		inField:       inField,
		outField:      outField,
		outFieldInner: outFieldInner,
		maxDepth:      maxDepth,
		earlyExit:     earlyExit,
		elem:          &value.OwnedAccessor{},
		out:           &value.OwnedAccessor{},
	}
}

func (s *TraverseStage) Prepare(ctx *PrepareContext) error {
	s.markPrepared()
	s.interrupter = ctx.Interrupter
	if err := s.outer.Prepare(ctx); err != nil {
		return err
	}
	acc, ok := s.outer.GetAccessor(s.inField)
	if !ok {
		var err error
		if acc, err = ctx.Resolve(s.inField); err != nil {
			return common.Errorf(common.SlotNotFoundError, "traverse: input slot %d", s.inField)
		}
	}
	s.inAccessor = acc

	// The inner subtree sees the current element under inField and falls
	// back to the outer row for everything else.
	ctx.pushFrame(map[value.SlotID]value.SlotAccessor{s.inField: s.elem}, s.outer)
	defer ctx.popFrame()
	if err := s.inner.Prepare(ctx); err != nil {
		return err
	}
	acc, ok = s.inner.GetAccessor(s.outFieldInner)
	if !ok {
		return common.Errorf(common.SlotNotFoundError, "traverse: inner result slot %d", s.outFieldInner)
	}
	s.innerResult = acc

	if s.earlyExit != nil {
		ctx.pushFrame(nil, s.inner)
		defer ctx.popFrame()
		return s.earlyExit.Prepare(ctx)
	}
	return nil
}

func (s *TraverseStage) GetAccessor(slot value.SlotID) (value.SlotAccessor, bool) {
	if slot == s.outField {
		return s.out, true
	}
	return s.outer.GetAccessor(slot)
}

func (s *TraverseStage) Open(reOpen bool) error {
	if err := s.outer.Open(reOpen); err != nil {
		return err
	}
	s.innerOpened = s.innerOpened && reOpen
	s.trackOpen()
	return nil
}

func (s *TraverseStage) GetNext() (PlanState, error) {
	st, err := s.outer.GetNext()
	if err != nil || st == EOF {
		return s.trackResult(EOF), err
	}
	if err := s.traverseValue(); err != nil {
		return s.trackResult(EOF), err
	}
	return s.trackResult(Advanced), nil
}

func (s *TraverseStage) traverseValue() error {
	in := s.inAccessor.View()
	if !in.IsArray() {
		produced, v, _, err := s.runInner(in)
		if err != nil {
			return err
		}
		if !produced {
			s.out.Reset(value.Nothing())
			return nil
		}
		s.out.Reset(v)
		return nil
	}

	result := value.NewArray()
	if _, err := s.traverseArray(result, in, 1); err != nil {
		return err
	}
	s.out.Reset(value.NewArrayValue(result))
	return nil
}

// traverseArray appends the per-element results for one array level into out.
// It reports whether the early-exit expression fired.
func (s *TraverseStage) traverseArray(out *value.Array, arr value.Value, level int) (bool, error) {
	elems, ok := value.ArrayElements(arr)
	if !ok {
		return false, common.Errorf(common.CorruptDocumentError, "malformed array")
	}
	for _, el := range elems {
		if err := s.checkInterrupt(); err != nil {
			return false, err
		}
		if el.IsArray() && (s.maxDepth == 0 || level < s.maxDepth) {
			nested := value.NewArray()
			stop, err := s.traverseArray(nested, el, level+1)
			if err != nil {
				return false, err
			}
			out.Push(value.NewArrayValue(nested))
			if stop {
				return true, nil
			}
			continue
		}
		produced, v, stop, err := s.runInner(el)
		if err != nil {
			return false, err
		}
		if produced {
			out.Push(v)
		}
		if stop {
			return true, nil
		}
	}
	return false, nil
}

// runInner executes the inner subtree over a single value. It returns the
// deep-copied result (if the subtree produced a row) and whether the
// early-exit expression fired.
func (s *TraverseStage) runInner(in value.Value) (produced bool, result value.Value, stop bool, err error) {
	s.elem.Reset(in)
	if err := s.inner.Open(s.innerOpened); err != nil {
		return false, value.Nothing(), false, err
	}
	s.innerOpened = true

	st, err := s.inner.GetNext()
	if err != nil {
		return false, value.Nothing(), false, err
	}
	if st == EOF {
		return false, value.Nothing(), false, nil
	}
	result = s.innerResult.View().Copy()

	if s.earlyExit != nil {
		v, err := s.earlyExit.Eval()
		if err != nil {
			return false, value.Nothing(), false, err
		}
		stop = v.Tag() == value.TagBoolean && v.Boolean()
	}
	return true, result, stop, nil
}

func (s *TraverseStage) Close() error {
	var err error
	if s.innerOpened {
		err = s.inner.Close()
		s.innerOpened = false
	}
	if cerr := s.outer.Close(); err == nil {
		err = cerr
	}
	s.trackClose()
	return err
}

func (s *TraverseStage) Children() []PlanStage {
	return []PlanStage{s.outer, s.inner}
}

func (s *TraverseStage) Clone() PlanStage {
	var early expr.Expr
	if s.earlyExit != nil {
		early = s.earlyExit.Clone()
	}
	return NewTraverse(s.outer.Clone(), s.inner.Clone(),
		s.inField, s.outField, s.outFieldInner, s.maxDepth, early, s.nodeID)
}

func (s *TraverseStage) DoSaveState() {
	s.elem.MakeOwned()
	s.out.MakeOwned()
}

func (s *TraverseStage) DoRestoreState() error { return nil }

func (s *TraverseStage) DebugExplain() *Explain {
	d := map[string]string{
		"inputSlot":  fmt.Sprintf("%d", s.inField),
		"outputSlot": fmt.Sprintf("%d", s.outField),
		"innerSlot":  fmt.Sprintf("%d", s.outFieldInner),
	}
	if s.maxDepth > 0 {
		d["maxDepth"] = fmt.Sprintf("%d", s.maxDepth)
	}
	if s.earlyExit != nil {
		d["earlyExit"] = s.earlyExit.String()
	}
	return &Explain{Detail: d}
}
