package stage

import (
	"github.com/pallasdb/pallas/expr"
	"github.com/pallasdb/pallas/value"
)

// FilterStage passes through the rows of its child for which the predicate
// evaluates to true. Anything other than boolean true, including Nothing,
// filters the row out.
//
// A constant filter evaluates the predicate once per Open instead of once
// per row; a false constant predicate never opens the child at all, which
// lets a plan disable a whole subtree cheaply.
type FilterStage struct {
	stageBase
	child     PlanStage
	predicate expr.Expr
	constant  bool

	childOpen bool
}

func NewFilter(child PlanStage, predicate expr.Expr, nodeID int) *FilterStage {
	return &FilterStage{
		stageBase: newStageBase("filter", nodeID),
		child:     child,
		predicate: predicate,
	}
}

func NewConstFilter(child PlanStage, predicate expr.Expr, nodeID int) *FilterStage {
	s := NewFilter(child, predicate, nodeID)
	s.stats.StageType = "cfilter"
	s.constant = true
	return s
}

func (s *FilterStage) Prepare(ctx *PrepareContext) error {
	s.markPrepared()
	if err := s.child.Prepare(ctx); err != nil {
		return err
	}
	if s.constant {
		// A constant predicate may not read the child's slots; it sees
		// only outer bindings.
		return s.predicate.Prepare(ctx)
	}
	ctx.pushFrame(nil, s.child)
	defer ctx.popFrame()
	return s.predicate.Prepare(ctx)
}

func (s *FilterStage) GetAccessor(slot value.SlotID) (value.SlotAccessor, bool) {
	return s.child.GetAccessor(slot)
}

func (s *FilterStage) Open(reOpen bool) error {
	if s.constant {
		pass, err := s.evalPredicate()
		if err != nil {
			return err
		}
		if !pass {
			if s.childOpen {
				if err := s.child.Close(); err != nil {
					return err
				}
				s.childOpen = false
			}
			s.trackOpen()
			return nil
		}
	}
	if err := s.child.Open(reOpen && s.childOpen); err != nil {
		return err
	}
	s.childOpen = true
	s.trackOpen()
	return nil
}

func (s *FilterStage) GetNext() (PlanState, error) {
	if s.constant && !s.childOpen {
		return s.trackResult(EOF), nil
	}
	for {
		st, err := s.child.GetNext()
		if err != nil || st == EOF {
			return s.trackResult(EOF), err
		}
		if s.constant {
			return s.trackResult(Advanced), nil
		}
		pass, err := s.evalPredicate()
		if err != nil {
			return s.trackResult(EOF), err
		}
		if pass {
			return s.trackResult(Advanced), nil
		}
	}
}

func (s *FilterStage) evalPredicate() (bool, error) {
	v, err := s.predicate.Eval()
	if err != nil {
		return false, err
	}
	return v.Tag() == value.TagBoolean && v.Boolean(), nil
}

func (s *FilterStage) Close() error {
	var err error
	if s.childOpen {
		err = s.child.Close()
		s.childOpen = false
	}
	s.trackClose()
	return err
}

func (s *FilterStage) Children() []PlanStage { return []PlanStage{s.child} }

func (s *FilterStage) Clone() PlanStage {
	c := NewFilter(s.child.Clone(), s.predicate.Clone(), s.nodeID)
	c.constant = s.constant
	c.stats.StageType = s.stats.StageType
	return c
}

func (s *FilterStage) DoSaveState() {}

func (s *FilterStage) DoRestoreState() error { return nil }

func (s *FilterStage) DebugExplain() *Explain {
	return &Explain{Detail: map[string]string{"predicate": s.predicate.String()}}
}
