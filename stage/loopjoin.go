package stage

import (
	"fmt"

	"github.com/pallasdb/pallas/expr"
	"github.com/pallasdb/pallas/value"
)

// LoopJoinStage is a nested-loop join: for every row of the outer child the
// inner child is reopened and drained. The inner child may read the listed
// correlated slots from the current outer row. An optional predicate filters
// the joined rows.
type LoopJoinStage struct {
	stageBase
	outer PlanStage
	inner PlanStage

	outerProjects []value.SlotID
	correlated    []value.SlotID
	predicate     expr.Expr

	outerAccessors map[value.SlotID]value.SlotAccessor
	outerAdvanced  bool
	innerOpened    bool
}

func NewLoopJoin(outer, inner PlanStage, outerProjects, correlated []value.SlotID,
	predicate expr.Expr, nodeID int) *LoopJoinStage {

	return &LoopJoinStage{
		stageBase:     newStageBase("nlj", nodeID),
		outer:         outer,
		inner:         inner,
		outerProjects: outerProjects,
		correlated:    correlated,
		predicate:     predicate,
	}
}

func (s *LoopJoinStage) Prepare(ctx *PrepareContext) error {
	s.markPrepared()
	if err := s.outer.Prepare(ctx); err != nil {
		return err
	}
	resolve := func(slot value.SlotID) (value.SlotAccessor, error) {
		if acc, ok := s.outer.GetAccessor(slot); ok {
			return acc, nil
		}
		return ctx.Resolve(slot)
	}
	s.outerAccessors = make(map[value.SlotID]value.SlotAccessor, len(s.outerProjects))
	for _, slot := range s.outerProjects {
		acc, err := resolve(slot)
		if err != nil {
			return err
		}
		s.outerAccessors[slot] = acc
	}

	overrides := make(map[value.SlotID]value.SlotAccessor, len(s.correlated))
	for _, slot := range s.correlated {
		acc, err := resolve(slot)
		if err != nil {
			return err
		}
		overrides[slot] = acc
	}
	ctx.pushFrame(overrides, nil)
	defer ctx.popFrame()
	if err := s.inner.Prepare(ctx); err != nil {
		return err
	}
	if s.predicate != nil {
		ctx.pushFrame(nil, s.inner)
		defer ctx.popFrame()
		return s.predicate.Prepare(ctx)
	}
	return nil
}

func (s *LoopJoinStage) GetAccessor(slot value.SlotID) (value.SlotAccessor, bool) {
	if acc, ok := s.outerAccessors[slot]; ok {
		return acc, true
	}
	return s.inner.GetAccessor(slot)
}

func (s *LoopJoinStage) Open(reOpen bool) error {
	if err := s.outer.Open(reOpen); err != nil {
		return err
	}
	s.outerAdvanced = false
	s.innerOpened = false
	s.trackOpen()
	return nil
}

func (s *LoopJoinStage) GetNext() (PlanState, error) {
	for {
		if !s.outerAdvanced {
			st, err := s.outer.GetNext()
			if err != nil || st == EOF {
				return s.trackResult(EOF), err
			}
			s.outerAdvanced = true
			if err := s.inner.Open(s.innerOpened); err != nil {
				return s.trackResult(EOF), err
			}
			s.innerOpened = true
		}
		st, err := s.inner.GetNext()
		if err != nil {
			return s.trackResult(EOF), err
		}
		if st == EOF {
			s.outerAdvanced = false
			continue
		}
		if s.predicate != nil {
			v, err := s.predicate.Eval()
			if err != nil {
				return s.trackResult(EOF), err
			}
			if v.Tag() != value.TagBoolean || !v.Boolean() {
				continue
			}
		}
		return s.trackResult(Advanced), nil
	}
}

func (s *LoopJoinStage) Close() error {
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

func (s *LoopJoinStage) Children() []PlanStage {
	return []PlanStage{s.outer, s.inner}
}

func (s *LoopJoinStage) Clone() PlanStage {
	var pred expr.Expr
	if s.predicate != nil {
		pred = s.predicate.Clone()
	}
	return NewLoopJoin(s.outer.Clone(), s.inner.Clone(),
		append([]value.SlotID(nil), s.outerProjects...),
		append([]value.SlotID(nil), s.correlated...),
		pred, s.nodeID)
}

func (s *LoopJoinStage) DoSaveState() {}

func (s *LoopJoinStage) DoRestoreState() error { return nil }

func (s *LoopJoinStage) DebugExplain() *Explain {
	d := map[string]string{
		"outerProjects": fmt.Sprint(s.outerProjects),
		"correlated":    fmt.Sprint(s.correlated),
	}
	if s.predicate != nil {
		d["predicate"] = s.predicate.String()
	}
	return &Explain{Detail: d}
}
