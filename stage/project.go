package stage

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pallasdb/pallas/expr"
	"github.com/pallasdb/pallas/value"
)

// ProjectStage evaluates one expression per output slot for every row of its
// child. Evaluation order over the slots is deterministic (ascending slot id)
// so expressions with side effects behave repeatably.
type ProjectStage struct {
	stageBase
	child PlanStage

	projections map[value.SlotID]expr.Expr
	order       []value.SlotID
	outputs     map[value.SlotID]*value.OwnedAccessor
}

func NewProject(child PlanStage, projections map[value.SlotID]expr.Expr, nodeID int) *ProjectStage {
	order := make([]value.SlotID, 0, len(projections))
	for slot := range projections {
		order = append(order, slot)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	outputs := make(map[value.SlotID]*value.OwnedAccessor, len(projections))
	for slot := range projections {
		outputs[slot] = &value.OwnedAccessor{}
	}
	return &ProjectStage{
		stageBase:   newStageBase("project", nodeID),
		child:       child,
		projections: projections,
		order:       order,
		outputs:     outputs,
	}
}

func (s *ProjectStage) Prepare(ctx *PrepareContext) error {
	s.markPrepared()
	if err := s.child.Prepare(ctx); err != nil {
		return err
	}
	ctx.pushFrame(nil, s.child)
	defer ctx.popFrame()
	for _, slot := range s.order {
		if err := s.projections[slot].Prepare(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *ProjectStage) GetAccessor(slot value.SlotID) (value.SlotAccessor, bool) {
	if acc, ok := s.outputs[slot]; ok {
		return acc, true
	}
	return s.child.GetAccessor(slot)
}

func (s *ProjectStage) Open(reOpen bool) error {
	if err := s.child.Open(reOpen); err != nil {
		return err
	}
	s.trackOpen()
	return nil
}

func (s *ProjectStage) GetNext() (PlanState, error) {
	st, err := s.child.GetNext()
	if err != nil || st == EOF {
		return s.trackResult(EOF), err
	}
	for _, slot := range s.order {
		v, err := s.projections[slot].Eval()
		if err != nil {
			return s.trackResult(EOF), err
		}
		s.outputs[slot].Reset(v)
	}
	return s.trackResult(Advanced), nil
}

func (s *ProjectStage) Close() error {
	err := s.child.Close()
	s.trackClose()
	return err
}

func (s *ProjectStage) Children() []PlanStage { return []PlanStage{s.child} }

func (s *ProjectStage) Clone() PlanStage {
	projections := make(map[value.SlotID]expr.Expr, len(s.projections))
	for slot, e := range s.projections {
		projections[slot] = e.Clone()
	}
	return NewProject(s.child.Clone(), projections, s.nodeID)
}

func (s *ProjectStage) DoSaveState() {
	for _, acc := range s.outputs {
		acc.MakeOwned()
	}
}

func (s *ProjectStage) DoRestoreState() error { return nil }

func (s *ProjectStage) DebugExplain() *Explain {
	var sb strings.Builder
	for i, slot := range s.order {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.FormatInt(int64(slot), 10))
		sb.WriteString(" = ")
		sb.WriteString(s.projections[slot].String())
	}
	return &Explain{Detail: map[string]string{"projections": sb.String()}}
}
