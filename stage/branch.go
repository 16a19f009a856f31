package stage

import (
	"fmt"
	"strings"

	"github.com/pallasdb/pallas/common"
	"github.com/pallasdb/pallas/expr"
	"github.com/pallasdb/pallas/value"
)

// BranchStage evaluates its condition once per Open and then streams rows
// from exactly one of its two children. Each output slot is backed by a pair
// of input slots, one per branch; a switch accessor forwards reads to
// whichever branch is live.
type BranchStage struct {
	stageBase
	condition expr.Expr
	thenStage PlanStage
	elseStage PlanStage

	thenSlots   []value.SlotID
	elseSlots   []value.SlotID
	outputSlots []value.SlotID

	outputs map[value.SlotID]*value.SwitchAccessor
	active  PlanStage
}

func NewBranch(condition expr.Expr, thenStage, elseStage PlanStage,
	thenSlots, elseSlots, outputSlots []value.SlotID, nodeID int) *BranchStage {

	common.Assert(len(thenSlots) == len(outputSlots) && len(elseSlots) == len(outputSlots),
		"branch slot vectors must be the same length")
	return &BranchStage{
		stageBase:   newStageBase("branch", nodeID),
		condition:   condition,
		thenStage:   thenStage,
		elseStage:   elseStage,
		thenSlots:   thenSlots,
		elseSlots:   elseSlots,
		outputSlots: outputSlots,
	}
}

func (s *BranchStage) Prepare(ctx *PrepareContext) error {
	s.markPrepared()
	if err := s.condition.Prepare(ctx); err != nil {
		return err
	}
	if err := s.thenStage.Prepare(ctx); err != nil {
		return err
	}
	if err := s.elseStage.Prepare(ctx); err != nil {
		return err
	}
	s.outputs = make(map[value.SlotID]*value.SwitchAccessor, len(s.outputSlots))
	for i, out := range s.outputSlots {
		thenAcc, ok := s.thenStage.GetAccessor(s.thenSlots[i])
		if !ok {
			return common.Errorf(common.SlotNotFoundError, "branch: then slot %d", s.thenSlots[i])
		}
		elseAcc, ok := s.elseStage.GetAccessor(s.elseSlots[i])
		if !ok {
			return common.Errorf(common.SlotNotFoundError, "branch: else slot %d", s.elseSlots[i])
		}
		s.outputs[out] = value.NewSwitchAccessor(thenAcc, elseAcc)
	}
	return nil
}

func (s *BranchStage) GetAccessor(slot value.SlotID) (value.SlotAccessor, bool) {
	acc, ok := s.outputs[slot]
	if !ok {
		return nil, false
	}
	return acc, true
}

func (s *BranchStage) Open(reOpen bool) error {
	cond, err := s.condition.Eval()
	if err != nil {
		return err
	}
	takeThen := cond.Tag() == value.TagBoolean && cond.Boolean()

	// Close the previously live branch when a reopen switches sides.
	if reOpen && s.active != nil {
		prevThen := s.active == s.thenStage
		if prevThen != takeThen {
			if err := s.active.Close(); err != nil {
				return err
			}
			reOpen = false
		}
	} else {
		reOpen = false
	}

	if takeThen {
		s.active = s.thenStage
		for _, acc := range s.outputs {
			acc.SetIndex(0)
		}
	} else {
		s.active = s.elseStage
		for _, acc := range s.outputs {
			acc.SetIndex(1)
		}
	}
	if err := s.active.Open(reOpen); err != nil {
		return err
	}
	s.trackOpen()
	return nil
}

func (s *BranchStage) GetNext() (PlanState, error) {
	st, err := s.active.GetNext()
	if err != nil || st == EOF {
		return s.trackResult(EOF), err
	}
	return s.trackResult(Advanced), nil
}

func (s *BranchStage) Close() error {
	var err error
	if s.active != nil {
		err = s.active.Close()
		s.active = nil
	}
	s.trackClose()
	return err
}

func (s *BranchStage) Children() []PlanStage {
	return []PlanStage{s.thenStage, s.elseStage}
}

func (s *BranchStage) Clone() PlanStage {
	return NewBranch(s.condition.Clone(), s.thenStage.Clone(), s.elseStage.Clone(),
		append([]value.SlotID(nil), s.thenSlots...),
		append([]value.SlotID(nil), s.elseSlots...),
		append([]value.SlotID(nil), s.outputSlots...),
		s.nodeID)
}

func (s *BranchStage) DoSaveState() {}

func (s *BranchStage) DoRestoreState() error { return nil }

func (s *BranchStage) DebugExplain() *Explain {
	var sb strings.Builder
	for i, out := range s.outputSlots {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%d = [%d, %d]", out, s.thenSlots[i], s.elseSlots[i])
	}
	return &Explain{Detail: map[string]string{
		"condition": s.condition.String(),
		"outputs":   sb.String(),
	}}
}
