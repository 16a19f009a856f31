package stage

import (
	"fmt"

	"github.com/pallasdb/pallas/value"
)

// LimitStage passes through at most Limit rows from its child, after
// discarding the first Skip.
type LimitStage struct {
	stageBase
	child PlanStage
	limit int64
	skip  int64

	seen int64
}

func NewLimit(child PlanStage, limit, skip int64, nodeID int) *LimitStage {
	return &LimitStage{
		stageBase: newStageBase("limit", nodeID),
		child:     child,
		limit:     limit,
		skip:      skip,
	}
}

// NewLimitOne stacks limit-1 over coscan, the idiom for evaluating a
// projection exactly once per outer row.
func NewLimitOne(nodeID int) *LimitStage {
	return NewLimit(NewCoScan(nodeID), 1, 0, nodeID)
}

func (s *LimitStage) Prepare(ctx *PrepareContext) error {
	s.markPrepared()
	return s.child.Prepare(ctx)
}

func (s *LimitStage) GetAccessor(slot value.SlotID) (value.SlotAccessor, bool) {
	return s.child.GetAccessor(slot)
}

func (s *LimitStage) Open(reOpen bool) error {
	if err := s.child.Open(reOpen); err != nil {
		return err
	}
	s.trackOpen()
	s.seen = 0
	return nil
}

func (s *LimitStage) GetNext() (PlanState, error) {
	for s.seen < s.skip {
		st, err := s.child.GetNext()
		if err != nil || st == EOF {
			return s.trackResult(EOF), err
		}
		s.seen++
	}
	if s.seen >= s.skip+s.limit {
		return s.trackResult(EOF), nil
	}
	st, err := s.child.GetNext()
	if err != nil || st == EOF {
		return s.trackResult(EOF), err
	}
	s.seen++
	return s.trackResult(Advanced), nil
}

func (s *LimitStage) Close() error {
	err := s.child.Close()
	s.trackClose()
	return err
}

func (s *LimitStage) Children() []PlanStage { return []PlanStage{s.child} }

func (s *LimitStage) Clone() PlanStage {
	return NewLimit(s.child.Clone(), s.limit, s.skip, s.nodeID)
}

func (s *LimitStage) DoSaveState() {}

func (s *LimitStage) DoRestoreState() error { return nil }

func (s *LimitStage) DebugExplain() *Explain {
	d := map[string]string{"limit": fmt.Sprintf("%d", s.limit)}
	if s.skip > 0 {
		d["skip"] = fmt.Sprintf("%d", s.skip)
	}
	return &Explain{Detail: d}
}
