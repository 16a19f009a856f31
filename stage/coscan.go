package stage

import "github.com/pallasdb/pallas/value"

// CoScanStage produces an unbounded stream of empty rows. It owns no slots;
// it exists to drive the stages stacked on top of it, most commonly under a
// limit-1 to evaluate expressions exactly once.
type CoScanStage struct {
	stageBase
	open bool
}

func NewCoScan(nodeID int) *CoScanStage {
	return &CoScanStage{stageBase: newStageBase("coscan", nodeID)}
}

func (s *CoScanStage) Prepare(ctx *PrepareContext) error {
	s.markPrepared()
	s.interrupter = ctx.Interrupter
	return nil
}

func (s *CoScanStage) GetAccessor(slot value.SlotID) (value.SlotAccessor, bool) {
	return nil, false
}

func (s *CoScanStage) Open(reOpen bool) error {
	s.trackOpen()
	s.open = true
	return nil
}

func (s *CoScanStage) GetNext() (PlanState, error) {
	if err := s.checkInterrupt(); err != nil {
		return EOF, err
	}
	return s.trackResult(Advanced), nil
}

func (s *CoScanStage) Close() error {
	s.trackClose()
	s.open = false
	return nil
}

func (s *CoScanStage) Children() []PlanStage { return nil }

func (s *CoScanStage) Clone() PlanStage {
	return NewCoScan(s.nodeID)
}

func (s *CoScanStage) DoSaveState() {}

func (s *CoScanStage) DoRestoreState() error { return nil }

func (s *CoScanStage) DebugExplain() *Explain {
	return &Explain{}
}
