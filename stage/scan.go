package stage

import (
	"fmt"

	"github.com/pallasdb/pallas/store"
	"github.com/pallasdb/pallas/value"
)

// ScanStage streams a collection in key order, exposing each record's
// document in recordSlot and, when keySlot is set, its key alongside. The
// document slot holds a view into collection memory; a save makes it owned
// and detaches the cursor so the collection is free to change while the plan
// is yielded.
type ScanStage struct {
	stageBase
	coll *store.Collection

	recordSlot value.SlotID
	keySlot    *value.SlotID

	record *value.OwnedAccessor
	key    *value.OwnedAccessor
	cursor *store.Cursor
}

func NewScan(coll *store.Collection, recordSlot value.SlotID, keySlot *value.SlotID, nodeID int) *ScanStage {
	return &ScanStage{
		stageBase:  newStageBase("scan", nodeID),
		coll:       coll,
		recordSlot: recordSlot,
		keySlot:    keySlot,
		record:     &value.OwnedAccessor{},
		key:        &value.OwnedAccessor{},
	}
}

func (s *ScanStage) Prepare(ctx *PrepareContext) error {
	s.markPrepared()
	s.interrupter = ctx.Interrupter
	return nil
}

func (s *ScanStage) GetAccessor(slot value.SlotID) (value.SlotAccessor, bool) {
	if slot == s.recordSlot {
		return s.record, true
	}
	if s.keySlot != nil && slot == *s.keySlot {
		return s.key, true
	}
	return nil, false
}

func (s *ScanStage) Open(reOpen bool) error {
	if s.cursor != nil {
		s.cursor.Close()
	}
	s.cursor = s.coll.OpenCursor()
	s.trackOpen()
	return nil
}

func (s *ScanStage) GetNext() (PlanState, error) {
	if err := s.checkInterrupt(); err != nil {
		return s.trackResult(EOF), err
	}
	rec, ok := s.cursor.Next()
	if !ok {
		return s.trackResult(EOF), nil
	}
	s.record.Reset(value.NewRawDocument(rec.Doc))
	if s.keySlot != nil {
		s.key.Reset(value.NewString(rec.Key))
	}
	return s.trackResult(Advanced), nil
}

func (s *ScanStage) Close() error {
	if s.cursor != nil {
		s.cursor.Close()
		s.cursor = nil
	}
	s.trackClose()
	return nil
}

func (s *ScanStage) Children() []PlanStage { return nil }

func (s *ScanStage) Clone() PlanStage {
	var keySlot *value.SlotID
	if s.keySlot != nil {
		slot := *s.keySlot
		keySlot = &slot
	}
	return NewScan(s.coll, s.recordSlot, keySlot, s.nodeID)
}

func (s *ScanStage) DoSaveState() {
	s.record.MakeOwned()
	if s.cursor != nil {
		s.cursor.Detach()
	}
}

func (s *ScanStage) DoRestoreState() error {
	if s.cursor == nil {
		return nil
	}
	return s.cursor.Resume()
}

func (s *ScanStage) DebugExplain() *Explain {
	d := map[string]string{
		"collection": s.coll.Name(),
		"recordSlot": fmt.Sprintf("%d", s.recordSlot),
	}
	if s.keySlot != nil {
		d["keySlot"] = fmt.Sprintf("%d", *s.keySlot)
	}
	return &Explain{Detail: d}
}
