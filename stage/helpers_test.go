package stage

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"

	"github.com/pallasdb/pallas/value"
)

// rowsStage replays a fixed sequence of rows, one value per configured slot.
// It stands in for a real input subtree in stage tests.
type rowsStage struct {
	stageBase
	slots []value.SlotID
	rows  [][]value.Value

	idx  int
	accs map[value.SlotID]*value.OwnedAccessor
}

func newRowsStage(slots []value.SlotID, rows [][]value.Value) *rowsStage {
	accs := make(map[value.SlotID]*value.OwnedAccessor, len(slots))
	for _, s := range slots {
		accs[s] = &value.OwnedAccessor{}
	}
	return &rowsStage{
		stageBase: newStageBase("rows", 0),
		slots:     slots,
		rows:      rows,
		accs:      accs,
	}
}

func (s *rowsStage) Prepare(ctx *PrepareContext) error {
	s.interrupter = ctx.Interrupter
	return nil
}

func (s *rowsStage) GetAccessor(slot value.SlotID) (value.SlotAccessor, bool) {
	acc, ok := s.accs[slot]
	if !ok {
		return nil, false
	}
	return acc, true
}

func (s *rowsStage) Open(reOpen bool) error {
	s.idx = 0
	s.trackOpen()
	return nil
}

func (s *rowsStage) GetNext() (PlanState, error) {
	if err := s.checkInterrupt(); err != nil {
		return s.trackResult(EOF), err
	}
	if s.idx >= len(s.rows) {
		return s.trackResult(EOF), nil
	}
	row := s.rows[s.idx]
	for i, slot := range s.slots {
		s.accs[slot].Reset(row[i])
	}
	s.idx++
	return s.trackResult(Advanced), nil
}

func (s *rowsStage) Close() error {
	s.trackClose()
	return nil
}

func (s *rowsStage) Children() []PlanStage { return nil }

func (s *rowsStage) Clone() PlanStage {
	return newRowsStage(s.slots, s.rows)
}

func (s *rowsStage) DoSaveState() {
	for _, acc := range s.accs {
		acc.MakeOwned()
	}
}

func (s *rowsStage) DoRestoreState() error { return nil }

func (s *rowsStage) DebugExplain() *Explain { return &Explain{} }

// drainSlot runs a plan to completion, copying the slot's value per row.
func drainSlot(t *testing.T, plan PlanStage, slot value.SlotID) []value.Value {
	t.Helper()
	out, err := tryDrainSlot(plan, slot)
	require.NoError(t, err)
	return out
}

func tryDrainSlot(plan PlanStage, slot value.SlotID) ([]value.Value, error) {
	ctx := NewPrepareContext()
	if err := plan.Prepare(ctx); err != nil {
		return nil, err
	}
	acc, ok := plan.GetAccessor(slot)
	if !ok {
		panic("slot not exposed by plan")
	}
	if err := plan.Open(false); err != nil {
		return nil, err
	}
	defer plan.Close()
	var out []value.Value
	for {
		st, err := plan.GetNext()
		if err != nil {
			return nil, err
		}
		if st == EOF {
			return out, nil
		}
		out = append(out, acc.View().Copy())
	}
}

func makeRawDoc(t *testing.T, build func(dst []byte) []byte) value.Value {
	t.Helper()
	idx, dst := bsoncore.AppendDocumentStart(nil)
	dst = build(dst)
	doc, err := bsoncore.AppendDocumentEnd(dst, idx)
	require.NoError(t, err)
	return value.NewRawDocument(doc)
}

func makeObjDoc(fields ...any) value.Value {
	obj := value.NewObject()
	for i := 0; i < len(fields); i += 2 {
		obj.Push(fields[i].(string), fields[i+1].(value.Value))
	}
	return value.NewObjectValue(obj)
}

func makeArr(vals ...value.Value) value.Value {
	arr := value.NewArray()
	for _, v := range vals {
		arr.Push(v)
	}
	return value.NewArrayValue(arr)
}

func fieldOf(t *testing.T, doc value.Value, name string) value.Value {
	t.Helper()
	v, err := value.LookupField(doc, name)
	require.NoError(t, err)
	return v
}

func fieldNames(t *testing.T, doc value.Value) []string {
	t.Helper()
	names, _, ok := value.DocumentFields(doc)
	require.True(t, ok)
	return names
}
