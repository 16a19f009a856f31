package value

import "sync/atomic"

// SlotID names a single-value channel between a stage and its parent in the
// plan tree. Slot ids are unique within one compiled tree and carry no
// ownership; they are resolved to accessors once, at prepare time.
type SlotID int64

// SlotAccessor is a read handle for one slot, resolved at prepare time and
// stable for the lifetime of one prepare-to-close cycle.
//
// View returns the slot's current value without copying. The result may alias
// storage-owned memory; it must not be read unless the producing stage's most
// recent GetNext returned an advanced state.
type SlotAccessor interface {
	View() Value
}

// OwnedAccessor is the standard slot backing: a single mutable value cell.
type OwnedAccessor struct {
	val Value
}

func (a *OwnedAccessor) View() Value {
	return a.val
}

// Reset replaces the held value. The value may be a view.
func (a *OwnedAccessor) Reset(v Value) {
	a.val = v
}

// MakeOwned deep-copies the held value if it still aliases external memory.
// Called from save-state hooks before a storage snapshot is released.
func (a *OwnedAccessor) MakeOwned() {
	if !a.val.Owned() {
		a.val = a.val.Copy()
	}
}

// SwitchAccessor multiplexes between several source accessors; a branch stage
// points it at whichever child produced the current row.
type SwitchAccessor struct {
	idx     int
	sources []SlotAccessor
}

func NewSwitchAccessor(sources ...SlotAccessor) *SwitchAccessor {
	return &SwitchAccessor{sources: sources}
}

func (a *SwitchAccessor) SetIndex(i int) {
	a.idx = i
}

func (a *SwitchAccessor) View() Value {
	return a.sources[a.idx].View()
}

// SlotIDGenerator hands out tree-unique slot ids. Safe for concurrent use.
type SlotIDGenerator struct {
	counter atomic.Int64
}

func (g *SlotIDGenerator) Generate() SlotID {
	return SlotID(g.counter.Add(1))
}
