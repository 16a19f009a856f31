package stage

import (
	"github.com/pallasdb/pallas/common"
	"github.com/pallasdb/pallas/expr"
	"github.com/pallasdb/pallas/value"
)

// PlanState is the result of a single GetNext call.
type PlanState int

const (
	// Advanced means the stage produced a row; its slots hold the values.
	Advanced PlanState = iota
	// EOF means the stage is exhausted; its slots must not be read.
	EOF
)

func (s PlanState) String() string {
	if s == Advanced {
		return "ADVANCED"
	}
	return "EOF"
}

// PlanStage is a node of an executable plan tree. The lifecycle is
// Prepare, GetAccessor, Open, GetNext until EOF, Close. Open may be called
// again with reOpen=true to rewind an already-open stage.
//
// SaveState and RestoreState suspend and resume a plan around a yield.
// Callers use the package-level SaveState/RestoreState functions, which walk
// the tree in the required order; DoSaveState and DoRestoreState are the
// per-stage hooks.
type PlanStage interface {
	Prepare(ctx *PrepareContext) error
	GetAccessor(slot value.SlotID) (value.SlotAccessor, bool)
	Open(reOpen bool) error
	GetNext() (PlanState, error)
	Close() error

	Children() []PlanStage
	Clone() PlanStage

	DoSaveState()
	DoRestoreState() error

	// SlotsAccessible reports whether the stage's slots currently hold
	// valid values. It is false after EOF, after Close, and while saved.
	SlotsAccessible() bool

	CommonStats() *CommonStats
	DebugExplain() *Explain
}

// SaveState suspends every stage in the tree. Children are saved after their
// parent, right to left, so a stage releases its own resources before any
// stage it reads from.
func SaveState(s PlanStage) {
	s.CommonStats().Saves++
	s.DoSaveState()
	children := s.Children()
	for i := len(children) - 1; i >= 0; i-- {
		SaveState(children[i])
	}
}

// RestoreState resumes every stage in the tree. Children are restored left to
// right before their parent, so a stage's inputs are valid when the stage
// itself re-acquires its resources. A failure leaves the plan unusable except
// for Close; a retryable error means the whole plan may be rebuilt and rerun.
func RestoreState(s PlanStage) error {
	children := s.Children()
	for _, c := range children {
		if err := RestoreState(c); err != nil {
			return err
		}
	}
	s.CommonStats().Restores++
	return s.DoRestoreState()
}

// correlatedFrame is one level of correlated-slot visibility: explicit
// accessor overrides first, then the outer stage's slots. The active flag
// guards against a stage resolving slots through itself.
type correlatedFrame struct {
	overrides map[value.SlotID]value.SlotAccessor
	outer     PlanStage
	active    bool
}

// PrepareContext carries everything Prepare needs: externally bound slots,
// the stack of correlated frames contributed by ancestor stages, and the
// interrupt checker shared by the whole plan.
type PrepareContext struct {
	bindings    map[value.SlotID]value.SlotAccessor
	frames      []*correlatedFrame
	Interrupter *Interrupter
}

func NewPrepareContext() *PrepareContext {
	return &PrepareContext{
		bindings:    make(map[value.SlotID]value.SlotAccessor),
		Interrupter: NewInterrupter(nil),
	}
}

// Bind registers an external accessor for a slot, visible to the whole plan.
func (ctx *PrepareContext) Bind(slot value.SlotID, acc value.SlotAccessor) {
	ctx.bindings[slot] = acc
}

// Resolve finds the accessor for a slot: innermost correlated frame first,
// outer frames next, external bindings last.
func (ctx *PrepareContext) Resolve(slot value.SlotID) (value.SlotAccessor, error) {
	for i := len(ctx.frames) - 1; i >= 0; i-- {
		f := ctx.frames[i]
		if acc, ok := f.overrides[slot]; ok {
			return acc, nil
		}
		if f.outer != nil && !f.active {
			f.active = true
			acc, ok := f.outer.GetAccessor(slot)
			f.active = false
			if ok {
				return acc, nil
			}
		}
	}
	if acc, ok := ctx.bindings[slot]; ok {
		return acc, nil
	}
	return nil, common.Errorf(common.SlotNotFoundError, "no accessor for slot %d", slot)
}

func (ctx *PrepareContext) pushFrame(overrides map[value.SlotID]value.SlotAccessor, outer PlanStage) {
	ctx.frames = append(ctx.frames, &correlatedFrame{overrides: overrides, outer: outer})
}

func (ctx *PrepareContext) popFrame() {
	ctx.frames = ctx.frames[:len(ctx.frames)-1]
}

// ResolveSlot lets a PrepareContext serve as the expression resolver.
func (ctx *PrepareContext) ResolveSlot(slot value.SlotID) (value.SlotAccessor, error) {
	return ctx.Resolve(slot)
}

var _ expr.SlotResolver = (*PrepareContext)(nil)

// interruptCheckPeriod bounds how many rows a stage may produce between
// interrupt checks.
const interruptCheckPeriod = 128

// YieldPolicy is consulted at interrupt-check points. Returning an error
// aborts the plan; InterruptedError for a kill, StorageConflictError if a
// restore after yielding failed retryably.
type YieldPolicy interface {
	Yield() error
}

// Interrupter amortizes interrupt checks: Check is cheap for
// interruptCheckPeriod-1 calls out of every interruptCheckPeriod.
type Interrupter struct {
	policy    YieldPolicy
	countdown int
}

func NewInterrupter(policy YieldPolicy) *Interrupter {
	return &Interrupter{policy: policy, countdown: interruptCheckPeriod}
}

func (in *Interrupter) Check() error {
	in.countdown--
	if in.countdown > 0 {
		return nil
	}
	in.countdown = interruptCheckPeriod
	if in.policy == nil {
		return nil
	}
	return in.policy.Yield()
}

// stageBase carries the bookkeeping every stage shares.
type stageBase struct {
	nodeID          int
	stats           CommonStats
	slotsAccessible bool
	prepared        bool
	interrupter     *Interrupter
}

func newStageBase(stageType string, nodeID int) stageBase {
	return stageBase{nodeID: nodeID, stats: CommonStats{StageType: stageType, NodeID: nodeID}}
}

func (b *stageBase) CommonStats() *CommonStats { return &b.stats }

// markPrepared records the one allowed Prepare call. A second Prepare on the
// same stage is a plan-construction bug, not a recoverable condition.
func (b *stageBase) markPrepared() {
	common.Assert(!b.prepared, "stage %q (node %d) prepared twice", b.stats.StageType, b.nodeID)
	b.prepared = true
}

func (b *stageBase) SlotsAccessible() bool { return b.slotsAccessible }

// trackOpen records an Open call and makes slots readable.
func (b *stageBase) trackOpen() {
	b.stats.Opens++
	b.slotsAccessible = true
}

// trackResult records a GetNext outcome and keeps slot accessibility in sync
// with it. Returns its argument so call sites can tail-call it.
func (b *stageBase) trackResult(state PlanState) PlanState {
	if state == Advanced {
		b.stats.Advances++
		b.slotsAccessible = true
	} else {
		b.stats.IsEOF = true
		b.slotsAccessible = false
	}
	return state
}

func (b *stageBase) trackClose() {
	b.stats.Closes++
	b.slotsAccessible = false
}

// checkInterrupt is called once per produced row by leaf and generator
// stages.
func (b *stageBase) checkInterrupt() error {
	if b.interrupter == nil {
		return nil
	}
	return b.interrupter.Check()
}
