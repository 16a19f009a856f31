package stage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pallasdb/pallas/common"
	"github.com/pallasdb/pallas/expr"
	"github.com/pallasdb/pallas/value"
)

func int32Rows(ns ...int32) [][]value.Value {
	rows := make([][]value.Value, len(ns))
	for i, n := range ns {
		rows[i] = []value.Value{value.NewInt32(n)}
	}
	return rows
}

func int32s(t *testing.T, vals []value.Value) []int32 {
	t.Helper()
	out := make([]int32, len(vals))
	for i, v := range vals {
		out[i] = v.Int32()
	}
	return out
}

func TestLimitSkip(t *testing.T) {
	const s value.SlotID = 1
	child := newRowsStage([]value.SlotID{s}, int32Rows(1, 2, 3, 4, 5))
	plan := NewLimit(child, 2, 1, 1)
	require.Equal(t, []int32{2, 3}, int32s(t, drainSlot(t, plan, s)))
}

func TestLimitOneOverCoScan(t *testing.T) {
	plan := NewProject(NewLimitOne(1), map[value.SlotID]expr.Expr{
		7: expr.NewConstant(value.NewInt32(42)),
	}, 2)
	out := drainSlot(t, plan, 7)
	require.Len(t, out, 1)
	require.Equal(t, int32(42), out[0].Int32())
}

func TestFilterPerRow(t *testing.T) {
	const s value.SlotID = 1
	child := newRowsStage([]value.SlotID{s}, int32Rows(1, 5, 2, 7))
	plan := NewFilter(child,
		expr.NewCompare(expr.OpGt, expr.NewVariable(s), expr.NewConstant(value.NewInt32(3))), 1)
	require.Equal(t, []int32{5, 7}, int32s(t, drainSlot(t, plan, s)))
}

func TestConstFilterDisablesSubtree(t *testing.T) {
	const s value.SlotID = 1
	child := newRowsStage([]value.SlotID{s}, int32Rows(1, 2))
	plan := NewConstFilter(child, expr.NewConstant(value.NewBool(false)), 1)
	require.Empty(t, drainSlot(t, plan, s))
	// The child was never opened.
	require.Equal(t, int64(0), child.CommonStats().Opens)
}

func TestBranchSelectsChildAtOpen(t *testing.T) {
	const thenSlot, elseSlot, outSlot value.SlotID = 1, 2, 3
	build := func(cond bool) *BranchStage {
		return NewBranch(expr.NewConstant(value.NewBool(cond)),
			newRowsStage([]value.SlotID{thenSlot}, int32Rows(10)),
			newRowsStage([]value.SlotID{elseSlot}, int32Rows(20)),
			[]value.SlotID{thenSlot}, []value.SlotID{elseSlot}, []value.SlotID{outSlot}, 1)
	}
	require.Equal(t, []int32{10}, int32s(t, drainSlot(t, build(true), outSlot)))
	require.Equal(t, []int32{20}, int32s(t, drainSlot(t, build(false), outSlot)))
}

func TestLoopJoinReopensInnerPerOuterRow(t *testing.T) {
	const outerSlot, innerSlot value.SlotID = 1, 2
	outer := newRowsStage([]value.SlotID{outerSlot}, int32Rows(1, 2))
	inner := newRowsStage([]value.SlotID{innerSlot}, int32Rows(10, 20))
	plan := NewLoopJoin(outer, inner, []value.SlotID{outerSlot}, nil, nil, 1)

	ctx := NewPrepareContext()
	require.NoError(t, plan.Prepare(ctx))
	outerAcc, ok := plan.GetAccessor(outerSlot)
	require.True(t, ok)
	innerAcc, ok := plan.GetAccessor(innerSlot)
	require.True(t, ok)
	require.NoError(t, plan.Open(false))
	defer plan.Close()

	var pairs [][2]int32
	for {
		st, err := plan.GetNext()
		require.NoError(t, err)
		if st == EOF {
			break
		}
		pairs = append(pairs, [2]int32{outerAcc.View().Int32(), innerAcc.View().Int32()})
	}
	require.Equal(t, [][2]int32{{1, 10}, {1, 20}, {2, 10}, {2, 20}}, pairs)
}

func TestLoopJoinPredicate(t *testing.T) {
	const outerSlot, innerSlot value.SlotID = 1, 2
	plan := NewLoopJoin(
		newRowsStage([]value.SlotID{outerSlot}, int32Rows(1, 2)),
		newRowsStage([]value.SlotID{innerSlot}, int32Rows(1, 2)),
		nil, []value.SlotID{outerSlot},
		expr.NewCompare(expr.OpEq, expr.NewVariable(outerSlot), expr.NewVariable(innerSlot)), 1)
	require.Equal(t, []int32{1, 2}, int32s(t, drainSlot(t, plan, innerSlot)))
}

func TestCorrelatedSlotResolution(t *testing.T) {
	// The inner subtree reads the outer row through the loop join's
	// correlated frame.
	const outerSlot, computed value.SlotID = 1, 2
	inner := NewProject(NewLimitOne(2), map[value.SlotID]expr.Expr{
		computed: expr.NewVariable(outerSlot),
	}, 3)
	plan := NewLoopJoin(
		newRowsStage([]value.SlotID{outerSlot}, int32Rows(4, 5)),
		inner, nil, []value.SlotID{outerSlot}, nil, 1)
	require.Equal(t, []int32{4, 5}, int32s(t, drainSlot(t, plan, computed)))
}

func TestPrepareContextBindings(t *testing.T) {
	const bound value.SlotID = 9
	acc := &value.OwnedAccessor{}
	acc.Reset(value.NewString("ext"))

	plan := NewProject(NewLimitOne(1), map[value.SlotID]expr.Expr{
		10: expr.NewVariable(bound),
	}, 2)
	ctx := NewPrepareContext()
	ctx.Bind(bound, acc)
	require.NoError(t, plan.Prepare(ctx))
	require.NoError(t, plan.Open(false))
	defer plan.Close()
	st, err := plan.GetNext()
	require.NoError(t, err)
	require.Equal(t, Advanced, st)
	out, ok := plan.GetAccessor(10)
	require.True(t, ok)
	require.Equal(t, "ext", out.View().StringValue())
}

func TestUnresolvedSlotFailsPrepare(t *testing.T) {
	plan := NewProject(NewLimitOne(1), map[value.SlotID]expr.Expr{
		10: expr.NewVariable(999),
	}, 2)
	err := plan.Prepare(NewPrepareContext())
	code, ok := common.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, common.SlotNotFoundError, code)
}

func TestPrepareTwicePanics(t *testing.T) {
	plan := NewLimitOne(1)
	require.NoError(t, plan.Prepare(NewPrepareContext()))
	require.Panics(t, func() { _ = plan.Prepare(NewPrepareContext()) })
}

// countingPolicy counts yields and can fail after a threshold.
type countingPolicy struct {
	yields  int
	failAt  int
	failErr error
}

func (p *countingPolicy) Yield() error {
	p.yields++
	if p.failAt > 0 && p.yields >= p.failAt {
		return p.failErr
	}
	return nil
}

func TestInterruptCheckIsPeriodic(t *testing.T) {
	policy := &countingPolicy{}
	const s value.SlotID = 1
	child := newRowsStage([]value.SlotID{s}, int32Rows(make([]int32, 300)...))

	ctx := NewPrepareContext()
	ctx.Interrupter = NewInterrupter(policy)
	require.NoError(t, child.Prepare(ctx))
	require.NoError(t, child.Open(false))
	for {
		st, err := child.GetNext()
		require.NoError(t, err)
		if st == EOF {
			break
		}
	}
	require.NoError(t, child.Close())
	// 301 checks at one per 128 calls.
	require.Equal(t, 2, policy.yields)
}

func TestInterruptAbortsPlan(t *testing.T) {
	policy := &countingPolicy{
		failAt:  1,
		failErr: common.Errorf(common.InterruptedError, "killed"),
	}
	const s value.SlotID = 1
	child := newRowsStage([]value.SlotID{s}, int32Rows(make([]int32, 300)...))
	ctx := NewPrepareContext()
	ctx.Interrupter = NewInterrupter(policy)
	require.NoError(t, child.Prepare(ctx))
	require.NoError(t, child.Open(false))
	var lastErr error
	for {
		st, err := child.GetNext()
		if err != nil {
			lastErr = err
			break
		}
		if st == EOF {
			break
		}
	}
	code, ok := common.CodeOf(lastErr)
	require.True(t, ok)
	require.Equal(t, common.InterruptedError, code)
}

// orderStage records the order of save/restore hooks across a tree.
type orderStage struct {
	rowsStage
	name string
	log  *[]string
}

func newOrderStage(name string, log *[]string) *orderStage {
	return &orderStage{rowsStage: *newRowsStage(nil, nil), name: name, log: log}
}

func (s *orderStage) DoSaveState() { *s.log = append(*s.log, "save:"+s.name) }

func (s *orderStage) DoRestoreState() error {
	*s.log = append(*s.log, "restore:"+s.name)
	return nil
}

func (s *orderStage) Children() []PlanStage { return nil }

func TestSaveRestoreWalkOrder(t *testing.T) {
	var log []string
	left := newOrderStage("left", &log)
	right := newOrderStage("right", &log)
	root := NewLoopJoin(left, right, nil, nil, nil, 1)

	SaveState(root)
	// Parent first, then children right to left.
	require.Equal(t, []string{"save:right", "save:left"}, log)

	log = nil
	require.NoError(t, RestoreState(root))
	// Children left to right, then parent.
	require.Equal(t, []string{"restore:left", "restore:right"}, log)
}

func TestCloneIsIndependent(t *testing.T) {
	const s value.SlotID = 1
	child := newRowsStage([]value.SlotID{s}, int32Rows(1, 2, 3))
	plan := NewLimit(child, 2, 0, 1)

	first := drainSlot(t, plan, s)
	second := drainSlot(t, plan.Clone(), s)
	require.Equal(t, int32s(t, first), int32s(t, second))
}

func TestStatsTracking(t *testing.T) {
	const s value.SlotID = 1
	child := newRowsStage([]value.SlotID{s}, int32Rows(1, 2, 3))
	plan := NewLimit(child, 3, 0, 1)
	drainSlot(t, plan, s)

	stats := plan.CommonStats()
	require.Equal(t, int64(1), stats.Opens)
	require.Equal(t, int64(3), stats.Advances)
	require.Equal(t, int64(1), stats.Closes)
	require.True(t, stats.IsEOF)

	explain := CollectExplain(plan)
	require.Contains(t, explain.String(), "limit")
}
