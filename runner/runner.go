// Package runner drives prepared plans to completion: the single-plan
// execute loop, the retry path for storage conflicts, and fan-out of plan
// clones over a worker pool.
package runner

import (
	"context"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/pallasdb/pallas/common"
	"github.com/pallasdb/pallas/stage"
	"github.com/pallasdb/pallas/value"
)

// Runner executes plans. Zero-value construction is not supported; use New.
type Runner struct {
	logger log.Logger
	// MaxRetries bounds how often a retryable storage conflict restarts
	// the plan from scratch.
	maxRetries int
}

func New(logger log.Logger, maxRetries int) *Runner {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Runner{logger: logger, maxRetries: maxRetries}
}

// Run prepares, opens and drains the plan, returning a deep copy of the
// result slot's value for every row. Context cancellation is observed at the
// plan's interrupt points.
func (r *Runner) Run(ctx context.Context, plan stage.PlanStage, resultSlot value.SlotID) ([]value.Value, error) {
	pctx := stage.NewPrepareContext()
	pctx.Interrupter = stage.NewInterrupter(&contextYieldPolicy{ctx: ctx})
	if err := plan.Prepare(pctx); err != nil {
		return nil, err
	}
	acc, ok := plan.GetAccessor(resultSlot)
	if !ok {
		return nil, common.Errorf(common.SlotNotFoundError,
			"plan exposes no slot %d", resultSlot)
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
		if st == stage.EOF {
			return out, nil
		}
		out = append(out, acc.View().Copy())
	}
}

// RunWithRetry runs the plan, restarting on retryable errors with a fresh
// clone. Results of a failed attempt are discarded wholesale; a plan must
// not observe half of one collection epoch and half of another.
func (r *Runner) RunWithRetry(ctx context.Context, plan stage.PlanStage, resultSlot value.SlotID) ([]value.Value, error) {
	attempt := plan
	for retries := 0; ; retries++ {
		out, err := r.Run(ctx, attempt, resultSlot)
		if err == nil {
			return out, nil
		}
		if !common.IsRetryable(err) || retries >= r.maxRetries {
			return nil, err
		}
		level.Warn(r.logger).Log("msg", "retrying plan after storage conflict",
			"attempt", retries+1, "err", err)
		attempt = plan.Clone()
	}
}

// contextYieldPolicy maps context cancellation onto the plan's interrupt
// protocol.
type contextYieldPolicy struct {
	ctx context.Context
}

func (p *contextYieldPolicy) Yield() error {
	select {
	case <-p.ctx.Done():
		return common.Errorf(common.InterruptedError, "operation interrupted: %v", p.ctx.Err())
	default:
		return nil
	}
}
