package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-kit/log/level"
	"github.com/panjf2000/ants/v2"

	"github.com/pallasdb/pallas/common"
	"github.com/pallasdb/pallas/stage"
	"github.com/pallasdb/pallas/value"
)

// Job is one plan to execute, paired with the slot its results come from.
type Job struct {
	Plan       stage.PlanStage
	ResultSlot value.SlotID
}

// ParallelRunner fans independent jobs out over a shared goroutine pool.
// Plans are single-threaded by contract; callers split work by cloning a
// plan per partition and submitting one job each.
type ParallelRunner struct {
	runner *Runner
	pool   *ants.Pool
}

func NewParallelRunner(r *Runner, size int) (*ParallelRunner, error) {
	pool, err := ants.NewPool(size, ants.WithPanicHandler(func(v interface{}) {
		level.Error(r.logger).Log("msg", "plan worker panicked", "panic", fmt.Sprint(v))
	}))
	if err != nil {
		return nil, common.Errorf(common.InvalidConfigurationError,
			"worker pool of size %d: %v", size, err)
	}
	return &ParallelRunner{runner: r, pool: pool}, nil
}

// RunAll executes every job, preserving job order in the results. The first
// error wins; remaining jobs still run to completion but their output is
// dropped.
func (p *ParallelRunner) RunAll(ctx context.Context, jobs []Job) ([][]value.Value, error) {
	results := make([][]value.Value, len(jobs))
	errs := make([]error, len(jobs))
	var wg sync.WaitGroup

	for i, job := range jobs {
		i, job := i, job
		wg.Add(1)
		submitErr := p.pool.Submit(func() {
			defer wg.Done()
			results[i], errs[i] = p.runner.RunWithRetry(ctx, job.Plan, job.ResultSlot)
		})
		if submitErr != nil {
			wg.Done()
			errs[i] = submitErr
		}
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// RunClones splits a plan into n clones and runs them concurrently. The
// given plan itself is the first clone.
func (p *ParallelRunner) RunClones(ctx context.Context, plan stage.PlanStage,
	resultSlot value.SlotID, n int) ([][]value.Value, error) {

	jobs := make([]Job, n)
	for i := range jobs {
		if i == 0 {
			jobs[i] = Job{Plan: plan, ResultSlot: resultSlot}
			continue
		}
		jobs[i] = Job{Plan: plan.Clone(), ResultSlot: resultSlot}
	}
	return p.RunAll(ctx, jobs)
}

func (p *ParallelRunner) Close() {
	p.pool.Release()
}
