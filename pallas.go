// Package pallas is the top-level container wiring the document store, the
// projection compiler and the plan runner together. Most callers only need
// this package: insert documents into a collection, then project them.
package pallas

import (
	"context"

	"github.com/go-kit/log"

	"github.com/pallasdb/pallas/projection"
	"github.com/pallasdb/pallas/runner"
	"github.com/pallasdb/pallas/stage"
	"github.com/pallasdb/pallas/store"
	"github.com/pallasdb/pallas/value"
)

const defaultMaxRetries = 3

// Engine owns the shared pieces of the system. It is safe for concurrent
// use; each query compiles and runs its own plan tree.
type Engine struct {
	store  *store.Store
	runner *runner.Runner
	slots  *value.SlotIDGenerator
	logger log.Logger
}

// Options tunes engine construction. The zero value is usable.
type Options struct {
	Logger log.Logger
	// MaxRetries bounds restarts after storage conflicts; 0 means the
	// default.
	MaxRetries int
}

func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	retries := opts.MaxRetries
	if retries == 0 {
		retries = defaultMaxRetries
	}
	return &Engine{
		store:  store.New(logger),
		runner: runner.New(logger, retries),
		slots:  &value.SlotIDGenerator{},
		logger: logger,
	}
}

// Store exposes the document store for inserts and collection management.
func (e *Engine) Store() *store.Store { return e.store }

// Insert stores a document under key in the named collection.
func (e *Engine) Insert(collection, key string, doc []byte) error {
	return e.store.Collection(collection).Insert(key, doc)
}

// Project runs a projection over every document of a collection and returns
// the projected documents in key order. The plan is retried transparently
// when the collection changes under a yield.
func (e *Engine) Project(ctx context.Context, collection string,
	projType projection.Type, root *projection.PathNode) ([]value.Value, error) {

	plan, resultSlot, err := e.CompileProjection(collection, projType, root)
	if err != nil {
		return nil, err
	}
	return e.runner.RunWithRetry(ctx, plan, resultSlot)
}

// CompileProjection builds, without running, the scan-and-project plan for a
// collection. Callers that manage execution themselves (parallel clones,
// custom drain loops) start here.
func (e *Engine) CompileProjection(collection string, projType projection.Type,
	root *projection.PathNode) (stage.PlanStage, value.SlotID, error) {

	coll := e.store.Collection(collection)
	docSlot := e.slots.Generate()
	scan := stage.NewScan(coll, docSlot, nil, 0)

	compiler := projection.NewCompiler(e.slots, stage.OutputBSON)
	return compiler.Compile(scan, docSlot, projType, root)
}
