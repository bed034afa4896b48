// Package extproc runs user-supplied JavaScript outside the evaluator.  The
// pool bounds how many evaluations run at once; the engine itself is
// pluggable so the service can swap the sandboxed process for an in-process
// stub in tests and in the REPL.
package extproc

import (
	"context"
	"fmt"

	"github.com/riverdb/riverdb"
	"golang.org/x/sync/semaphore"
)

// Engine evaluates one JavaScript source string.  closure carries the
// flattened variable scope captured at the call site; arg is the optional
// single argument (the mapped row), nil when absent.  The engine returns a
// single JSON value.
type Engine func(ctx context.Context, source string, closure map[string]riverdb.Value, arg *riverdb.Value) (riverdb.Value, error)

// Pool bounds concurrent engine invocations with a weighted semaphore.
// Waiting for a slot respects context cancellation.
type Pool struct {
	engine Engine
	slots  *semaphore.Weighted
}

func NewPool(engine Engine, size int64) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("pool size must be positive, got %d", size)
	}
	return &Pool{engine: engine, slots: semaphore.NewWeighted(size)}, nil
}

// RunJS acquires a slot, runs the engine, and releases the slot.
func (p *Pool) RunJS(ctx context.Context, source string, closure map[string]riverdb.Value, arg *riverdb.Value) (riverdb.Value, error) {
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.slots.Release(1)
	return p.engine(ctx, source, closure, arg)
}
