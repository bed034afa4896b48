// Package stream implements the lazy, single-pass document streams the
// evaluator composes: in-memory buffers, filter, map, concat-map, limit,
// union, and a multiplexer that lets several consumers replay one upstream.
package stream

import (
	"context"

	"github.com/riverdb/riverdb"
)

// Stream is a lazy, single-pass, finite producer of JSON documents.
// Next returns nil, nil when the stream is exhausted; once exhausted it
// stays exhausted.  Documents are shared, never mutated in flight; a
// consumer that mutates must Copy first.
type Stream interface {
	Next(ctx context.Context) (*riverdb.Value, error)
}

// Func adapts a closure to a Stream.
type Func func(ctx context.Context) (*riverdb.Value, error)

func (f Func) Next(ctx context.Context) (*riverdb.Value, error) {
	return f(ctx)
}

// Drain pulls s to exhaustion and returns the produced documents.
func Drain(ctx context.Context, s Stream) ([]riverdb.Value, error) {
	var out []riverdb.Value
	for {
		doc, err := s.Next(ctx)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return out, nil
		}
		out = append(out, *doc)
	}
}

// ReadBatch pulls up to n documents from s.  It stops early only when Next
// reports exhaustion, so a batch shorter than n means s is exhausted.
func ReadBatch(ctx context.Context, s Stream, n int) ([]riverdb.Value, error) {
	out := make([]riverdb.Value, 0, n)
	for len(out) < n {
		doc, err := s.Next(ctx)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			break
		}
		out = append(out, *doc)
	}
	return out, nil
}
