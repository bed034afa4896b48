package stream

import (
	"context"

	"github.com/riverdb/riverdb"
)

// Predicate decides whether a document passes a Filter.  Errors propagate to
// the consumer with the enclosing operator's backtrace already attached by
// the evaluator that built the predicate.
type Predicate func(ctx context.Context, doc riverdb.Value) (bool, error)

// Mapper transforms one document into another for Map.
type Mapper func(ctx context.Context, doc riverdb.Value) (riverdb.Value, error)

// StreamMapper transforms one document into a substream for ConcatMap.
type StreamMapper func(ctx context.Context, doc riverdb.Value) (Stream, error)

// Filter pulls from parent until the predicate holds or parent is exhausted.
type Filter struct {
	parent Stream
	pred   Predicate
}

func NewFilter(parent Stream, pred Predicate) *Filter {
	return &Filter{parent: parent, pred: pred}
}

func (f *Filter) Next(ctx context.Context) (*riverdb.Value, error) {
	for {
		doc, err := f.parent.Next(ctx)
		if doc == nil || err != nil {
			return nil, err
		}
		ok, err := f.pred(ctx, *doc)
		if err != nil {
			return nil, err
		}
		if ok {
			return doc, nil
		}
	}
}

// Map transforms documents one-in-one-out, propagating exhaustion.
type Map struct {
	parent Stream
	fn     Mapper
}

func NewMap(parent Stream, fn Mapper) *Map {
	return &Map{parent: parent, fn: fn}
}

func (m *Map) Next(ctx context.Context) (*riverdb.Value, error) {
	doc, err := m.parent.Next(ctx)
	if doc == nil || err != nil {
		return nil, err
	}
	out, err := m.fn(ctx, *doc)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
