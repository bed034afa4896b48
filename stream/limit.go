package stream

import (
	"context"

	"github.com/riverdb/riverdb"
)

// Limit emits at most n documents, then reports exhaustion without pulling
// upstream again.
type Limit struct {
	parent    Stream
	remaining int
}

// NewLimit requires n >= 0; the evaluator rejects negative limits before
// constructing the operator.
func NewLimit(parent Stream, n int) *Limit {
	if n < 0 {
		panic("negative limit")
	}
	return &Limit{parent: parent, remaining: n}
}

func (l *Limit) Next(ctx context.Context) (*riverdb.Value, error) {
	if l.remaining == 0 {
		return nil, nil
	}
	l.remaining--
	doc, err := l.parent.Next(ctx)
	if doc == nil || err != nil {
		l.remaining = 0
		return nil, err
	}
	return doc, nil
}

// Skip discards the first n documents, then passes the rest through.
type Skip struct {
	parent  Stream
	pending int
}

func NewSkip(parent Stream, n int) *Skip {
	if n < 0 {
		panic("negative skip")
	}
	return &Skip{parent: parent, pending: n}
}

func (s *Skip) Next(ctx context.Context) (*riverdb.Value, error) {
	for s.pending > 0 {
		doc, err := s.parent.Next(ctx)
		if doc == nil || err != nil {
			s.pending = 0
			return nil, err
		}
		s.pending--
	}
	return s.parent.Next(ctx)
}
