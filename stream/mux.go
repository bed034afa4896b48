package stream

import (
	"context"

	"github.com/riverdb/riverdb"
)

// Multiplexer lets any number of consumers share one upstream.  Each
// consumer replays the growing buffer from its own index; the upstream is
// pulled exactly once per document no matter how many consumers exist, at
// the cost of buffering everything produced so far.  A multiplexer is only
// touched by one query's worker, so the buffer needs no locking.
type Multiplexer struct {
	upstream Stream
	buf      []riverdb.Value
	done     bool
}

func NewMultiplexer(upstream Stream) *Multiplexer {
	return &Multiplexer{upstream: upstream}
}

// NewStream derives a consumer that yields the identical document sequence
// the upstream would have produced once.
func (m *Multiplexer) NewStream() Stream {
	return &muxStream{parent: m}
}

func (m *Multiplexer) fetch(ctx context.Context) (bool, error) {
	if m.done {
		return false, nil
	}
	doc, err := m.upstream.Next(ctx)
	if err != nil {
		return false, err
	}
	if doc == nil {
		m.done = true
		return false, nil
	}
	m.buf = append(m.buf, *doc)
	return true, nil
}

type muxStream struct {
	parent *Multiplexer
	index  int
}

func (s *muxStream) Next(ctx context.Context) (*riverdb.Value, error) {
	for s.index >= len(s.parent.buf) {
		ok, err := s.parent.fetch(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
	}
	doc := &s.parent.buf[s.index]
	s.index++
	return doc, nil
}
