package stream

import (
	"context"

	"github.com/riverdb/riverdb"
)

// Union concatenates streams in list order, advancing to the next stream
// when the current one is exhausted.
type Union struct {
	streams []Stream
}

func NewUnion(streams []Stream) *Union {
	return &Union{streams: streams}
}

func (u *Union) Next(ctx context.Context) (*riverdb.Value, error) {
	for len(u.streams) > 0 {
		doc, err := u.streams[0].Next(ctx)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			return doc, nil
		}
		u.streams = u.streams[1:]
	}
	return nil, nil
}
