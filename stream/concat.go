package stream

import (
	"context"

	"github.com/riverdb/riverdb"
)

// ConcatMap maps each upstream document to a substream and flattens them in
// order, fully draining one substream before requesting the next.
type ConcatMap struct {
	parent    Stream
	fn        StreamMapper
	substream Stream
}

// NewConcatMap constructs the operator eagerly: the first upstream document
// is pulled and mapped immediately so the first Next call has a substream
// ready.
func NewConcatMap(ctx context.Context, parent Stream, fn StreamMapper) (*ConcatMap, error) {
	c := &ConcatMap{parent: parent, fn: fn}
	doc, err := parent.Next(ctx)
	if err != nil {
		return nil, err
	}
	if doc != nil {
		if c.substream, err = fn(ctx, *doc); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *ConcatMap) Next(ctx context.Context) (*riverdb.Value, error) {
	for {
		if c.substream == nil {
			return nil, nil
		}
		doc, err := c.substream.Next(ctx)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			return doc, nil
		}
		next, err := c.parent.Next(ctx)
		if err != nil {
			return nil, err
		}
		if next == nil {
			c.substream = nil
			return nil, nil
		}
		if c.substream, err = c.fn(ctx, *next); err != nil {
			return nil, err
		}
	}
}
