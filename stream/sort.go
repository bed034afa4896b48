package stream

import (
	"context"
	"slices"

	"github.com/riverdb/riverdb"
	"github.com/riverdb/riverdb/spill"
)

// MemMaxBytes specifies the maximum amount of memory a sort will consume
// before it starts spilling sorted runs to temporary files.
var MemMaxBytes = 128 * 1024 * 1024

// Sort drains its parent, orders the documents with cmp, and replays them.
// Small inputs sort in memory; larger ones spill runs and merge on read.
// The sort is stable either way.
type Sort struct {
	parent Stream
	cmp    riverdb.CompareFunc
	out    Stream
	err    error
}

func NewSort(parent Stream, cmp riverdb.CompareFunc) *Sort {
	return &Sort{parent: parent, cmp: cmp}
}

func (s *Sort) Next(ctx context.Context) (*riverdb.Value, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.out == nil {
		if s.err = s.sort(ctx); s.err != nil {
			return nil, s.err
		}
	}
	return s.out.Next(ctx)
}

func (s *Sort) sort(ctx context.Context) error {
	var spiller *spill.MergeSort
	defer func() {
		if spiller != nil && s.out == nil {
			spiller.Cleanup()
		}
	}()
	var vals []riverdb.Value
	var nbytes int
	for {
		doc, err := s.parent.Next(ctx)
		if err != nil {
			return err
		}
		if doc == nil {
			break
		}
		vals = append(vals, *doc)
		nbytes += sizeOf(*doc)
		if nbytes < MemMaxBytes {
			continue
		}
		if spiller == nil {
			if spiller, err = spill.NewMergeSort(s.cmp); err != nil {
				return err
			}
		}
		if err := spiller.Spill(ctx, vals); err != nil {
			return err
		}
		vals = nil
		nbytes = 0
	}
	if spiller == nil {
		slices.SortStableFunc(vals, s.cmp)
		s.out = NewInMemory(vals)
		return nil
	}
	if len(vals) > 0 {
		if err := spiller.Spill(ctx, vals); err != nil {
			return err
		}
	}
	s.out = &mergeStream{spiller: spiller}
	return nil
}

// mergeStream adapts a MergeSort to the Stream interface and tears down its
// temp files once the merge is exhausted.
type mergeStream struct {
	spiller *spill.MergeSort
}

func (m *mergeStream) Next(ctx context.Context) (*riverdb.Value, error) {
	if m.spiller == nil {
		return nil, nil
	}
	doc, err := m.spiller.Read(ctx)
	if doc == nil || err != nil {
		m.spiller.Cleanup()
		m.spiller = nil
	}
	return doc, err
}

// sizeOf estimates the in-memory footprint of a document for the spill
// threshold.  It only needs to be roughly proportional to reality.
func sizeOf(v riverdb.Value) int {
	switch v := v.(type) {
	case string:
		return 16 + len(v)
	case []riverdb.Value:
		n := 24
		for _, elem := range v {
			n += sizeOf(elem)
		}
		return n
	case map[string]riverdb.Value:
		n := 48
		for key, elem := range v {
			n += 16 + len(key) + sizeOf(elem)
		}
		return n
	default:
		return 16
	}
}
