package stream

import (
	"context"
	"slices"

	"github.com/riverdb/riverdb"
)

// InMemory is a materialized sequence; Next pops from the front.
type InMemory struct {
	vals []riverdb.Value
}

// NewInMemory wraps vals without copying; the caller relinquishes ownership.
func NewInMemory(vals []riverdb.Value) *InMemory {
	return &InMemory{vals: vals}
}

// Materialize drains parent into a new InMemory.
func Materialize(ctx context.Context, parent Stream) (*InMemory, error) {
	vals, err := Drain(ctx, parent)
	if err != nil {
		return nil, err
	}
	return &InMemory{vals: vals}, nil
}

// Sort stable-sorts the buffered documents in place.  Only meaningful before
// consumption begins.
func (m *InMemory) Sort(cmp func(a, b riverdb.Value) int) {
	slices.SortStableFunc(m.vals, cmp)
}

func (m *InMemory) Next(_ context.Context) (*riverdb.Value, error) {
	if len(m.vals) == 0 {
		return nil, nil
	}
	doc := &m.vals[0]
	m.vals = m.vals[1:]
	return doc, nil
}
