package stream

import (
	"context"
	"testing"

	"github.com/riverdb/riverdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counter tracks how many times Next is invoked so tests can assert that
// operators pull no more than they must.
type counter struct {
	docs  []riverdb.Value
	pulls int
}

func (c *counter) Next(_ context.Context) (*riverdb.Value, error) {
	c.pulls++
	if len(c.docs) == 0 {
		return nil, nil
	}
	doc := c.docs[0]
	c.docs = c.docs[1:]
	return &doc, nil
}

func nums(vals ...float64) []riverdb.Value {
	out := make([]riverdb.Value, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}

func TestInMemoryExhaustionIsSticky(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory(nums(1))
	doc, err := s.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, doc)
	for i := 0; i < 3; i++ {
		doc, err = s.Next(ctx)
		require.NoError(t, err)
		require.Nil(t, doc)
	}
}

func TestFilter(t *testing.T) {
	ctx := context.Background()
	even := func(_ context.Context, doc riverdb.Value) (bool, error) {
		n, err := riverdb.Number(doc)
		if err != nil {
			return false, err
		}
		return int(n)%2 == 0, nil
	}
	f := NewFilter(NewInMemory(nums(1, 2, 3, 4, 5, 6)), even)
	out, err := Drain(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, nums(2, 4, 6), out)
}

func TestMap(t *testing.T) {
	ctx := context.Background()
	double := func(_ context.Context, doc riverdb.Value) (riverdb.Value, error) {
		n, err := riverdb.Number(doc)
		if err != nil {
			return nil, err
		}
		return n * 2, nil
	}
	m := NewMap(NewInMemory(nums(1, 2, 3)), double)
	out, err := Drain(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, nums(2, 4, 6), out)
}

func TestConcatMapPreservesOrder(t *testing.T) {
	ctx := context.Background()
	expand := func(_ context.Context, doc riverdb.Value) (Stream, error) {
		n, err := riverdb.Number(doc)
		if err != nil {
			return nil, err
		}
		return NewInMemory(nums(n*10, n*10+1)), nil
	}
	c, err := NewConcatMap(ctx, NewInMemory(nums(1, 2, 3)), expand)
	require.NoError(t, err)
	out, err := Drain(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, nums(10, 11, 20, 21, 30, 31), out)
}

func TestConcatMapSkipsEmptySubstreams(t *testing.T) {
	ctx := context.Background()
	expand := func(_ context.Context, doc riverdb.Value) (Stream, error) {
		n, err := riverdb.Number(doc)
		if err != nil {
			return nil, err
		}
		if int(n)%2 == 1 {
			return NewInMemory(nil), nil
		}
		return NewInMemory(nums(n)), nil
	}
	c, err := NewConcatMap(ctx, NewInMemory(nums(1, 2, 3, 4)), expand)
	require.NoError(t, err)
	out, err := Drain(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, nums(2, 4), out)
}

func TestLimitNeverOverPulls(t *testing.T) {
	ctx := context.Background()
	parent := &counter{docs: nums(1, 2, 3, 4, 5)}
	l := NewLimit(parent, 2)
	out, err := Drain(ctx, l)
	require.NoError(t, err)
	assert.Equal(t, nums(1, 2), out)
	assert.Equal(t, 2, parent.pulls)
}

func TestLimitZero(t *testing.T) {
	ctx := context.Background()
	parent := &counter{docs: nums(1)}
	l := NewLimit(parent, 0)
	doc, err := l.Next(ctx)
	require.NoError(t, err)
	assert.Nil(t, doc)
	assert.Zero(t, parent.pulls)
}

func TestSkip(t *testing.T) {
	ctx := context.Background()
	s := NewSkip(NewInMemory(nums(1, 2, 3, 4)), 2)
	out, err := Drain(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, nums(3, 4), out)
}

func TestSkipPastEnd(t *testing.T) {
	ctx := context.Background()
	s := NewSkip(NewInMemory(nums(1, 2)), 5)
	out, err := Drain(ctx, s)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestUnionConcatenatesInOrder(t *testing.T) {
	ctx := context.Background()
	u := NewUnion([]Stream{
		NewInMemory(nums(1, 2)),
		NewInMemory(nil),
		NewInMemory(nums(3)),
	})
	out, err := Drain(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, nums(1, 2, 3), out)
}

func TestMultiplexerConsumersSeeSameSequence(t *testing.T) {
	ctx := context.Background()
	upstream := &counter{docs: nums(1, 2, 3, 4)}
	mux := NewMultiplexer(upstream)
	a, b, c := mux.NewStream(), mux.NewStream(), mux.NewStream()

	// Interleave the consumers so replay from the shared buffer is hit.
	first, err := a.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, riverdb.Value(1.0), *first)

	want := nums(1, 2, 3, 4)
	for _, consumer := range []Stream{b, c} {
		out, err := Drain(ctx, consumer)
		require.NoError(t, err)
		assert.Equal(t, want, out)
	}
	rest, err := Drain(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, nums(2, 3, 4), rest)

	// One pull per document plus one for exhaustion, no matter how many
	// consumers replayed the buffer.
	assert.Equal(t, 5, upstream.pulls)
}

func TestSortInMemoryIsStable(t *testing.T) {
	ctx := context.Background()
	docs := []riverdb.Value{
		map[string]riverdb.Value{"k": 2.0, "id": 0.0},
		map[string]riverdb.Value{"k": 1.0, "id": 1.0},
		map[string]riverdb.Value{"k": 2.0, "id": 2.0},
		map[string]riverdb.Value{"k": 1.0, "id": 3.0},
	}
	byK := func(a, b riverdb.Value) int {
		ka := a.(map[string]riverdb.Value)["k"]
		kb := b.(map[string]riverdb.Value)["k"]
		return riverdb.Compare(ka, kb)
	}
	s := NewSort(NewInMemory(docs), byK)
	out, err := Drain(ctx, s)
	require.NoError(t, err)
	ids := make([]float64, len(out))
	for i, doc := range out {
		ids[i] = doc.(map[string]riverdb.Value)["id"].(float64)
	}
	assert.Equal(t, []float64{1, 3, 0, 2}, ids)
}

func TestSortSpillsAndMerges(t *testing.T) {
	saved := MemMaxBytes
	MemMaxBytes = 64
	defer func() { MemMaxBytes = saved }()

	ctx := context.Background()
	var docs []riverdb.Value
	for i := 99; i >= 0; i-- {
		docs = append(docs, float64(i))
	}
	s := NewSort(NewInMemory(docs), riverdb.Compare)
	out, err := Drain(ctx, s)
	require.NoError(t, err)
	require.Len(t, out, 100)
	for i, doc := range out {
		assert.Equal(t, riverdb.Value(float64(i)), doc)
	}
}

func TestSortEmpty(t *testing.T) {
	ctx := context.Background()
	s := NewSort(NewInMemory(nil), riverdb.Compare)
	doc, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Nil(t, doc)
}
