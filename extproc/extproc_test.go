package extproc

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/riverdb/riverdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunJSPassesThrough(t *testing.T) {
	engine := func(_ context.Context, source string, closure map[string]riverdb.Value, arg *riverdb.Value) (riverdb.Value, error) {
		assert.Equal(t, "x + 1", source)
		assert.Equal(t, riverdb.Value(41.0), closure["x"])
		assert.Nil(t, arg)
		return 42.0, nil
	}
	p, err := NewPool(engine, 2)
	require.NoError(t, err)
	out, err := p.RunJS(context.Background(), "x + 1",
		map[string]riverdb.Value{"x": 41.0}, nil)
	require.NoError(t, err)
	assert.Equal(t, riverdb.Value(42.0), out)
}

func TestPoolBoundsConcurrency(t *testing.T) {
	const size = 3
	var running, peak atomic.Int64
	gate := make(chan struct{})
	engine := func(_ context.Context, _ string, _ map[string]riverdb.Value, _ *riverdb.Value) (riverdb.Value, error) {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		<-gate
		running.Add(-1)
		return nil, nil
	}
	p, err := NewPool(engine, size)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.RunJS(context.Background(), "", nil, nil)
		}()
	}
	// Let the first wave block inside the engine, then open the gate.
	require.Eventually(t, func() bool { return running.Load() == size },
		time.Second, time.Millisecond)
	close(gate)
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int64(size))
}

func TestRunJSCanceledWhileWaiting(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	holding := make(chan struct{})
	engine := func(_ context.Context, _ string, _ map[string]riverdb.Value, _ *riverdb.Value) (riverdb.Value, error) {
		close(holding)
		<-block
		return nil, nil
	}
	p, err := NewPool(engine, 1)
	require.NoError(t, err)

	go p.RunJS(context.Background(), "", nil, nil)
	<-holding

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.RunJS(ctx, "", nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewPoolRejectsZeroSize(t *testing.T) {
	_, err := NewPool(nil, 0)
	assert.Error(t, err)
}
