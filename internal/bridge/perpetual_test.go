package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "corebridge/internal/errors"
	"corebridge/internal/runloop"
)

func TestPerpetual_DeliversInFiringOrder(t *testing.T) {
	c := startCore(t, 1, 4)

	var (
		got     []int
		running atomic.Int32
		overlap atomic.Bool
	)
	p := NewPerpetual(c, func(w int) {
		if running.Add(1) > 1 {
			overlap.Store(true)
		}
		got = append(got, w)
		running.Add(-1)
	})

	const n = 500
	for i := 0; i < n; i++ {
		require.NoError(t, p.Fire(i))
	}
	barrier(t, c)

	require.Len(t, got, n)
	for i, w := range got {
		require.Equal(t, i, w)
	}
	assert.False(t, overlap.Load())
	assert.Zero(t, p.Pending())
}

func TestPerpetual_ConcurrentFirers(t *testing.T) {
	c := startCore(t, 0, 8)

	type work struct{ src, seq int }
	var got []work
	p := NewPerpetual(c, func(w work) { got = append(got, w) })

	var wg sync.WaitGroup
	for src := 0; src < 4; src++ {
		wg.Add(1)
		go func(src int) {
			defer wg.Done()
			for seq := 0; seq < 100; seq++ {
				// A single drain task is ever pending, so the queue never fills.
				assert.NoError(t, p.Fire(work{src, seq}))
			}
		}(src)
	}
	wg.Wait()
	barrier(t, c)

	require.Len(t, got, 400)
	next := make(map[int]int)
	for _, w := range got {
		require.Equal(t, next[w.src], w.seq, "firings from one source reordered")
		next[w.src]++
	}
}

func TestPerpetual_AheadOfLaterTasks(t *testing.T) {
	c := runloop.New(1, runloop.Options{QueueDepth: 8, CPU: runloop.NoPin})

	var order []string
	p := NewPerpetual(c, func(w string) { order = append(order, w) })

	require.NoError(t, p.Fire("a"))
	require.NoError(t, c.Submit(func() { order = append(order, "task") }))
	require.NoError(t, p.Fire("b"))

	require.NoError(t, c.Start(context.Background()))
	defer stopCore(t, c)
	barrier(t, c)

	assert.Equal(t, []string{"a", "b", "task"}, order)
}

func TestPerpetual_FailedFireKeepsWorkload(t *testing.T) {
	c := runloop.New(1, runloop.Options{QueueDepth: 1, CPU: runloop.NoPin})
	require.NoError(t, c.Submit(func() {})) // fill the queue

	var got []int
	p := NewPerpetual(c, func(w int) { got = append(got, w) })

	err := p.Fire(1)
	require.ErrorIs(t, err, cerrors.ErrQueueFull)
	var de *cerrors.DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "fire", de.Op)
	assert.Equal(t, 1, p.Pending())

	require.NoError(t, c.Start(context.Background()))
	defer stopCore(t, c)
	require.Eventually(t, func() bool { return c.Pending() == 0 }, 2*time.Second, time.Millisecond)
	barrier(t, c)
	assert.Empty(t, got, "nothing should be delivered without a successful fire")

	require.NoError(t, p.Fire(2))
	barrier(t, c)
	assert.Equal(t, []int{1, 2}, got)
}

func TestPerpetual_Unregister(t *testing.T) {
	c := runloop.New(0, runloop.Options{CPU: runloop.NoPin})

	var got []int
	p := NewPerpetual(c, func(w int) { got = append(got, w) })
	require.NoError(t, p.Fire(1))
	p.Unregister()
	assert.False(t, p.Registered())
	assert.Zero(t, p.Pending())

	err := p.Fire(2)
	require.ErrorIs(t, err, cerrors.ErrUnregistered)

	require.NoError(t, c.Start(context.Background()))
	defer stopCore(t, c)
	barrier(t, c)
	assert.Empty(t, got)
}

func TestPerpetual_PanicDoesNotStopDelivery(t *testing.T) {
	c := startCore(t, 1, 0)

	var got []int
	p := NewPerpetual(c, func(w int) {
		if w == 2 {
			panic("bad workload")
		}
		got = append(got, w)
	})
	for i := 1; i <= 4; i++ {
		require.NoError(t, p.Fire(i))
	}
	barrier(t, c)
	assert.Equal(t, []int{1, 3, 4}, got)

	require.NoError(t, p.Fire(5))
	barrier(t, c)
	assert.Equal(t, []int{1, 3, 4, 5}, got)
}

func TestPerpetual_FireFromCallback(t *testing.T) {
	c := startCore(t, 0, 0)

	var got []int
	var p *Perpetual[int]
	p = NewPerpetual(c, func(w int) {
		got = append(got, w)
		if w < 3 {
			_ = p.Fire(w + 1)
		}
	})
	require.NoError(t, p.Fire(0))
	barrier(t, c)
	assert.Equal(t, []int{0, 1, 2, 3}, got)
}
