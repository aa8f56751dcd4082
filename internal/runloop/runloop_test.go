package runloop

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "corebridge/internal/errors"
	"corebridge/internal/metrics"
)

func startCore(t *testing.T, id int, depth int) *Core {
	t.Helper()
	c := New(id, Options{QueueDepth: depth, CPU: NoPin})
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = c.Shutdown(ctx)
	})
	return c
}

func TestCore_FIFO(t *testing.T) {
	c := startCore(t, 0, 256)

	var got []int
	for i := 0; i < 200; i++ {
		i := i
		require.NoError(t, c.Submit(func() { got = append(got, i) }))
	}
	// Do is queued behind all submitted tasks.
	require.NoError(t, c.Do(func() error { return nil }))

	require.Len(t, got, 200)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestCore_SubmitBeforeStart(t *testing.T) {
	c := New(1, Options{QueueDepth: 4, CPU: NoPin})
	ran := make(chan struct{})
	require.NoError(t, c.Submit(func() { close(ran) }))

	select {
	case <-ran:
		t.Fatal("task ran before Start")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, c.Start(context.Background()))
	defer c.Shutdown(context.Background()) //nolint:errcheck

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("queued task never ran")
	}
}

func TestCore_QueueFull(t *testing.T) {
	m := metrics.New()
	c := New(0, Options{QueueDepth: 2, CPU: NoPin, Metrics: m})

	require.NoError(t, c.Submit(func() {}))
	require.NoError(t, c.Submit(func() {}))

	err := c.Submit(func() { t.Error("rejected task ran") })
	require.ErrorIs(t, err, cerrors.ErrQueueFull)

	var de *cerrors.DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "submit", de.Op)
	assert.Equal(t, 0, de.Core)
	assert.Equal(t, int64(1), m.SubmitsRejected())
	assert.Equal(t, int64(2), m.TasksSubmitted())

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Shutdown(context.Background()))
}

func TestCore_TerminatedAfterShutdown(t *testing.T) {
	c := New(1, Options{CPU: NoPin})
	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Shutdown(context.Background()))

	assert.Equal(t, StateStopped, c.State())
	assert.ErrorIs(t, c.Submit(func() {}), cerrors.ErrTerminated)
	assert.ErrorIs(t, c.Do(func() error { return nil }), cerrors.ErrTerminated)
}

func TestCore_ShutdownDrainsQueue(t *testing.T) {
	c := New(0, Options{QueueDepth: 16, CPU: NoPin})
	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, c.Submit(func() { ran.Add(1) }))
	}
	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Shutdown(context.Background()))
	assert.Equal(t, int32(10), ran.Load())
}

func TestCore_ShutdownNeverStarted(t *testing.T) {
	c := New(0, Options{CPU: NoPin})
	require.NoError(t, c.Shutdown(context.Background()))
	assert.Equal(t, StateStopped, c.State())
}

func TestCore_ShutdownNeverStartedFailsDo(t *testing.T) {
	c := New(0, Options{QueueDepth: 4, CPU: NoPin})
	var ran atomic.Bool
	require.NoError(t, c.Submit(func() { ran.Store(true) }))

	result := make(chan error, 1)
	go func() { result <- c.Do(func() error { ran.Store(true); return nil }) }()
	require.Eventually(t, func() bool { return c.Pending() == 2 }, 2*time.Second, time.Millisecond)

	require.NoError(t, c.Shutdown(context.Background()))
	select {
	case err := <-result:
		assert.ErrorIs(t, err, cerrors.ErrTerminated)
	case <-time.After(2 * time.Second):
		t.Fatal("Do still blocked after shutdown")
	}
	assert.False(t, ran.Load())
	assert.Zero(t, c.Pending())
}

func TestCore_DoReturnsError(t *testing.T) {
	c := startCore(t, 1, 0)
	want := cerrors.New("boom")
	assert.Equal(t, want, c.Do(func() error { return want }))
}

func TestCore_DoRunsOnCore(t *testing.T) {
	c := startCore(t, 1, 0)
	assert.False(t, c.OnCore())

	var onCore bool
	require.NoError(t, c.Do(func() error {
		onCore = c.OnCore()
		return nil
	}))
	assert.True(t, onCore)
}

func TestCore_DoInlineFromOwner(t *testing.T) {
	c := startCore(t, 0, 1)

	done := make(chan error, 1)
	require.NoError(t, c.Submit(func() {
		// Blocking on our own queue would deadlock; Do must run inline.
		var inner bool
		err := c.Do(func() error { inner = true; return nil })
		if err == nil && !inner {
			err = cerrors.New("inner did not run")
		}
		done <- err
	}))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Do from the owning core deadlocked")
	}
}

func TestCore_DoPanic(t *testing.T) {
	c := startCore(t, 0, 0)
	err := c.Do(func() error { panic("kaboom") })

	var pe *cerrors.PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "kaboom", pe.Value)

	// The loop survives.
	require.NoError(t, c.Do(func() error { return nil }))
}

func TestCore_TaskPanicRecovered(t *testing.T) {
	m := metrics.New()
	c := New(0, Options{CPU: NoPin, Metrics: m})
	require.NoError(t, c.Start(context.Background()))
	defer c.Shutdown(context.Background()) //nolint:errcheck

	require.NoError(t, c.Submit(func() { panic("task") }))
	require.NoError(t, c.Do(func() error { return nil }))
	assert.Equal(t, int64(1), m.ErrorCount())
	assert.Equal(t, StateRunning, c.State())
}

func TestCore_ConcurrentSubmitters(t *testing.T) {
	c := startCore(t, 1, 1024)

	var count int // confined to c1
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				for c.Submit(func() { count++ }) != nil {
					time.Sleep(time.Millisecond)
				}
			}
		}()
	}
	wg.Wait()

	var final int
	require.NoError(t, c.Do(func() error { final = count; return nil }))
	assert.Equal(t, 800, final)
}

func TestCore_StartTwice(t *testing.T) {
	c := startCore(t, 0, 0)
	assert.NoError(t, c.Start(context.Background()))
	assert.Equal(t, StateRunning, c.State())
}

func TestCore_Pin(t *testing.T) {
	c := New(0, Options{CPU: 0})
	if err := c.Start(context.Background()); err != nil {
		t.Skipf("cpu pinning unavailable: %v", err)
	}
	defer c.Shutdown(context.Background()) //nolint:errcheck
	assert.NoError(t, c.Do(func() error { return nil }))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "new", StateNew.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopping", StateStopping.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "state(9)", State(9).String())
}

func TestCore_OnCoreSkipsLookupWhileIdle(t *testing.T) {
	var lookups atomic.Int32
	saved := goroutineID
	goroutineID = func() uint64 { lookups.Add(1); return getGoroutineID() }
	t.Cleanup(func() { goroutineID = saved })

	c := startCore(t, 0, 0)
	for i := 0; i < 10; i++ {
		assert.False(t, c.OnCore())
	}
	assert.Zero(t, lookups.Load(), "idle core must not parse the caller's stack")

	var onCore bool
	require.NoError(t, c.Do(func() error {
		onCore = c.OnCore()
		return nil
	}))
	assert.True(t, onCore)
	assert.NotZero(t, lookups.Load())
}

func TestGetGoroutineID(t *testing.T) {
	main := getGoroutineID()
	require.NotZero(t, main)
	assert.Equal(t, main, getGoroutineID())

	other := make(chan uint64)
	go func() { other <- getGoroutineID() }()
	id := <-other
	assert.NotZero(t, id)
	assert.NotEqual(t, main, id)
}
