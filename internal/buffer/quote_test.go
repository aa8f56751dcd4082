package buffer

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "corebridge/internal/errors"
	"corebridge/internal/runloop"
	"corebridge/util"
)

func newQuote(t *testing.T, logger *util.Logger) (*Quote, *runloop.Core) {
	t.Helper()
	c := runloop.New(1, runloop.Options{CPU: runloop.NoPin, Logger: logger})
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = c.Shutdown(ctx)
	})
	return New(c), c
}

func TestQuote_Operations(t *testing.T) {
	q, c := newQuote(t, nil)
	assert.Same(t, c, q.Core())

	empty, err := q.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)

	require.NoError(t, q.Set("ABCDEFGHIJ"))
	require.NoError(t, q.Append("KLMNO"))
	got, err := q.Get()
	require.NoError(t, err)
	assert.Equal(t, "ABCDEFGHIJKLMNO", got)

	complete, err := q.IsComplete()
	require.NoError(t, err)
	assert.False(t, complete)

	require.NoError(t, q.MarkComplete())
	text, complete, err := q.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "ABCDEFGHIJKLMNO", text)
	assert.True(t, complete)

	require.NoError(t, q.Clear())
	text, complete, err = q.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.True(t, complete, "Clear leaves the completion flag")

	require.NoError(t, q.Set("again"))
	require.NoError(t, q.Reset())
	text, complete, err = q.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.False(t, complete)
}

func TestQuote_SetReplaces(t *testing.T) {
	q, _ := newQuote(t, nil)
	require.NoError(t, q.Set("first"))
	require.NoError(t, q.Set("second"))
	got, err := q.Get()
	require.NoError(t, err)
	assert.Equal(t, "second", got)
}

func TestQuote_GetReturnsCopy(t *testing.T) {
	q, _ := newQuote(t, nil)
	require.NoError(t, q.Set("HELLO"))
	got, err := q.Get()
	require.NoError(t, err)
	require.NoError(t, q.Append(" WORLD"))
	assert.Equal(t, "HELLO", got)
}

func TestQuote_CallsFromOwningCore(t *testing.T) {
	q, c := newQuote(t, nil)
	require.NoError(t, c.Do(func() error {
		if err := q.Set("inline"); err != nil {
			return err
		}
		return q.Append("!")
	}))
	got, err := q.Get()
	require.NoError(t, err)
	assert.Equal(t, "inline!", got)
}

func TestQuote_ContendedCallIsNoop(t *testing.T) {
	var logs bytes.Buffer
	logger := util.NewLogger(3)
	logger.SetOutput(&logs)
	logger.SetTimestamps(false)

	q, c := newQuote(t, logger)
	require.NoError(t, q.Set("keep"))

	// Hold the guard with a call parked behind a blocked task.
	release := make(chan struct{})
	require.NoError(t, c.Submit(func() { <-release }))
	held := make(chan error, 1)
	go func() { held <- q.Append("+held") }()
	require.Eventually(t, q.sync.Busy, 2*time.Second, time.Millisecond)

	err := q.Set("dropped")
	require.ErrorIs(t, err, cerrors.ErrInUse)

	text, complete, err := q.Snapshot()
	require.ErrorIs(t, err, cerrors.ErrInUse)
	assert.Empty(t, text, "contended query reports the zero value")
	assert.False(t, complete)

	close(release)
	require.NoError(t, <-held)
	got, err := q.Get()
	require.NoError(t, err)
	assert.Equal(t, "keep+held", got)

	assert.Contains(t, logs.String(), "[DBG] [c1] Quote.Set failed: execute on c1: resource in use")
}

func TestQuote_ConcurrentAppend(t *testing.T) {
	q, _ := newQuote(t, nil)
	require.NoError(t, q.Set(""))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				err := q.Append("x")
				if err == nil {
					mu.Lock()
					accepted++
					mu.Unlock()
					continue
				}
				assert.ErrorIs(t, err, cerrors.ErrInUse)
			}
		}()
	}
	wg.Wait()

	got, err := q.Get()
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", accepted), got)
}

func TestOp_String(t *testing.T) {
	assert.Equal(t, "MarkComplete", opMarkComplete.String())
	assert.Equal(t, "op(42)", op(42).String())
}
