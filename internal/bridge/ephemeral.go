package bridge

import (
	"sync/atomic"

	"corebridge/internal/runloop"
)

var outstanding atomic.Int64

// Outstanding returns the number of one-shot handlers spawned but not
// yet released.
func Outstanding() int64 { return outstanding.Load() }

// Ephemeral is a one-shot handler.  It holds the only handle to itself
// from [Spawn] until its callback has finished, then the run loop's
// post-callback step takes that handle back and releases it on the
// owning core.
type Ephemeral[T any] struct {
	core  *runloop.Core
	value T
	fn    func(T)
	self  *Ephemeral[T]
}

func (e *Ephemeral[T]) Core() *runloop.Core { return e.core }
func (e *Ephemeral[T]) Kind() Kind          { return KindEphemeral }
func (e *Ephemeral[T]) sealed()             {}

// Spawn creates a one-shot handler that runs fn(value) once on core.
// value is moved into the handler.  If the handler cannot be scheduled it
// is released immediately and the error is returned; fn never runs.
func Spawn[T any](core *runloop.Core, value T, fn func(T)) error {
	e := &Ephemeral[T]{core: core, value: value, fn: fn}
	e.self = e
	outstanding.Add(1)
	core.Metrics().EphemeralSpawned()

	if err := core.Submit(e.run); err != nil {
		e.release()
		return redispatch("spawn", core, err)
	}
	return nil
}

// Once spawns a one-shot handler without a value.
func Once(core *runloop.Core, fn func()) error {
	return Spawn(core, struct{}{}, func(struct{}) { fn() })
}

func (e *Ephemeral[T]) run() {
	// Release happens even when fn panics; the run loop logs the panic.
	defer e.release()
	e.fn(e.value)
}

func (e *Ephemeral[T]) release() {
	if e.self == nil {
		return
	}
	var zero T
	e.value = zero
	e.fn = nil
	e.self = nil
	outstanding.Add(-1)
	e.core.Metrics().EphemeralReleased()
}
