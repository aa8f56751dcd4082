// Package runloop implements the execution contexts ("cores") that every
// bridge dispatches onto.
//
// A Core is one goroutine locked to an OS thread, optionally pinned to a
// CPU, that runs submitted tasks one at a time in submission order.  The
// queue is bounded; a full queue is a reported failure, never a block.
package runloop

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"

	cerrors "corebridge/internal/errors"
	"corebridge/internal/metrics"
	"corebridge/util"
)

// Task is a unit of work run on a core.
type Task func()

// item is a queued task.  abandon, if set, is called instead of run when
// the queue is discarded without a loop to drain it.
type item struct {
	run     Task
	abandon func()
}

// State is the lifecycle state of a Core.
type State int32

const (
	StateNew State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// DefaultQueueDepth is the run queue capacity used when Options leaves it
// unset.
const DefaultQueueDepth = 32

// NoPin disables CPU pinning.
const NoPin = -1

// Options configures a Core.
type Options struct {
	QueueDepth int                // run queue capacity; <= 0 uses DefaultQueueDepth
	CPU        int                // CPU to pin the loop thread to, or NoPin
	Logger     *util.Logger       // parent logger; the core logs as "c<id>"
	Metrics    *metrics.Collector // may be nil
}

// Core is one execution context.  All methods are safe for concurrent use.
type Core struct {
	id      int
	cpu     int
	queue   chan item
	logger  *util.Logger
	metrics *metrics.Collector

	// mu orders sends on queue against its close in Shutdown.
	mu     sync.RWMutex
	closed bool

	state     atomic.Int32
	goid      atomic.Uint64
	busy      atomic.Bool // the loop is inside a task
	startOnce sync.Once
	startErr  error
	done      chan struct{}
}

// New creates a stopped core.  Tasks submitted before [Core.Start] are
// queued and run once the loop starts.
func New(id int, opts Options) *Core {
	depth := opts.QueueDepth
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	logger := opts.Logger
	if logger == nil {
		logger = util.NewLogger(0)
		logger.SetOutput(io.Discard)
	}
	return &Core{
		id:      id,
		cpu:     opts.CPU,
		queue:   make(chan item, depth),
		logger:  logger.Named(fmt.Sprintf("c%d", id)),
		metrics: opts.Metrics,
		done:    make(chan struct{}),
	}
}

// ID returns the core's number.
func (c *Core) ID() int { return c.id }

// Logger returns the core's tagged logger.
func (c *Core) Logger() *util.Logger { return c.logger }

// Metrics returns the collector the core reports to (possibly nil).
func (c *Core) Metrics() *metrics.Collector { return c.metrics }

// State returns the current lifecycle state.
func (c *Core) State() State { return State(c.state.Load()) }

// Pending returns the number of queued, not yet started tasks.
func (c *Core) Pending() int { return len(c.queue) }

// Done is closed once the loop goroutine exited.
func (c *Core) Done() <-chan struct{} { return c.done }

// Start launches the loop goroutine and waits until it is running on its
// locked (and, if requested, pinned) thread.  A pinning failure stops the
// core and is returned.  Calling Start again returns the first result.
func (c *Core) Start(ctx context.Context) error {
	c.startOnce.Do(func() {
		ready := make(chan error, 1)
		go c.run(ready)
		select {
		case err := <-ready:
			c.startErr = err
		case <-ctx.Done():
			c.startErr = ctx.Err()
		}
	})
	return c.startErr
}

func (c *Core) run(ready chan<- error) {
	defer close(c.done)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if c.cpu != NoPin {
		if err := pinToCPU(c.cpu); err != nil {
			c.state.Store(int32(StateStopped))
			c.closeQueue()
			c.discard()
			ready <- fmt.Errorf("c%d: pin to cpu %d: %w", c.id, c.cpu, err)
			return
		}
		c.logger.Verbose("pinned to cpu %d", c.cpu)
	}

	c.goid.Store(getGoroutineID())
	c.state.Store(int32(StateRunning))
	ready <- nil
	c.logger.Debug("run loop started (queue depth %d)", cap(c.queue))

	for it := range c.queue {
		c.exec(it.run)
	}

	c.state.Store(int32(StateStopped))
	c.logger.Debug("run loop stopped")
}

// exec runs one task; a panic is logged and the loop keeps going.
func (c *Core) exec(task Task) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("task panicked: %v", r)
			c.metrics.RecordError(fmt.Sprintf("c%d: task panicked: %v", c.id, r))
		}
	}()
	c.metrics.TaskRun()
	c.busy.Store(true)
	defer c.busy.Store(false)
	task()
}

// discard empties a closed queue that no loop will drain.
func (c *Core) discard() {
	n := 0
	for it := range c.queue {
		if it.abandon != nil {
			it.abandon()
		}
		n++
	}
	if n > 0 {
		c.logger.Warn("discarded %d queued tasks", n)
	}
}

// OnCore reports whether the caller is running on this core's loop.  The
// goroutine id is only looked up while the loop is inside a task.
func (c *Core) OnCore() bool {
	if !c.busy.Load() {
		return false
	}
	id := c.goid.Load()
	return id != 0 && id == goroutineID()
}

// Submit queues task without waiting for it.  It fails with
// [cerrors.ErrQueueFull] when the queue is exhausted and with
// [cerrors.ErrTerminated] once the core is shutting down.
func (c *Core) Submit(task Task) error {
	return cerrors.Dispatch("submit", c.id, c.submit(item{run: task}))
}

func (c *Core) submit(it item) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.metrics.SubmitRejected()
		return cerrors.ErrTerminated
	}
	select {
	case c.queue <- it:
		c.metrics.TaskSubmitted()
		return nil
	default:
		c.metrics.SubmitRejected()
		return cerrors.ErrQueueFull
	}
}

// Do runs fn on the core and blocks until it returned, reporting fn's
// error.  Called from the core itself, fn runs inline.  A panic in fn is
// returned as a [cerrors.PanicError].  If the core stops before fn ran,
// Do fails with [cerrors.ErrTerminated].
func (c *Core) Do(fn func() error) error {
	if c.OnCore() {
		return call(fn)
	}
	result := make(chan error, 1)
	err := c.submit(item{
		run:     func() { result <- call(fn) },
		abandon: func() { result <- cerrors.Dispatch("do", c.id, cerrors.ErrTerminated) },
	})
	if err != nil {
		return cerrors.Dispatch("do", c.id, err)
	}
	return <-result
}

func call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &cerrors.PanicError{Value: r}
		}
	}()
	return fn()
}

// Shutdown stops accepting work, lets the loop finish every queued task
// and waits for it to exit or for ctx to end.  Shutdown must not be
// called from the core itself.
func (c *Core) Shutdown(ctx context.Context) error {
	if c.State() == StateRunning {
		c.state.Store(int32(StateStopping))
	}
	c.closeQueue()
	if c.goid.Load() == 0 && c.State() == StateNew {
		// Never started: nothing will drain the queue.
		c.state.Store(int32(StateStopped))
		c.discard()
		return nil
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("c%d shutdown: %w", c.id, ctx.Err())
	}
}

func (c *Core) closeQueue() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.queue)
	}
}
