package bridge

import (
	"fmt"
	"sync"

	cerrors "corebridge/internal/errors"
	"corebridge/internal/runloop"
)

// Perpetual is a persistent event handler bound to one core.  Every
// [Perpetual.Fire] delivers its workload to onWork on the owning core.
//
// Firings are queued in order and drained by a single task, so at most one
// drain task is pending on the core and callbacks of one handler never
// overlap.  The drain task keeps delivering until the queue is empty,
// which keeps every workload ahead of any task submitted after its Fire.
type Perpetual[W any] struct {
	core   *runloop.Core
	onWork func(W)

	mu           sync.Mutex
	pending      []W
	scheduled    bool
	unregistered bool
}

// NewPerpetual registers onWork on core.
func NewPerpetual[W any](core *runloop.Core, onWork func(W)) *Perpetual[W] {
	return &Perpetual[W]{core: core, onWork: onWork}
}

func (p *Perpetual[W]) Core() *runloop.Core { return p.core }
func (p *Perpetual[W]) Kind() Kind          { return KindPerpetual }
func (p *Perpetual[W]) sealed()             {}

// Fire queues w for delivery.  Ownership of w passes to the callback.
//
// When the drain task cannot be submitted the error is returned and w
// stays queued; it is delivered, in order, by the next successful Fire.
func (p *Perpetual[W]) Fire(w W) error {
	p.mu.Lock()
	if p.unregistered {
		p.mu.Unlock()
		return cerrors.Dispatch("fire", p.core.ID(), cerrors.ErrUnregistered)
	}
	p.pending = append(p.pending, w)
	if p.scheduled {
		p.mu.Unlock()
		return nil
	}
	p.scheduled = true
	p.mu.Unlock()

	if err := p.core.Submit(p.drain); err != nil {
		p.mu.Lock()
		p.scheduled = false
		p.mu.Unlock()
		return redispatch("fire", p.core, err)
	}
	return nil
}

func (p *Perpetual[W]) drain() {
	for {
		p.mu.Lock()
		if p.unregistered || len(p.pending) == 0 {
			p.scheduled = false
			p.mu.Unlock()
			return
		}
		w := p.pending[0]
		var zero W
		p.pending[0] = zero
		p.pending = p.pending[1:]
		p.mu.Unlock()

		p.invoke(w)
	}
}

func (p *Perpetual[W]) invoke(w W) {
	defer func() {
		if r := recover(); r != nil {
			p.core.Logger().Error("event handler panicked: %v", r)
			p.core.Metrics().RecordError(fmt.Sprintf("c%d: event handler panicked: %v", p.core.ID(), r))
		}
	}()
	p.onWork(w)
}

// Pending returns the number of fired, undelivered workloads.
func (p *Perpetual[W]) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Unregister detaches the handler.  Queued workloads are dropped and
// later firings fail with [cerrors.ErrUnregistered].  A callback already
// running is not interrupted.
func (p *Perpetual[W]) Unregister() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unregistered = true
	p.pending = nil
}

// Registered reports whether the handler still accepts firings.
func (p *Perpetual[W]) Registered() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.unregistered
}
