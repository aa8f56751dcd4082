package runloop

import (
	"context"

	cerrors "corebridge/internal/errors"
	"corebridge/internal/metrics"
	"corebridge/util"
)

// Pair owns the two execution contexts of the process.
type Pair struct {
	C0 *Core
	C1 *Core
}

// PairOptions configures both cores of a Pair.
type PairOptions struct {
	QueueDepth int
	Pin        bool // pin c0 to CPU 0 and c1 to CPU 1
	Logger     *util.Logger
	Metrics    *metrics.Collector
}

// NewPair creates both cores, stopped.
func NewPair(opts PairOptions) *Pair {
	mk := func(id int) *Core {
		cpu := NoPin
		if opts.Pin {
			cpu = id
		}
		return New(id, Options{
			QueueDepth: opts.QueueDepth,
			CPU:        cpu,
			Logger:     opts.Logger,
			Metrics:    opts.Metrics,
		})
	}
	return &Pair{C0: mk(0), C1: mk(1)}
}

// Core returns core id (0 or 1), or nil.
func (p *Pair) Core(id int) *Core {
	switch id {
	case 0:
		return p.C0
	case 1:
		return p.C1
	default:
		return nil
	}
}

// Start starts c0 then c1.  If either fails, both are shut down and the
// error is returned.
func (p *Pair) Start(ctx context.Context) error {
	if err := p.C0.Start(ctx); err != nil {
		p.Shutdown(ctx) //nolint:errcheck
		return err
	}
	if err := p.C1.Start(ctx); err != nil {
		p.Shutdown(ctx) //nolint:errcheck
		return err
	}
	return nil
}

// Shutdown drains and stops both cores.
func (p *Pair) Shutdown(ctx context.Context) error {
	return cerrors.Join(p.C1.Shutdown(ctx), p.C0.Shutdown(ctx))
}
