// Package bridge carries work from any goroutine onto the core that owns
// a resource.
//
// There are exactly three kinds of bridge:
//
//   - [Sync] runs a payload against a core-confined resource and blocks
//     the caller until the owning core has run it.
//   - [Perpetual] is registered once and delivers every fired workload to
//     its callback on the owning core, in firing order, never overlapping.
//   - [Ephemeral] is a one-shot handler that owns itself, runs exactly
//     once and is released on the owning core after its callback.
//
// No bridge blocks inside the run loop and none retries: submission
// failures are returned to the caller as [cerrors.DispatchError].
package bridge

import (
	"fmt"

	cerrors "corebridge/internal/errors"
	"corebridge/internal/runloop"
)

// Kind identifies one of the three bridge variants.
type Kind int

const (
	KindSync Kind = iota
	KindPerpetual
	KindEphemeral
)

func (k Kind) String() string {
	switch k {
	case KindSync:
		return "sync"
	case KindPerpetual:
		return "perpetual"
	case KindEphemeral:
		return "ephemeral"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Bridge is implemented by *Sync, *Perpetual and *Ephemeral only.
type Bridge interface {
	// Core returns the owning execution context.
	Core() *runloop.Core
	// Kind returns the variant.
	Kind() Kind

	sealed()
}

// redispatch re-labels a failure reported by the run loop with the
// bridge operation that caused it.
func redispatch(op string, core *runloop.Core, err error) error {
	var de *cerrors.DispatchError
	if cerrors.As(err, &de) {
		return cerrors.Dispatch(op, de.Core, de.Err)
	}
	return cerrors.Dispatch(op, core.ID(), err)
}
