package bridge

import (
	"sync/atomic"

	cerrors "corebridge/internal/errors"
	"corebridge/internal/runloop"
)

// Sync is a blocking request/response bridge over a resource confined to
// one core.  The resource is touched only inside onExecute, which always
// runs on the owning core.
//
// A Sync admits one call at a time: a call arriving while another is in
// flight is rejected with [cerrors.ErrInUse] instead of being queued.
type Sync[P any] struct {
	core      *runloop.Core
	onExecute func(*P) error
	busy      atomic.Bool
}

// NewSync binds onExecute to core.
func NewSync[P any](core *runloop.Core, onExecute func(*P) error) *Sync[P] {
	return &Sync[P]{core: core, onExecute: onExecute}
}

func (s *Sync[P]) Core() *runloop.Core { return s.core }
func (s *Sync[P]) Kind() Kind          { return KindSync }
func (s *Sync[P]) sealed()             {}

// Execute runs p on the owning core and returns once it has run, with any
// result slots of p populated.  p must stay valid for the duration of the
// call and is not retained afterwards.  Called from the owning core,
// Execute runs inline.
func (s *Sync[P]) Execute(p *P) error {
	if !s.busy.CompareAndSwap(false, true) {
		s.core.Metrics().SyncContended()
		return cerrors.Dispatch("execute", s.core.ID(), cerrors.ErrInUse)
	}
	defer s.busy.Store(false)

	err := s.core.Do(func() error { return s.onExecute(p) })
	if cerrors.IsSubmitFailure(err) {
		return redispatch("execute", s.core, err)
	}
	return err
}

// Busy reports whether a call is currently in flight.
func (s *Sync[P]) Busy() bool { return s.busy.Load() }
