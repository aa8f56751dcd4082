package retry

import (
	"sync"
	"time"
)

// Gate paces attempts made from a periodic loop.  Instead of sleeping,
// the loop asks Ready on every tick; each reported failure pushes the
// next permitted attempt out by the backoff delay.  Safe for concurrent
// use: failures are usually reported from another core than the one
// polling Ready.
type Gate struct {
	backoff *Backoff

	mu        sync.Mutex
	failures  int
	notBefore time.Time
}

// NewGate creates an open gate paced by b (nil uses DefaultBackoff).
func NewGate(b *Backoff) *Gate {
	if b == nil {
		b = DefaultBackoff()
	}
	return &Gate{backoff: b}
}

// Ready reports whether an attempt is permitted at now.  With a
// MaxAttempts budget, Ready stays false once the budget is spent until
// Reset.
func (g *Gate) Ready(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.exhausted() {
		return false
	}
	return !now.Before(g.notBefore)
}

// Exhausted reports whether the attempt budget is spent.
func (g *Gate) Exhausted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.exhausted()
}

func (g *Gate) exhausted() bool {
	return g.backoff.MaxAttempts > 0 && g.failures >= g.backoff.MaxAttempts
}

// Fail records a failed attempt at now and returns the wait before the
// next one.
func (g *Gate) Fail(now time.Time) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures++
	wait := g.backoff.wait(g.failures)
	g.notBefore = now.Add(wait)
	return wait
}

// Reset clears the failure history after a success.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures = 0
	g.notBefore = time.Time{}
}

// Failures returns the number of consecutive failures.
func (g *Gate) Failures() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failures
}

// NextAttempt returns the earliest time Ready will permit an attempt.
func (g *Gate) NextAttempt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.notBefore
}
