// Package qotd receives one quote per connection from a QOTD server
// (RFC 865) into a core-confined quote buffer.
//
// The server sends an arbitrary byte stream and closes the connection.
// Received data is consumed in chunks of at most Threshold bytes; bytes
// still buffered when the server's FIN arrives are drained in the same
// chunk size before the quote is marked complete.
//
//	Idle → Receiving → Draining → Complete → Idle
//
// All handlers run on the core that owns the quote buffer.  Other
// goroutines observe the receiver only through [Receiver.State] and
// [Receiver.Active].
package qotd

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"corebridge/internal/bridge"
	"corebridge/internal/buffer"
	"corebridge/internal/metrics"
	"corebridge/internal/printer"
	"corebridge/internal/retry"
	"corebridge/internal/runloop"
	"corebridge/internal/transport"
	"corebridge/util"
)

// DefaultThreshold is the partial-consumption chunk size.
const DefaultThreshold = 64

// State is the receive state of the current quote.
type State int32

const (
	Idle State = iota
	Receiving
	Draining
	Complete
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Receiving:
		return "receiving"
	case Draining:
		return "draining"
	case Complete:
		return "complete"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Conn is the transport a Receiver drives.  *transport.Client
// satisfies it.
type Conn interface {
	Start(ctx context.Context, address string) error
	PeekAvailable() int
	PeekBuffer(max int) []byte
	PeekConsume(n int) int
	LocalAddr() net.Addr
	Shutdown() error
}

// Rx is the receive buffer handed over with the FIN notification.
type Rx interface {
	Available() int
	Peek(max int) []byte
	Consume(n int) int
	Reset()
}

// Options configures a Receiver.
type Options struct {
	Threshold int // chunk size; <= 0 uses DefaultThreshold
	Printer   *printer.Printer
	Gate      *retry.Gate // informed of failed and successful attempts; may be nil
	Now       func() time.Time
	Metrics   *metrics.Collector
}

// Receiver is the QOTD receive state machine.
type Receiver struct {
	core      *runloop.Core
	quote     *buffer.Quote
	printer   *printer.Printer
	gate      *retry.Gate
	threshold int
	now       func() time.Time
	logger    *util.Logger
	metrics   *metrics.Collector

	conn    Conn
	state   atomic.Int32
	active  atomic.Bool
	attempt atomic.Uint64

	// confined to core
	fresh   bool
	linked  bool   // a connection is up
	linkFor uint64 // attempt the current connection belongs to

	onConnected *bridge.Perpetual[net.Addr]
	onReceived  *bridge.Perpetual[int]
	onFin       *bridge.Perpetual[*transport.RxBuffer]
	onClosed    *bridge.Perpetual[struct{}]
	onError     *bridge.Perpetual[error]
}

// New creates a receiver whose handlers run on the quote buffer's core.
func New(quote *buffer.Quote, opts Options) *Receiver {
	core := quote.Core()
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	r := &Receiver{
		core:      core,
		quote:     quote,
		printer:   opts.Printer,
		gate:      opts.Gate,
		threshold: threshold,
		now:       now,
		logger:    core.Logger(),
		metrics:   opts.Metrics,
	}
	r.onConnected = bridge.NewPerpetual(core, r.Connected)
	r.onReceived = bridge.NewPerpetual(core, r.Received)
	r.onFin = bridge.NewPerpetual(core, func(rx *transport.RxBuffer) { r.Fin(rx) })
	r.onClosed = bridge.NewPerpetual(core, func(struct{}) { r.Closed() })
	r.onError = bridge.NewPerpetual(core, r.Error)
	return r
}

// Callbacks returns the notifications to register with the transport.
func (r *Receiver) Callbacks() transport.Callbacks {
	return transport.Callbacks{
		OnConnected: r.onConnected,
		OnReceived:  r.onReceived,
		OnFin:       r.onFin,
		OnClosed:    r.onClosed,
		OnError:     r.onError,
	}
}

// Attach sets the transport.  It must be called before the first Fetch.
func (r *Receiver) Attach(conn Conn) { r.conn = conn }

// Unregister detaches all handlers.
func (r *Receiver) Unregister() {
	r.onConnected.Unregister()
	r.onReceived.Unregister()
	r.onFin.Unregister()
	r.onClosed.Unregister()
	r.onError.Unregister()
}

// State returns the receive state.
func (r *Receiver) State() State { return State(r.state.Load()) }

// Active reports whether a fetch attempt is in progress.
func (r *Receiver) Active() bool { return r.active.Load() }

// Threshold returns the chunk size.
func (r *Receiver) Threshold() int { return r.threshold }

// Begin marks a new attempt.  The state leaves Complete before the
// connection is dialled, so observers stop using the previous quote.
func (r *Receiver) Begin() {
	r.attempt.Add(1)
	r.active.Store(true)
	r.state.Store(int32(Idle))
}

// Fetch begins an attempt and dials address without blocking.
func (r *Receiver) Fetch(ctx context.Context, address string) error {
	r.Begin()
	if err := r.conn.Start(ctx, address); err != nil {
		r.active.Store(false)
		return err
	}
	return nil
}

// Release returns a delivered quote's receiver to Idle.
func (r *Receiver) Release() {
	r.state.CompareAndSwap(int32(Complete), int32(Idle))
}

// ── Handlers (owning core) ───────────────────────────────────────────

// Connected starts a fresh quote.
func (r *Receiver) Connected(local net.Addr) {
	if err := r.quote.Reset(); err != nil {
		r.abort("reset", err)
		return
	}
	r.fresh = true
	r.linked, r.linkFor = true, r.attempt.Load()
	r.state.Store(int32(Receiving))
	r.print("QOTD client connected. Local IP: %s", util.HostOf(addrString(local)))
}

// Received consumes up to Threshold of the available bytes.
func (r *Receiver) Received(int) {
	if r.State() != Receiving {
		return
	}
	avail := r.conn.PeekAvailable()
	if avail == 0 {
		return
	}
	chunk := r.conn.PeekBuffer(min(avail, r.threshold))
	if len(chunk) == 0 {
		return
	}
	if err := r.store(string(chunk)); err != nil {
		r.abort("store", err)
		return
	}
	r.conn.PeekConsume(len(chunk))
	r.logger.Debug("[QOTD] received %d of %d bytes: %.32q", len(chunk), avail, chunk)
}

// Fin drains rx and completes the quote.
func (r *Receiver) Fin(rx Rx) {
	if r.State() != Receiving {
		return
	}
	r.state.Store(int32(Draining))

	remaining := rx.Available()
	if remaining == 0 {
		r.logger.Debug("[QOTD][FIN] no data, quote complete")
	} else {
		r.logger.Debug("[QOTD][FIN] draining %d bytes", remaining)
	}
	for remaining > 0 {
		chunk := rx.Peek(min(remaining, r.threshold))
		if len(chunk) == 0 {
			r.logger.Warn("qotd: receive buffer reported %d bytes but yielded none", remaining)
			break
		}
		if err := r.store(string(chunk)); err != nil {
			r.abort("drain", err)
			return
		}
		rx.Consume(len(chunk))
		remaining -= len(chunk)
	}

	if err := r.quote.MarkComplete(); err != nil {
		r.abort("complete", err)
		return
	}
	rx.Reset()
	r.state.Store(int32(Complete))
	r.metrics.QuoteCompleted()
	if r.gate != nil {
		r.gate.Reset()
	}
	if err := r.conn.Shutdown(); err != nil {
		r.logger.Debug("qotd: shutdown: %v", err)
	}
	r.logger.Debug("[QOTD] drained, quote complete, connection stopped")
}

// Closed ends the attempt.  An incomplete quote returns to Idle.  The
// close of a connection from an earlier attempt is ignored.
func (r *Receiver) Closed() {
	stale := r.stale()
	r.linked = false
	if stale {
		r.logger.Debug("qotd: close of a previous connection ignored")
		return
	}
	r.active.Store(false)
	if r.State() != Complete {
		r.state.Store(int32(Idle))
	}
}

// Error ends the attempt and delays the next one.
func (r *Receiver) Error(err error) {
	if r.stale() {
		r.logger.Debug("qotd: error on a previous connection: %v", err)
		return
	}
	if r.State() == Complete {
		r.active.Store(false)
		r.logger.Debug("qotd: error after completion: %v", err)
		return
	}
	r.fail(fmt.Sprintf("QOTD client error: %v", err))
}

// stale reports whether the live connection predates the current attempt.
func (r *Receiver) stale() bool {
	return r.linked && r.linkFor != r.attempt.Load()
}

// store writes chunk to the quote: Set for the first chunk of a
// connection, Append afterwards.
func (r *Receiver) store(chunk string) error {
	if r.fresh {
		if err := r.quote.Set(chunk); err != nil {
			return err
		}
		r.fresh = false
		return nil
	}
	return r.quote.Append(chunk)
}

// abort gives up on the current quote after a buffer mutation failed.
func (r *Receiver) abort(step string, err error) {
	r.fail(fmt.Sprintf("QOTD quote aborted (%s): %v", step, err))
}

func (r *Receiver) fail(msg string) {
	r.state.Store(int32(Idle))
	r.active.Store(false)
	r.metrics.RecordError(msg)
	if r.gate != nil {
		wait := r.gate.Fail(r.now())
		msg += fmt.Sprintf(", retrying in %s", wait.Truncate(time.Millisecond))
	}
	r.notify(msg)
	if err := r.conn.Shutdown(); err != nil {
		r.logger.Debug("qotd: shutdown: %v", err)
	}
}

func (r *Receiver) print(format string, args ...interface{}) {
	if r.printer == nil {
		return
	}
	if err := r.printer.Printf(format, args...); err != nil {
		r.logger.Debug("qotd: print dropped: %v", err)
	}
}

func (r *Receiver) notify(msg string) {
	if r.printer == nil {
		r.logger.Warn("%s", msg)
		return
	}
	if err := r.printer.Notify("qotd", msg); err != nil {
		r.logger.Debug("qotd: %v", err)
	}
}

func addrString(a net.Addr) string {
	if a == nil {
		return "unknown"
	}
	return a.String()
}
