// Package echo round-trips a completed quote through an echo server
// (RFC 862).
//
// The quote is sent followed by [EndOfQuoteMarker].  Echoed bytes are
// accumulated on the owning core until the marker shows up, at which
// point the echoed quote is printed and the quote buffer is cleared.
package echo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"corebridge/internal/bridge"
	"corebridge/internal/buffer"
	cerrors "corebridge/internal/errors"
	"corebridge/internal/metrics"
	"corebridge/internal/printer"
	"corebridge/internal/retry"
	"corebridge/internal/runloop"
	"corebridge/internal/transport"
	"corebridge/util"
)

// EndOfQuoteMarker terminates every quote sent to the echo server.
const EndOfQuoteMarker = "\n--EOQ--\n"

// Conn is the transport an echo Client drives.  *transport.Client
// satisfies it.
type Conn interface {
	Start(ctx context.Context, address string) error
	State() transport.ConnState
	PeekAvailable() int
	PeekBuffer(max int) []byte
	PeekConsume(n int) int
	LocalAddr() net.Addr
	Shutdown() error
}

// Writer is the synchronous write path.  *transport.Writer satisfies it.
// OnAck, CheckTimeout and Reset are only called from the owning core.
type Writer interface {
	WriteString(s string) (int, error)
	OnAck(n int)
	CheckTimeout(now time.Time) bool
	Reset()
}

// Options configures a Client.
type Options struct {
	Printer *printer.Printer
	// Breaker pauses round-trips after repeated failures; may be nil.
	Breaker *retry.CircuitBreaker
	// OnDelivered runs on the owning core after an echoed quote was
	// printed and the buffer cleared.
	OnDelivered func()
	Now         func() time.Time
	Metrics     *metrics.Collector
}

// Client is the echo round-trip state.
type Client struct {
	core        *runloop.Core
	quote       *buffer.Quote
	printer     *printer.Printer
	breaker     *retry.CircuitBreaker
	onDelivered func()
	now         func() time.Time
	logger      *util.Logger
	metrics     *metrics.Collector

	conn   Conn
	writer Writer

	awaiting  atomic.Bool
	connected atomic.Bool

	// confined to core
	acc strings.Builder

	onConnected *bridge.Perpetual[net.Addr]
	onReceived  *bridge.Perpetual[int]
	onClosed    *bridge.Perpetual[struct{}]
	onError     *bridge.Perpetual[error]
	onPoll      *bridge.Perpetual[time.Time]
	onAck       *bridge.Perpetual[int]
}

// New creates an echo client whose handlers run on the quote buffer's
// core.
func New(quote *buffer.Quote, opts Options) *Client {
	core := quote.Core()
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	c := &Client{
		core:        core,
		quote:       quote,
		printer:     opts.Printer,
		breaker:     opts.Breaker,
		onDelivered: opts.OnDelivered,
		now:         now,
		logger:      core.Logger(),
		metrics:     opts.Metrics,
	}
	c.onConnected = bridge.NewPerpetual(core, c.Connected)
	c.onReceived = bridge.NewPerpetual(core, c.Received)
	c.onClosed = bridge.NewPerpetual(core, func(struct{}) { c.Closed() })
	c.onError = bridge.NewPerpetual(core, c.Error)
	c.onPoll = bridge.NewPerpetual(core, c.Poll)
	c.onAck = bridge.NewPerpetual(core, c.Ack)
	return c
}

// Callbacks returns the notifications to register with the transport.
// The echo server never closes first, so FIN is not handled.
func (c *Client) Callbacks() transport.Callbacks {
	return transport.Callbacks{
		OnConnected: c.onConnected,
		OnReceived:  c.onReceived,
		OnClosed:    c.onClosed,
		OnError:     c.onError,
		OnPoll:      c.onPoll,
		OnAck:       c.onAck,
	}
}

// Attach sets the transport and its writer.  It must be called before
// the first Connect.
func (c *Client) Attach(conn Conn, w Writer) {
	c.conn = conn
	c.writer = w
}

// Unregister detaches all handlers.
func (c *Client) Unregister() {
	c.onConnected.Unregister()
	c.onReceived.Unregister()
	c.onClosed.Unregister()
	c.onError.Unregister()
	c.onPoll.Unregister()
	c.onAck.Unregister()
}

// Awaiting reports whether a sent quote has not been echoed yet.
func (c *Client) Awaiting() bool { return c.awaiting.Load() }

// IsConnected reports whether the echo connection is up.
func (c *Client) IsConnected() bool { return c.connected.Load() }

// Connect dials address unless a connection is up, being dialled, or the
// breaker is open.  It never blocks.
func (c *Client) Connect(ctx context.Context, address string) error {
	if c.conn.State() != transport.Disconnected {
		return nil
	}
	if err := c.allow(); err != nil {
		return err
	}
	if err := c.conn.Start(ctx, address); err != nil && !errors.Is(err, cerrors.ErrAlreadyConnected) {
		return err
	}
	return nil
}

// Send writes the completed quote followed by the marker.  It reports
// false without error when there is nothing to send or a round-trip is
// already outstanding.  Callers must only Send while the quote is known
// complete, so the query does not contend with the receive handlers.
func (c *Client) Send() (bool, error) {
	if !c.connected.Load() || c.awaiting.Load() {
		return false, nil
	}
	if err := c.allow(); err != nil {
		return false, err
	}
	text, complete, err := c.quote.Snapshot()
	if err != nil {
		return false, fmt.Errorf("reading quote: %w", err)
	}
	if !complete || text == "" {
		return false, nil
	}

	c.awaiting.Store(true)
	if _, err := c.writer.WriteString(text + EndOfQuoteMarker); err != nil {
		c.awaiting.Store(false)
		c.failure()
		return false, fmt.Errorf("sending quote: %w", err)
	}
	c.logger.Debug("echo: sent %d byte quote", len(text))
	return true, nil
}

func (c *Client) allow() error {
	if c.breaker == nil {
		return nil
	}
	return c.breaker.Allow(c.now())
}

func (c *Client) failure() {
	if c.breaker != nil {
		c.breaker.Failure(c.now())
	}
}

// ── Handlers (owning core) ───────────────────────────────────────────

// Connected resets the round-trip state for a new connection.
func (c *Client) Connected(local net.Addr) {
	c.writer.Reset()
	c.acc.Reset()
	c.awaiting.Store(false)
	c.connected.Store(true)
	c.print("[INFO] Echo client connected. Local IP: %s", hostOf(local))
}

// Received accumulates everything available and completes the round-trip
// once the marker has been echoed.  Data following the marker is kept.
func (c *Client) Received(int) {
	avail := c.conn.PeekAvailable()
	if avail == 0 {
		return
	}
	chunk := c.conn.PeekBuffer(avail)
	c.acc.Write(chunk)
	c.conn.PeekConsume(len(chunk))

	for {
		acc := c.acc.String()
		i := strings.Index(acc, EndOfQuoteMarker)
		if i < 0 {
			return
		}
		// Bytes after the marker start the next echo.
		c.acc.Reset()
		c.acc.WriteString(acc[i+len(EndOfQuoteMarker):])
		c.complete(acc[:i])
	}
}

// complete finishes the outstanding round-trip with the echoed text.
func (c *Client) complete(text string) {
	if !c.awaiting.Load() {
		c.logger.Debug("echo: unsolicited marker dropped")
		return
	}
	c.print("%s", text)
	if err := c.quote.Set(""); err != nil {
		c.logger.Warn("echo: clearing quote: %v", err)
	}
	c.awaiting.Store(false)
	c.metrics.EchoCompleted()
	if c.breaker != nil {
		c.breaker.Success()
	}
	if c.onDelivered != nil {
		c.onDelivered()
	}
}

// Closed marks the connection down.  An outstanding round-trip fails.
func (c *Client) Closed() {
	c.connected.Store(false)
	c.acc.Reset()
	if c.awaiting.Swap(false) {
		c.failure()
		c.notify("echo connection closed before the quote came back")
	}
}

// Error reports a transport failure.
func (c *Client) Error(err error) {
	c.connected.Store(false)
	c.awaiting.Store(false)
	c.acc.Reset()
	c.failure()
	c.metrics.RecordError(err.Error())
	c.notify(fmt.Sprintf("Echo client error: %v", err))
}

// Poll checks the writer for unacknowledged data.
func (c *Client) Poll(now time.Time) {
	if c.writer.CheckTimeout(now) {
		c.logger.Debug("echo: write timed out")
	}
}

// Ack forwards acknowledged bytes to the writer.
func (c *Client) Ack(n int) {
	c.writer.OnAck(n)
}

// WriteFailed handles a failed or timed-out write.  The connection is
// dropped so the next Connect starts clean.
func (c *Client) WriteFailed(f transport.WriteFailure) {
	c.logger.Debug("echo: write failed with %v, %d bytes written", f.Err, f.Written)
	if c.awaiting.Swap(false) {
		c.failure()
	}
	c.notify(fmt.Sprintf("Echo write failed: %v", f.Err))
	if err := c.conn.Shutdown(); err != nil {
		c.logger.Debug("echo: shutdown: %v", err)
	}
}

func (c *Client) print(format string, args ...interface{}) {
	if c.printer == nil {
		return
	}
	if err := c.printer.Printf(format, args...); err != nil {
		c.logger.Debug("echo: print dropped: %v", err)
	}
}

func (c *Client) notify(msg string) {
	if c.printer == nil {
		c.logger.Warn("%s", msg)
		return
	}
	if err := c.printer.Notify("echo", msg); err != nil {
		c.logger.Debug("echo: %v", err)
	}
}

func hostOf(a net.Addr) string {
	if a == nil {
		return "unknown"
	}
	return util.HostOf(a.String())
}
