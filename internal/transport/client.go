package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	cerrors "corebridge/internal/errors"
	"corebridge/internal/metrics"
	"corebridge/internal/session"
	"corebridge/util"
)

// ConnState is the connection state of a Client.
type ConnState int32

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("connstate(%d)", int32(s))
	}
}

// DefaultTxDepth is the transmit queue capacity used when ClientOptions
// leaves it unset.
const DefaultTxDepth = 16

// ClientOptions configures a Client.
type ClientOptions struct {
	Name         string        // log tag, e.g. "qotd"
	PollInterval time.Duration // OnPoll period; <= 0 disables polling
	TxDepth      int           // transmit queue capacity
	Logger       *util.Logger
	Metrics      *metrics.Collector
}

// link is the per-connection state of a Client.
type link struct {
	sess *session.Session
	tx   chan []byte
}

// Client is a reconnectable TCP client with peek/consume receive
// semantics.
type Client struct {
	dialer  Dialer
	cb      Callbacks
	poll    time.Duration
	txDepth int
	logger  *util.Logger
	metrics *metrics.Collector

	rx     RxBuffer
	state  atomic.Int32
	mu     sync.Mutex
	link   *link
	closed bool
	wg     sync.WaitGroup // dials in flight and stack goroutines
	writer *Writer

	life context.Context // cancelled by Close
	end  context.CancelFunc
}

// NewClient creates a disconnected client that dials through d and
// raises cb.
func NewClient(d Dialer, cb Callbacks, opts ClientOptions) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = util.NewLogger(0)
		logger.SetOutput(io.Discard)
	}
	if opts.Name != "" {
		logger = logger.Named(opts.Name)
	}
	depth := opts.TxDepth
	if depth <= 0 {
		depth = DefaultTxDepth
	}
	life, end := context.WithCancel(context.Background())
	return &Client{
		dialer:  d,
		cb:      cb,
		poll:    opts.PollInterval,
		txDepth: depth,
		logger:  logger,
		metrics: opts.Metrics,
		life:    life,
		end:     end,
	}
}

// State returns the connection state.
func (c *Client) State() ConnState { return ConnState(c.state.Load()) }

// Connect dials address and starts the stack goroutines.  It fails with
// [cerrors.ErrAlreadyConnected] while a connection is up or being dialled
// and with [cerrors.ErrClientClosed] after Close.  OnConnected is raised
// before any data notification.
func (c *Client) Connect(ctx context.Context, address string) error {
	if err := c.enter(); err != nil {
		return err
	}
	defer c.wg.Done()
	return c.connect(ctx, address)
}

// enter counts a dial in the wait group unless the client is closed.
func (c *Client) enter() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return cerrors.ErrClientClosed
	}
	c.wg.Add(1)
	return nil
}

func (c *Client) connect(ctx context.Context, address string) error {
	if !c.state.CompareAndSwap(int32(Disconnected), int32(Connecting)) {
		return cerrors.ErrAlreadyConnected
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(c.life, cancel)()

	c.logger.Verbose("connecting to %s", address)
	conn, err := c.dialer.Dial(ctx, "tcp", address)
	if err != nil {
		c.state.Store(int32(Disconnected))
		if c.life.Err() != nil {
			return cerrors.ErrClientClosed
		}
		nerr := cerrors.Wrap("dial", address, err)
		c.metrics.RecordError(nerr.Error())
		return nerr
	}

	l := &link{sess: session.New(conn, address), tx: make(chan []byte, c.txDepth)}
	c.rx.Reset()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close() //nolint:errcheck
		c.state.Store(int32(Disconnected))
		c.logger.Verbose("dropped connection to %s completed after close", address)
		return cerrors.ErrClientClosed
	}
	c.link = l
	c.mu.Unlock()
	c.state.Store(int32(Connected))
	c.metrics.ConnectionOpened()
	c.logger.Verbose("connected to %s from %s (session %d)", conn.RemoteAddr(), conn.LocalAddr(), l.sess.ID)

	c.notify("connected", fire(c.cb.OnConnected, conn.LocalAddr()))

	c.wg.Add(3)
	go c.reader(l)
	go c.sender(l)
	go c.poller(l)
	return nil
}

// Start dials address on a new goroutine.  A dial failure is raised as
// OnError.  Start itself only fails when a connection is already up or
// the client is closed.
func (c *Client) Start(ctx context.Context, address string) error {
	if c.State() != Disconnected {
		return cerrors.ErrAlreadyConnected
	}
	if err := c.enter(); err != nil {
		return err
	}
	go func() {
		defer c.wg.Done()
		err := c.connect(ctx, address)
		if err != nil && !errors.Is(err, cerrors.ErrAlreadyConnected) && !errors.Is(err, cerrors.ErrClientClosed) {
			c.logger.Verbose("connect failed: %v", err)
			c.notify("error", fire(c.cb.OnError, err))
		}
	}()
	return nil
}

func (c *Client) notify(what string, err error) {
	if err != nil {
		c.logger.Warn("%s notification not delivered: %v", what, err)
	}
}

func (c *Client) reader(l *link) {
	defer c.wg.Done()
	defer c.teardown(l)

	for {
		buf := util.GetBuf()
		n, err := l.sess.Conn.Read(*buf)
		if n > 0 {
			avail := c.rx.write((*buf)[:n])
			c.metrics.BytesReceived(int64(n))
			c.notify("received", fire(c.cb.OnReceived, avail))
		}
		util.PutBuf(buf)

		if err == nil {
			continue
		}
		switch {
		case errors.Is(err, io.EOF):
			c.logger.Debug("remote closed (%d bytes undrained)", c.rx.Available())
			c.notify("fin", fire(c.cb.OnFin, &c.rx))
		case l.sess.Closed() || util.IsClosed(err):
			// Local shutdown.
		default:
			nerr := cerrors.Wrap("read", l.sess.Addr, err)
			c.metrics.RecordError(nerr.Error())
			c.notify("error", fire[error](c.cb.OnError, nerr))
		}
		return
	}
}

func (c *Client) sender(l *link) {
	defer c.wg.Done()
	for {
		select {
		case <-l.sess.Done():
			return
		case data := <-l.tx:
			n, err := l.sess.Conn.Write(data)
			if n > 0 {
				c.metrics.BytesSent(int64(n))
				c.notify("ack", fire(c.cb.OnAck, n))
			}
			if err != nil {
				if !l.sess.Closed() {
					nerr := cerrors.Wrap("write", l.sess.Addr, err)
					c.metrics.RecordError(nerr.Error())
					c.notify("error", fire[error](c.cb.OnError, nerr))
					l.sess.Close() //nolint:errcheck
				}
				return
			}
		}
	}
}

func (c *Client) poller(l *link) {
	defer c.wg.Done()
	if c.poll <= 0 {
		return
	}
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		select {
		case <-l.sess.Done():
			return
		case now := <-ticker.C:
			c.notify("poll", fire(c.cb.OnPoll, now))
		}
	}
}

// teardown runs once per connection, from its reader goroutine.  OnClosed
// is raised while the client still refuses to reconnect, so handlers see
// it ahead of the next connection's OnConnected.
func (c *Client) teardown(l *link) {
	l.sess.Close() //nolint:errcheck

	c.metrics.ConnectionClosed()
	c.logger.Verbose("session %d closed after %s", l.sess.ID, l.sess.Age(time.Now()).Truncate(time.Millisecond))
	c.notify("closed", fire(c.cb.OnClosed, struct{}{}))

	c.mu.Lock()
	if c.link == l {
		c.link = nil
		c.state.Store(int32(Disconnected))
	}
	c.mu.Unlock()
}

func (c *Client) current() *link {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link
}

// Write queues a copy of data for transmission and returns without
// waiting for the network.  OnAck reports the bytes once written.
func (c *Client) Write(data []byte) error {
	l := c.current()
	if l == nil || l.sess.Closed() {
		return cerrors.ErrNotConnected
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	select {
	case l.tx <- buf:
		return nil
	case <-l.sess.Done():
		return cerrors.ErrNotConnected
	default:
		return cerrors.ErrQueueFull
	}
}

// PeekAvailable returns the number of received, unconsumed bytes.
func (c *Client) PeekAvailable() int { return c.rx.Available() }

// PeekBuffer returns a copy of up to max unconsumed bytes.
func (c *Client) PeekBuffer(max int) []byte { return c.rx.Peek(max) }

// PeekConsume discards n received bytes and returns how many were
// discarded.
func (c *Client) PeekConsume(n int) int { return c.rx.Consume(n) }

// LocalAddr returns the local address of the current connection, or nil.
func (c *Client) LocalAddr() net.Addr {
	if l := c.current(); l != nil {
		return l.sess.LocalAddr()
	}
	return nil
}

// Shutdown closes the current connection.  It returns at once; OnClosed
// follows from the reader goroutine.  Shutdown without a connection is a
// no-op.
func (c *Client) Shutdown() error {
	l := c.current()
	if l == nil {
		return nil
	}
	if err := l.sess.Close(); err != nil && !util.IsClosed(err) {
		return cerrors.Wrap("shutdown", l.sess.Addr, err)
	}
	return nil
}

// Close shuts the connection down, cancels any dial in flight and waits
// for the stack goroutines to exit or for ctx to end.  A closed client
// does not connect again.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.end()

	if err := c.Shutdown(); err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Writer returns the writer attached with [Client.NewWriter], or nil.
func (c *Client) Writer() *Writer { return c.writer }
