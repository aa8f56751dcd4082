package transport

import (
	"fmt"
	"io"
	"time"

	"corebridge/internal/bridge"
	cerrors "corebridge/internal/errors"
	"corebridge/internal/runloop"
)

// PayloadKind selects the source of a WritePayload.
type PayloadKind int

const (
	PayloadBuffer PayloadKind = iota
	PayloadString
	PayloadStream
)

// WritePayload is one write request.  Written receives the number of
// bytes queued for transmission.
type WritePayload struct {
	Kind    PayloadKind
	Buffer  []byte
	Text    string
	Stream  io.Reader
	Written int
}

// WriteFailure reports data that could not be delivered.
type WriteFailure struct {
	Data    []byte // unsent data, if known
	Written int    // bytes queued before the failure
	Err     error
}

// WriterOptions configures a Writer.
type WriterOptions struct {
	// Timeout is how long queued bytes may stay unacknowledged.
	// Zero disables timeout detection.
	Timeout time.Duration
	// OnFailure runs as a one-shot handler on the writer's core for
	// every failed or timed-out write.
	OnFailure func(WriteFailure)
	// Now overrides the clock.
	Now func() time.Time
}

// Writer is the synchronous write path of a Client, owned by one core.
// Writes from any goroutine run on that core through a [bridge.Sync];
// the acknowledgement bookkeeping is confined to the core, so
// [Writer.OnAck] and [Writer.CheckTimeout] must be called from handlers
// running there.
type Writer struct {
	client *Client
	core   *runloop.Core
	sync   *bridge.Sync[WritePayload]
	opts   WriterOptions

	// confined to core
	unacked  int
	progress time.Time
	pending  []byte
}

// NewWriter attaches a writer owned by core to the client.
func (c *Client) NewWriter(core *runloop.Core, opts WriterOptions) *Writer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	w := &Writer{client: c, core: core, opts: opts}
	w.sync = bridge.NewSync(core, w.execute)
	c.writer = w
	return w
}

// Write runs p on the owning core.
func (w *Writer) Write(p *WritePayload) error {
	return w.sync.Execute(p)
}

// WriteString writes s.
func (w *Writer) WriteString(s string) (int, error) {
	p := WritePayload{Kind: PayloadString, Text: s}
	err := w.Write(&p)
	return p.Written, err
}

// WriteBuffer writes b.
func (w *Writer) WriteBuffer(b []byte) (int, error) {
	p := WritePayload{Kind: PayloadBuffer, Buffer: b}
	err := w.Write(&p)
	return p.Written, err
}

// WriteFrom writes everything r yields.  r is read on the owning core.
func (w *Writer) WriteFrom(r io.Reader) (int, error) {
	p := WritePayload{Kind: PayloadStream, Stream: r}
	err := w.Write(&p)
	return p.Written, err
}

// execute runs on the owning core.
func (w *Writer) execute(p *WritePayload) error {
	var data []byte
	switch p.Kind {
	case PayloadBuffer:
		data = p.Buffer
	case PayloadString:
		data = []byte(p.Text)
	case PayloadStream:
		if p.Stream == nil {
			return fmt.Errorf("stream payload without reader")
		}
		b, err := io.ReadAll(p.Stream)
		if err != nil {
			return fmt.Errorf("reading stream payload: %w", err)
		}
		data = b
	default:
		return fmt.Errorf("unknown payload kind %d", p.Kind)
	}
	if len(data) == 0 {
		return nil
	}

	if err := w.client.Write(data); err != nil {
		w.report(WriteFailure{Data: data, Err: err})
		return cerrors.Dispatch("write", w.core.ID(), err)
	}
	if w.unacked == 0 {
		w.progress = w.opts.Now()
	}
	w.unacked += len(data)
	w.pending = append(w.pending, data...)
	p.Written = len(data)
	return nil
}

// OnAck records n bytes acknowledged by the network.
func (w *Writer) OnAck(n int) {
	if n > w.unacked {
		n = w.unacked
	}
	w.unacked -= n
	w.pending = w.pending[n:]
	w.progress = w.opts.Now()
}

// Unacked returns the number of queued, unacknowledged bytes.
func (w *Writer) Unacked() int { return w.unacked }

// HasTimedOut reports whether queued bytes went unacknowledged for
// longer than the timeout at now.
func (w *Writer) HasTimedOut(now time.Time) bool {
	return w.opts.Timeout > 0 && w.unacked > 0 && now.Sub(w.progress) >= w.opts.Timeout
}

// CheckTimeout raises a failure report carrying [cerrors.ErrTimeout] and
// forgets the unacknowledged bytes when the write timed out.
func (w *Writer) CheckTimeout(now time.Time) bool {
	if !w.HasTimedOut(now) {
		return false
	}
	unsent := make([]byte, len(w.pending))
	copy(unsent, w.pending)
	w.report(WriteFailure{
		Data:    unsent,
		Written: w.unacked,
		Err:     fmt.Errorf("%w: %d bytes unacknowledged after %s", cerrors.ErrTimeout, w.unacked, w.opts.Timeout),
	})
	w.unacked = 0
	w.pending = nil
	return true
}

// Reset forgets all write bookkeeping, e.g. after a reconnect.
func (w *Writer) Reset() {
	w.unacked = 0
	w.pending = nil
}

func (w *Writer) report(f WriteFailure) {
	if w.opts.OnFailure == nil {
		return
	}
	if err := bridge.Spawn(w.core, f, w.opts.OnFailure); err != nil {
		w.core.Logger().Warn("write failure report dropped: %v (%v)", err, f.Err)
	}
}
