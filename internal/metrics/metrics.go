// Package metrics provides lightweight, lock-free counters for tracking
// the dispatch layer and the protocol clients built on it.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for one corebridge process.
// A nil Collector is safe to use — all methods become no-ops.
type Collector struct {
	tasksSubmitted    atomic.Int64
	tasksRun          atomic.Int64
	submitsRejected   atomic.Int64
	syncContended     atomic.Int64
	ephemeralSpawned  atomic.Int64
	ephemeralReleased atomic.Int64

	connectionsActive atomic.Int64
	connectionsTotal  atomic.Int64
	bytesIn           atomic.Int64
	bytesOut          atomic.Int64

	quotesCompleted atomic.Int64
	echoesCompleted atomic.Int64
	printsDropped   atomic.Int64
	errorsTotal     atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Dispatch metrics ─────────────────────────────────────────────────

// TaskSubmitted records a task accepted by a core's run queue.
func (c *Collector) TaskSubmitted() {
	if c == nil {
		return
	}
	c.tasksSubmitted.Add(1)
}

// TaskRun records a task executed by a core's run loop.
func (c *Collector) TaskRun() {
	if c == nil {
		return
	}
	c.tasksRun.Add(1)
}

// SubmitRejected records a submission refused by a full or stopped core.
func (c *Collector) SubmitRejected() {
	if c == nil {
		return
	}
	c.submitsRejected.Add(1)
}

// SyncContended records a synchronous call refused by a busy guard.
func (c *Collector) SyncContended() {
	if c == nil {
		return
	}
	c.syncContended.Add(1)
}

// EphemeralSpawned records the creation of a one-shot handler.
func (c *Collector) EphemeralSpawned() {
	if c == nil {
		return
	}
	c.ephemeralSpawned.Add(1)
}

// EphemeralReleased records the release of a one-shot handler.
func (c *Collector) EphemeralReleased() {
	if c == nil {
		return
	}
	c.ephemeralReleased.Add(1)
}

// TasksSubmitted returns the number of accepted submissions.
func (c *Collector) TasksSubmitted() int64 {
	if c == nil {
		return 0
	}
	return c.tasksSubmitted.Load()
}

// SubmitsRejected returns the number of refused submissions.
func (c *Collector) SubmitsRejected() int64 {
	if c == nil {
		return 0
	}
	return c.submitsRejected.Load()
}

// Contentions returns the number of busy-guard rejections.
func (c *Collector) Contentions() int64 {
	if c == nil {
		return 0
	}
	return c.syncContended.Load()
}

// ── Connection metrics ───────────────────────────────────────────────

// ConnectionOpened increments both the active and total counters.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(1)
	c.connectionsTotal.Add(1)
}

// ConnectionClosed decrements the active connection counter.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(-1)
}

// ActiveConnections returns the current number of open connections.
func (c *Collector) ActiveConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsActive.Load()
}

// BytesReceived records n bytes read from the network.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n bytes written to the network.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Protocol metrics ─────────────────────────────────────────────────

// QuoteCompleted records a fully received quote.
func (c *Collector) QuoteCompleted() {
	if c == nil {
		return
	}
	c.quotesCompleted.Add(1)
}

// EchoCompleted records a finished echo round-trip.
func (c *Collector) EchoCompleted() {
	if c == nil {
		return
	}
	c.echoesCompleted.Add(1)
}

// PrintDropped records a print or notification that never reached the
// output device.
func (c *Collector) PrintDropped() {
	if c == nil {
		return
	}
	c.printsDropped.Add(1)
}

// QuotesCompleted returns the number of completed quotes.
func (c *Collector) QuotesCompleted() int64 {
	if c == nil {
		return 0
	}
	return c.quotesCompleted.Load()
}

// EchoesCompleted returns the number of completed echo round-trips.
func (c *Collector) EchoesCompleted() int64 {
	if c == nil {
		return 0
	}
	return c.echoesCompleted.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime            string `json:"uptime"`
	TasksSubmitted    int64  `json:"tasks_submitted"`
	TasksRun          int64  `json:"tasks_run"`
	SubmitsRejected   int64  `json:"submits_rejected"`
	SyncContended     int64  `json:"sync_contended"`
	EphemeralSpawned  int64  `json:"ephemeral_spawned"`
	EphemeralReleased int64  `json:"ephemeral_released"`
	ConnectionsActive int64  `json:"connections_active"`
	ConnectionsTotal  int64  `json:"connections_total"`
	BytesIn           int64  `json:"bytes_in"`
	BytesOut          int64  `json:"bytes_out"`
	QuotesCompleted   int64  `json:"quotes_completed"`
	EchoesCompleted   int64  `json:"echoes_completed"`
	PrintsDropped     int64  `json:"prints_dropped"`
	ErrorsTotal       int64  `json:"errors_total"`
	LastError         string `json:"last_error,omitempty"`
	LastErrorMessage  string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:            time.Since(c.startTime).Truncate(time.Second).String(),
		TasksSubmitted:    c.tasksSubmitted.Load(),
		TasksRun:          c.tasksRun.Load(),
		SubmitsRejected:   c.submitsRejected.Load(),
		SyncContended:     c.syncContended.Load(),
		EphemeralSpawned:  c.ephemeralSpawned.Load(),
		EphemeralReleased: c.ephemeralReleased.Load(),
		ConnectionsActive: c.connectionsActive.Load(),
		ConnectionsTotal:  c.connectionsTotal.Load(),
		BytesIn:           c.bytesIn.Load(),
		BytesOut:          c.bytesOut.Load(),
		QuotesCompleted:   c.quotesCompleted.Load(),
		EchoesCompleted:   c.echoesCompleted.Load(),
		PrintsDropped:     c.printsDropped.Load(),
		ErrorsTotal:       c.errorsTotal.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
