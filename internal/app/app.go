// Package app runs the two-core quote pipeline: core 0 owns the printer
// and the tick loop, core 1 owns the quote buffer and the protocol
// handlers.  Each tick considers fetching a quote, delivering a finished
// one (through the echo server when configured) and the cross-core
// counter.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"corebridge/config"
	"corebridge/internal/buffer"
	"corebridge/internal/echo"
	cerrors "corebridge/internal/errors"
	"corebridge/internal/metrics"
	"corebridge/internal/printer"
	"corebridge/internal/qotd"
	"corebridge/internal/retry"
	"corebridge/internal/runloop"
	"corebridge/internal/schedule"
	"corebridge/internal/transport"
	"corebridge/util"
)

// Tick-loop step names.
const (
	stepQotd    = "qotd"
	stepDeliver = "deliver"
	stepCounter = "counter"
)

// App is one configured run.  Build it with [Build].
type App struct {
	cfg     *config.Config
	logger  *util.Logger
	metrics *metrics.Collector
	now     func() time.Time

	dialer  transport.Dialer
	backoff *retry.Backoff
	sched   *schedule.Scheduler // confined to c0

	pair    *runloop.Pair
	quote   *buffer.Quote
	printer *printer.Printer

	gate       *retry.Gate
	receiver   *qotd.Receiver
	qotdClient *transport.Client

	breaker    *retry.CircuitBreaker
	echo       *echo.Client
	echoClient *transport.Client

	qotdAddr string
	echoAddr string

	started time.Time
	ticks   uint64 // confined to c0
	counter uint64 // confined to c1

	ticking    atomic.Bool
	stopping   atomic.Bool
	deliveries atomic.Int64

	once sync.Once
	done chan struct{}
	err  error
}

// Metrics returns the run's collector.
func (a *App) Metrics() *metrics.Collector { return a.metrics }

// Delivered returns how many quotes have been printed.
func (a *App) Delivered() int64 { return a.deliveries.Load() }

// Describe summarises the wiring, one setting per line.
func (a *App) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "qotd:      %s (threshold %d, every %s)\n", a.qotdAddr, a.cfg.Threshold, a.cfg.QuoteEvery)
	if a.echo != nil {
		fmt.Fprintf(&b, "echo:      %s (write timeout %s)\n", a.echoAddr, a.cfg.WriteTimeout)
	} else {
		b.WriteString("echo:      disabled\n")
	}
	fmt.Fprintf(&b, "route:     %s\n", describeDialer(a.cfg))
	fmt.Fprintf(&b, "cores:     queue depth %d, pinned %v\n", a.cfg.QueueDepth, a.cfg.PinCores)
	fmt.Fprintf(&b, "tick:      %s\n", a.cfg.Tick)
	if a.cfg.CounterEvery > 0 {
		fmt.Fprintf(&b, "counter:   every %s\n", a.cfg.CounterEvery)
	}
	if a.cfg.Quotes > 0 {
		fmt.Fprintf(&b, "quotes:    %d\n", a.cfg.Quotes)
	}
	return b.String()
}

// Run starts both cores and drives the tick loop until ctx ends, the
// configured number of quotes has been delivered, or the QOTD server is
// given up on.  Everything is shut down before Run returns.
func (a *App) Run(ctx context.Context) error {
	defer a.dialer.Close()

	if err := a.bootstrap(ctx); err != nil {
		return err
	}
	if err := a.pair.Start(ctx); err != nil {
		return fmt.Errorf("start cores: %w", err)
	}
	a.started = a.now()
	a.printer.Print("C0 ready...") //nolint:errcheck
	if err := a.pair.C1.Submit(func() { a.printer.Print("C1 ready...") }); err != nil {
		a.logger.Debug("c1 ready: %v", err)
	}

	err := a.loop(ctx)
	a.shutdown()
	return err
}

// bootstrap resolves the server names once, retrying transient DNS
// failures.  Through a tunnel the gateway resolves them instead.
func (a *App) bootstrap(ctx context.Context) error {
	if a.cfg.TunnelEnabled {
		return nil
	}
	addr, err := a.resolve(ctx, a.cfg.QotdHost, a.cfg.QotdPort)
	if err != nil {
		return err
	}
	a.qotdAddr = addr
	if a.echo != nil {
		if addr, err = a.resolve(ctx, a.cfg.EchoHost, a.cfg.EchoPort); err != nil {
			return err
		}
		a.echoAddr = addr
	}
	return nil
}

func (a *App) resolve(ctx context.Context, host string, port int) (string, error) {
	var addr string
	err := a.backoff.Do(ctx, func(attempt int) error {
		addrs, err := util.LookupHost(host, a.cfg.NoDNS)
		if err != nil {
			if a.cfg.NoDNS || !cerrors.IsRetryable(err) {
				return retry.Permanent(err)
			}
			a.logger.Warn("%v (attempt %d)", err, attempt)
			return err
		}
		addr = util.FormatAddr(addrs[0], port)
		return nil
	})
	if err != nil {
		return "", err
	}
	a.logger.Verbose("resolved %s to %s", host, addr)
	return addr, nil
}

// loop submits a tick to c0 every cfg.Tick.  A tick still queued or
// running when the next one is due is not duplicated.
func (a *App) loop(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Tick)
	defer ticker.Stop()

	a.submitTick(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.done:
			return a.err
		case <-ticker.C:
			a.submitTick(ctx)
		}
	}
}

func (a *App) submitTick(ctx context.Context) {
	if !a.ticking.CompareAndSwap(false, true) {
		return
	}
	err := a.pair.C0.Submit(func() {
		defer a.ticking.Store(false)
		a.tick(ctx)
	})
	if err != nil {
		a.ticking.Store(false)
		a.logger.Debug("tick: %v", err)
	}
}

// tick runs on c0.  The first tick fetches immediately.
func (a *App) tick(ctx context.Context) {
	if a.stopping.Load() {
		return
	}
	a.ticks++
	if a.sched.Due(stepQotd) || a.ticks == 1 {
		a.fetch(ctx)
	}
	if a.sched.Due(stepDeliver) {
		a.deliver(ctx)
	}
	if a.sched.Due(stepCounter) {
		a.count()
	}
}

// fetch starts a QOTD attempt unless one is running, a quote is waiting
// to be delivered, or the reconnect gate is closed.
func (a *App) fetch(ctx context.Context) {
	if a.receiver.Active() || a.receiver.State() == qotd.Complete {
		return
	}
	if a.echo != nil && a.echo.Awaiting() {
		return
	}
	if a.gate.Exhausted() {
		a.finish(fmt.Errorf("QOTD server %s unreachable after %d attempts", a.qotdAddr, a.gate.Failures()))
		return
	}
	if !a.gate.Ready(a.now()) {
		return
	}
	a.logger.Verbose("fetching quote from %s", a.qotdAddr)
	if err := a.receiver.Fetch(ctx, a.qotdAddr); err != nil {
		a.logger.Debug("qotd fetch: %v", err)
	}
}

// deliver hands a completed quote to the echo server, or prints it
// directly when no echo server is configured.
func (a *App) deliver(ctx context.Context) {
	if a.receiver.State() != qotd.Complete {
		return
	}
	if a.echo == nil {
		a.printLocal()
		return
	}
	if !a.echo.IsConnected() {
		if err := a.echo.Connect(ctx, a.echoAddr); err != nil {
			a.logger.Debug("echo connect: %v", err)
		}
		return
	}
	if _, err := a.echo.Send(); err != nil {
		a.logger.Debug("echo send: %v", err)
	}
}

func (a *App) printLocal() {
	text, err := a.quote.Get()
	if err != nil {
		a.logger.Debug("quote get: %v", err)
		return
	}
	if err := a.quote.Clear(); err != nil {
		a.logger.Debug("quote clear: %v", err)
		return
	}
	a.printer.Print(text) //nolint:errcheck
	a.delivered()
}

// delivered runs after a quote was printed and the buffer cleared, on
// whichever core printed it.
func (a *App) delivered() {
	a.receiver.Release()
	n := a.deliveries.Add(1)
	if a.cfg.Quotes > 0 && n >= int64(a.cfg.Quotes) {
		a.finish(nil)
	}
}

// count increments the c1 counter from c0 and prints the enter and exit
// times in microseconds since start.
func (a *App) count() {
	enter := a.since()
	var n uint64
	err := a.pair.C1.Do(func() error {
		a.counter++
		n = a.counter
		return nil
	})
	if err != nil {
		a.logger.Debug("counter: %v", err)
		return
	}
	a.printer.Printf("[Counter %d][Enter at: %d][Exit at: %d]", n, enter, a.since()) //nolint:errcheck
}

func (a *App) since() int64 { return a.now().Sub(a.started).Microseconds() }

func (a *App) finish(err error) {
	a.once.Do(func() {
		a.err = err
		close(a.done)
	})
}

// shutdown closes the transports, detaches the handlers and drains both
// cores within the grace period.
func (a *App) shutdown() {
	a.stopping.Store(true)
	ctx, cancel := context.WithTimeout(context.Background(), config.DefaultGracePeriod)
	defer cancel()

	if err := a.qotdClient.Close(ctx); err != nil {
		a.logger.Debug("qotd close: %v", err)
	}
	if a.echoClient != nil {
		if err := a.echoClient.Close(ctx); err != nil {
			a.logger.Debug("echo close: %v", err)
		}
	}
	a.receiver.Unregister()
	if a.echo != nil {
		a.echo.Unregister()
	}
	if err := a.pair.Shutdown(ctx); err != nil {
		a.logger.Warn("core shutdown: %v", err)
	}
	a.logger.Verbose("metrics: %s", a.metrics.JSON())
}
