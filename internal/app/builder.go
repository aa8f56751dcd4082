package app

import (
	"fmt"
	"io"
	"os"
	"time"

	"corebridge/config"
	"corebridge/internal/buffer"
	"corebridge/internal/echo"
	"corebridge/internal/metrics"
	"corebridge/internal/printer"
	"corebridge/internal/qotd"
	"corebridge/internal/retry"
	"corebridge/internal/runloop"
	"corebridge/internal/schedule"
	"corebridge/internal/transport"
	"corebridge/util"
)

// Options overrides process-level dependencies, mostly for tests.
type Options struct {
	Out io.Writer        // printer device; nil uses os.Stdout
	Now func() time.Time // clock; nil uses time.Now
}

// Build wires every component described by cfg.  Nothing is started and
// nothing is dialled until Run.
func Build(cfg *config.Config, logger *util.Logger, opts Options) (*App, error) {
	qotdAddr, err := cfg.QotdAddr()
	if err != nil {
		return nil, err
	}
	var echoAddr string
	if cfg.EchoEnabled() {
		if echoAddr, err = cfg.EchoAddr(); err != nil {
			return nil, err
		}
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics.New(),
		now:      now,
		dialer:   buildDialer(cfg, logger),
		backoff:  buildBackoff(cfg),
		sched:    schedule.New(),
		qotdAddr: qotdAddr,
		echoAddr: echoAddr,
		done:     make(chan struct{}),
	}

	a.pair = runloop.NewPair(runloop.PairOptions{
		QueueDepth: cfg.QueueDepth,
		Pin:        cfg.PinCores,
		Logger:     logger,
		Metrics:    a.metrics,
	})
	a.quote = buffer.New(a.pair.C1)
	a.printer = printer.New(a.pair.C0, out, printer.Options{
		Rates:   cfg.NotifyRates(),
		Metrics: a.metrics,
	})

	buildReceiver(a)
	if cfg.EchoEnabled() {
		buildEcho(a)
	}
	buildSchedule(a)
	return a, nil
}

// ── component builders ───────────────────────────────────────────────

func buildReceiver(a *App) {
	a.gate = retry.NewGate(a.backoff)
	a.receiver = qotd.New(a.quote, qotd.Options{
		Threshold: a.cfg.Threshold,
		Printer:   a.printer,
		Gate:      a.gate,
		Now:       a.now,
		Metrics:   a.metrics,
	})
	a.qotdClient = transport.NewClient(a.dialer, a.receiver.Callbacks(), transport.ClientOptions{
		Name:    "qotd",
		Logger:  a.logger,
		Metrics: a.metrics,
	})
	a.receiver.Attach(a.qotdClient)
}

func buildEcho(a *App) {
	a.breaker = retry.NewCircuitBreaker(&retry.CircuitBreakerConfig{
		MaxFailures:  a.cfg.EchoFailures,
		ResetTimeout: a.cfg.RetryMax,
		OnStateChange: func(from, to retry.State) {
			a.logger.Verbose("echo circuit %s -> %s", from, to)
		},
	})
	a.echo = echo.New(a.quote, echo.Options{
		Printer:     a.printer,
		Breaker:     a.breaker,
		OnDelivered: a.delivered,
		Now:         a.now,
		Metrics:     a.metrics,
	})
	a.echoClient = transport.NewClient(a.dialer, a.echo.Callbacks(), transport.ClientOptions{
		Name:         "echo",
		PollInterval: a.cfg.PollInterval,
		Logger:       a.logger,
		Metrics:      a.metrics,
	})
	w := a.echoClient.NewWriter(a.pair.C1, transport.WriterOptions{
		Timeout:   a.cfg.WriteTimeout,
		OnFailure: a.echo.WriteFailed,
		Now:       a.now,
	})
	a.echo.Attach(a.echoClient, w)
}

// buildSchedule registers the tick-loop steps.  An interval of n makes a
// step due on every (n+1)th tick.
func buildSchedule(a *App) {
	a.sched.Set(stepQotd, a.cfg.Ticks(a.cfg.QuoteEvery)-1)
	a.sched.Set(stepDeliver, 0)
	if a.cfg.CounterEvery > 0 {
		a.sched.Set(stepCounter, a.cfg.Ticks(a.cfg.CounterEvery)-1)
	}
}

// ── shared helpers ───────────────────────────────────────────────────

// buildDialer creates the right transport.Dialer for the given config.
// Both protocol clients share it, so a tunnel carries both.
func buildDialer(cfg *config.Config, logger *util.Logger) transport.Dialer {
	if cfg.TunnelEnabled {
		return transport.NewSSHDialer(&transport.SSHConfig{
			User:          cfg.TunnelUser,
			Host:          cfg.TunnelHost,
			Port:          cfg.TunnelPort,
			KeyPath:       cfg.SSHKeyPath,
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
			ConnTimeout:   cfg.Timeout,
		}, logger.Named("ssh"))
	}
	return &transport.TCPDialer{Timeout: cfg.Timeout}
}

func buildBackoff(cfg *config.Config) *retry.Backoff {
	return &retry.Backoff{
		InitialDelay: cfg.RetryInitial,
		MaxDelay:     cfg.RetryMax,
		Multiplier:   2.0,
		MaxAttempts:  cfg.RetryAttempts,
		Jitter:       true,
	}
}

// describeDialer names the route connections take.
func describeDialer(cfg *config.Config) string {
	if !cfg.TunnelEnabled {
		return "direct"
	}
	gw := util.FormatAddr(cfg.TunnelHost, cfg.TunnelPort)
	if cfg.TunnelUser != "" {
		gw = cfg.TunnelUser + "@" + gw
	}
	return fmt.Sprintf("ssh via %s", gw)
}
