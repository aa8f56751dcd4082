// Package printer is the serial output path.  Every print is a one-shot
// handler on the printing core, so callers on any core never block on
// the output device.
package printer

import (
	"fmt"
	"io"
	"strings"
	"time"

	catrate "github.com/joeycumines/go-catrate"

	"corebridge/internal/bridge"
	cerrors "corebridge/internal/errors"
	"corebridge/internal/metrics"
	"corebridge/internal/runloop"
	"corebridge/util"
)

// Options configures a Printer.
type Options struct {
	// Rates limits Notify per category, as accepted by
	// catrate.NewLimiter.  Nil or empty disables limiting.
	Rates   map[time.Duration]int
	Metrics *metrics.Collector
}

// Printer writes whole lines to the output device from its core.
type Printer struct {
	core    *runloop.Core
	out     *util.SerialWriter
	limiter *catrate.Limiter
	metrics *metrics.Collector
}

// New creates a printer that writes to out from core.
func New(core *runloop.Core, out io.Writer, opts Options) *Printer {
	p := &Printer{
		core:    core,
		out:     util.NewSerialWriter(out),
		metrics: opts.Metrics,
	}
	if len(opts.Rates) != 0 {
		p.limiter = catrate.NewLimiter(opts.Rates)
	}
	return p
}

// Core returns the printing core.
func (p *Printer) Core() *runloop.Core { return p.core }

// Print schedules msg for output, adding a trailing newline if missing.
// It returns as soon as the print is queued.
func (p *Printer) Print(msg string) error {
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	if err := bridge.Spawn(p.core, msg, p.write); err != nil {
		p.metrics.PrintDropped()
		return err
	}
	return nil
}

// Printf formats and prints.
func (p *Printer) Printf(format string, args ...interface{}) error {
	return p.Print(fmt.Sprintf(format, args...))
}

// Notify prints a diagnostic line unless category exceeded its rate, in
// which case it returns an error wrapping [cerrors.ErrThrottled] naming
// the time the category is allowed again.
func (p *Printer) Notify(category, msg string) error {
	if next, ok := p.limiter.Allow(category); !ok {
		p.metrics.PrintDropped()
		return fmt.Errorf("%s: %w until %s", category, cerrors.ErrThrottled, next.Format("15:04:05.000"))
	}
	return p.Print(msg)
}

// Written returns the number of bytes written to the device so far.
func (p *Printer) Written() int64 { return p.out.Written() }

// write runs on the printing core.
func (p *Printer) write(msg string) {
	if _, err := p.out.WriteString(msg); err != nil {
		p.metrics.PrintDropped()
		p.core.Logger().Debug("print failed: %v", err)
	}
}
