// Package config defines the runtime configuration for corebridge and
// the helpers that parse tunnel specifications and server ports.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	cerrors "corebridge/internal/errors"
	"corebridge/util"
)

// Config holds every tuneable for one corebridge run.
type Config struct {
	// ── QOTD ────────────────────────────────────────────────────────
	QotdHost   string        `yaml:"qotd_host"`
	QotdPort   int           `yaml:"qotd_port"`
	Threshold  int           `yaml:"threshold"`   // partial-consumption chunk size
	QuoteEvery time.Duration `yaml:"quote_every"` // how often a new fetch is considered
	Quotes     int           `yaml:"quotes"`      // stop after this many delivered quotes; 0 = forever

	// ── Echo ────────────────────────────────────────────────────────
	EchoHost string `yaml:"echo_host"` // empty disables the echo round-trip
	EchoPort int    `yaml:"echo_port"`

	// ── Cores ───────────────────────────────────────────────────────
	QueueDepth   int           `yaml:"queue_depth"`
	PinCores     bool          `yaml:"pin_cores"`
	Tick         time.Duration `yaml:"tick"`
	CounterEvery time.Duration `yaml:"counter_every"` // cross-core counter demo; 0 disables

	// ── Network ─────────────────────────────────────────────────────
	Timeout      time.Duration `yaml:"timeout"`       // dial timeout
	WriteTimeout time.Duration `yaml:"write_timeout"` // unacknowledged-write limit
	PollInterval time.Duration `yaml:"poll_interval"`
	NoDNS        bool          `yaml:"no_dns"`

	// ── Retry ───────────────────────────────────────────────────────
	RetryInitial  time.Duration `yaml:"retry_initial"`
	RetryMax      time.Duration `yaml:"retry_max"`
	RetryAttempts int           `yaml:"retry_attempts"` // 0 = unlimited
	EchoFailures  int           `yaml:"echo_failures"`  // consecutive failures that pause the echo client

	// ── Notifications ───────────────────────────────────────────────
	NotifyBurst  int           `yaml:"notify_burst"` // diagnostic prints per window and category; 0 = unlimited
	NotifyWindow time.Duration `yaml:"notify_window"`

	// ── SSH tunnel ──────────────────────────────────────────────────
	TunnelSpec     string `yaml:"tunnel"` // raw [user@]host[:port] from -T
	TunnelEnabled  bool   `yaml:"-"`
	TunnelUser     string `yaml:"-"`
	TunnelHost     string `yaml:"-"`
	TunnelPort     int    `yaml:"-"`
	SSHKeyPath     string `yaml:"ssh_key"`
	SSHPassword    bool   `yaml:"ssh_password"` // true → prompt interactively
	UseSSHAgent    bool   `yaml:"ssh_agent"`
	StrictHostKey  bool   `yaml:"strict_hostkey"`
	KnownHostsPath string `yaml:"known_hosts"`

	// ── Output ──────────────────────────────────────────────────────
	Verbose    int    `yaml:"verbose"`
	ConfigFile string `yaml:"-"`
}

// QotdAddr returns the QOTD server as host:port.
func (c *Config) QotdAddr() (string, error) {
	return util.ResolveAddr(c.QotdHost, c.QotdPort, c.NoDNS)
}

// EchoAddr returns the echo server as host:port.
func (c *Config) EchoAddr() (string, error) {
	return util.ResolveAddr(c.EchoHost, c.EchoPort, c.NoDNS)
}

// EchoEnabled reports whether an echo server is configured.
func (c *Config) EchoEnabled() bool { return c.EchoHost != "" }

// Ticks converts d into a number of scheduler ticks, at least one.
func (c *Config) Ticks(d time.Duration) uint32 {
	if c.Tick <= 0 || d <= c.Tick {
		return 1
	}
	return uint32(d / c.Tick)
}

// NotifyRates returns the printer rate limit, or nil when unlimited.
func (c *Config) NotifyRates() map[time.Duration]int {
	if c.NotifyBurst <= 0 || c.NotifyWindow <= 0 {
		return nil
	}
	return map[time.Duration]int{c.NotifyWindow: c.NotifyBurst}
}

// ── Port helper ──────────────────────────────────────────────────────

// ParsePort accepts a decimal port number in 1-65535.
func ParsePort(spec string) (int, error) {
	port, err := strconv.Atoi(spec)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", spec)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range 1-65535", port)
	}
	return port, nil
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q – expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	if host == "" {
		return "", "", 0, fmt.Errorf("tunnel host is required")
	}
	return user, host, port, nil
}

// ApplyTunnelSpec fills the tunnel fields from TunnelSpec.
func (c *Config) ApplyTunnelSpec() error {
	if c.TunnelSpec == "" {
		return nil
	}
	user, host, port, err := ParseTunnelSpec(c.TunnelSpec)
	if err != nil {
		return err
	}
	c.TunnelEnabled = true
	c.TunnelUser = user
	c.TunnelHost = host
	c.TunnelPort = port
	return nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.  The
// returned error is a *errors.ConfigError naming the offending flag.
func (c *Config) Validate() error {
	if c.QotdHost == "" {
		return &cerrors.ConfigError{
			Field:   "qotd-host",
			Message: "required",
			Hint:    "pass the QOTD server as the first argument, e.g. corebridge djxmmx.net",
		}
	}
	if err := checkPort("qotd-port", c.QotdPort); err != nil {
		return err
	}
	if c.EchoEnabled() {
		if err := checkPort("echo-port", c.EchoPort); err != nil {
			return err
		}
	}
	if c.Threshold < 1 {
		return &cerrors.ConfigError{
			Field:   "threshold",
			Value:   c.Threshold,
			Message: "must be positive",
			Hint:    "the receiver consumes at most this many bytes per notification",
		}
	}
	if c.QueueDepth < 1 {
		return &cerrors.ConfigError{
			Field:   "queue-depth",
			Value:   c.QueueDepth,
			Message: "must be positive",
			Hint:    "each core needs room for at least one queued task",
		}
	}
	if c.Tick <= 0 {
		return &cerrors.ConfigError{Field: "tick", Value: c.Tick, Message: "must be positive"}
	}
	if c.QuoteEvery < c.Tick {
		return &cerrors.ConfigError{
			Field:   "quote-every",
			Value:   c.QuoteEvery,
			Message: "must not be shorter than --tick",
			Hint:    fmt.Sprintf("the tick loop runs every %s", c.Tick),
		}
	}
	if c.Quotes < 0 {
		return &cerrors.ConfigError{Field: "count", Value: c.Quotes, Message: "must not be negative"}
	}
	if c.WriteTimeout > 0 && c.PollInterval <= 0 {
		return &cerrors.ConfigError{
			Field:   "poll-interval",
			Value:   c.PollInterval,
			Message: "must be positive when --write-timeout is set",
			Hint:    "write timeouts are detected on poll notifications",
		}
	}
	if c.NotifyBurst > 0 && c.NotifyWindow <= 0 {
		return &cerrors.ConfigError{Field: "notify-window", Value: c.NotifyWindow, Message: "must be positive with --notify-burst"}
	}
	if c.TunnelEnabled && c.TunnelHost == "" {
		return &cerrors.ConfigError{Field: "tunnel", Value: c.TunnelSpec, Message: "tunnel host is required"}
	}
	return nil
}

func checkPort(field string, port int) error {
	if port < 1 || port > 65535 {
		return &cerrors.ConfigError{Field: field, Value: port, Message: "out of range 1-65535"}
	}
	return nil
}
