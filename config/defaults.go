package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultQotdPort is the QOTD service port (RFC 865).
	DefaultQotdPort = 17

	// DefaultEchoPort is the echo service port (RFC 862).
	DefaultEchoPort = 7

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultThreshold is the partial-consumption chunk size in bytes.
	DefaultThreshold = 64

	// DefaultQueueDepth is the run-queue capacity of each core.
	DefaultQueueDepth = 32

	// DefaultTick is the period of the application loop on core 0.
	DefaultTick = 10 * time.Millisecond

	// DefaultQuoteEvery is how often a new QOTD fetch is considered.
	DefaultQuoteEvery = 5 * time.Second

	// DefaultCounterEvery is the period of the cross-core counter demo.
	DefaultCounterEvery = 1110 * time.Millisecond

	// DefaultConnTimeout is the TCP/SSH connection timeout.
	DefaultConnTimeout = 30 * time.Second

	// DefaultWriteTimeout bounds how long written bytes may stay
	// unacknowledged.
	DefaultWriteTimeout = 5 * time.Second

	// DefaultPollInterval is the transport poll period.
	DefaultPollInterval = 500 * time.Millisecond

	// DefaultRetryInitial is the first reconnect delay.
	DefaultRetryInitial = time.Second

	// DefaultRetryMax caps the exponential backoff between reconnects.
	DefaultRetryMax = 60 * time.Second

	// DefaultRetryAttempts is how many consecutive QOTD failures are
	// tolerated before giving up.
	DefaultRetryAttempts = 10

	// DefaultEchoFailures is how many consecutive echo failures pause
	// the echo client.
	DefaultEchoFailures = 5

	// DefaultNotifyBurst and DefaultNotifyWindow limit diagnostic
	// prints per category.
	DefaultNotifyBurst  = 5
	DefaultNotifyWindow = 10 * time.Second

	// DefaultGracePeriod is how long shutdown waits for the cores and
	// transports to finish.
	DefaultGracePeriod = 5 * time.Second
)

// Default returns a Config populated with every default.
func Default() *Config {
	return &Config{
		QotdPort:      DefaultQotdPort,
		Threshold:     DefaultThreshold,
		QuoteEvery:    DefaultQuoteEvery,
		EchoPort:      DefaultEchoPort,
		QueueDepth:    DefaultQueueDepth,
		Tick:          DefaultTick,
		CounterEvery:  DefaultCounterEvery,
		Timeout:       DefaultConnTimeout,
		WriteTimeout:  DefaultWriteTimeout,
		PollInterval:  DefaultPollInterval,
		RetryInitial:  DefaultRetryInitial,
		RetryMax:      DefaultRetryMax,
		RetryAttempts: DefaultRetryAttempts,
		EchoFailures:  DefaultEchoFailures,
		NotifyBurst:   DefaultNotifyBurst,
		NotifyWindow:  DefaultNotifyWindow,
	}
}
