package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Config file  (file.go)
//   4. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the COREBRIDGE_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).  Durations accept Go
// duration strings ("250ms") or a bare number of seconds.

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty,
// well-formed env vars override the existing value.  Call it after
// LoadFile and before registering CLI flags so that flags take
// precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("COREBRIDGE_QOTD_HOST"); v != "" {
		cfg.QotdHost = v
	}
	if v := envInt("COREBRIDGE_QOTD_PORT"); v > 0 {
		cfg.QotdPort = v
	}
	if v := os.Getenv("COREBRIDGE_ECHO_HOST"); v != "" {
		cfg.EchoHost = v
	}
	if v := envInt("COREBRIDGE_ECHO_PORT"); v > 0 {
		cfg.EchoPort = v
	}
	if v := envInt("COREBRIDGE_THRESHOLD"); v > 0 {
		cfg.Threshold = v
	}
	if v := envInt("COREBRIDGE_QUEUE_DEPTH"); v > 0 {
		cfg.QueueDepth = v
	}
	if v := envInt("COREBRIDGE_COUNT"); v > 0 {
		cfg.Quotes = v
	}
	if envBool("COREBRIDGE_PIN") {
		cfg.PinCores = true
	}
	if envBool("COREBRIDGE_NO_DNS") {
		cfg.NoDNS = true
	}

	if d := envDuration("COREBRIDGE_TICK"); d > 0 {
		cfg.Tick = d
	}
	if d := envDuration("COREBRIDGE_QUOTE_EVERY"); d > 0 {
		cfg.QuoteEvery = d
	}
	if d := envDuration("COREBRIDGE_TIMEOUT"); d > 0 {
		cfg.Timeout = d
	}
	if d := envDuration("COREBRIDGE_WRITE_TIMEOUT"); d > 0 {
		cfg.WriteTimeout = d
	}
	if d := envDuration("COREBRIDGE_POLL_INTERVAL"); d > 0 {
		cfg.PollInterval = d
	}

	// SSH tunnel
	if v := os.Getenv("COREBRIDGE_TUNNEL"); v != "" {
		cfg.TunnelSpec = v
	}
	if v := os.Getenv("COREBRIDGE_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("COREBRIDGE_SSH_PASSWORD") {
		cfg.SSHPassword = true
	}
	if envBool("COREBRIDGE_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("COREBRIDGE_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := os.Getenv("COREBRIDGE_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}

	// Output
	if v := envInt("COREBRIDGE_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
}

// ConfigPathFromEnv returns COREBRIDGE_CONFIG.
func ConfigPathFromEnv() string { return os.Getenv("COREBRIDGE_CONFIG") }

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return secondsDuration(n)
	}
	return 0
}

func secondsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
