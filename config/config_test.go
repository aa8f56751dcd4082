package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	cerrors "corebridge/internal/errors"
)

// ── ParseTunnelSpec ──────────────────────────────────────────────────

func TestParseTunnelSpec(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantUser string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"full", "admin@bastion.example.com:2222", "admin", "bastion.example.com", 2222, false},
		{"no port", "root@gateway", "root", "gateway", 22, false},
		{"no user", "jump-host:2200", "", "jump-host", 2200, false},
		{"host only", "gateway.local", "", "gateway.local", 22, false},
		{"bad port", "user@host:999999", "", "", 0, true},
		{"port zero", "host:0", "", "", 0, true},
		{"empty", "", "", "", 0, true},
		{"colon only", ":", "", "", 0, true},
		{"no host before colon", ":22", "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, host, port, err := ParseTunnelSpec(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr = %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if user != tt.wantUser || host != tt.wantHost || port != tt.wantPort {
				t.Errorf("got (%q, %q, %d), want (%q, %q, %d)",
					user, host, port, tt.wantUser, tt.wantHost, tt.wantPort)
			}
		})
	}
}

func TestApplyTunnelSpec(t *testing.T) {
	cfg := Default()
	if err := cfg.ApplyTunnelSpec(); err != nil || cfg.TunnelEnabled {
		t.Fatalf("empty spec: err=%v enabled=%v", err, cfg.TunnelEnabled)
	}

	cfg.TunnelSpec = "ops@bastion:2200"
	if err := cfg.ApplyTunnelSpec(); err != nil {
		t.Fatal(err)
	}
	if !cfg.TunnelEnabled || cfg.TunnelUser != "ops" || cfg.TunnelHost != "bastion" || cfg.TunnelPort != 2200 {
		t.Errorf("tunnel fields = %v %q %q %d", cfg.TunnelEnabled, cfg.TunnelUser, cfg.TunnelHost, cfg.TunnelPort)
	}
}

// ── ParsePort ────────────────────────────────────────────────────────

func TestParsePort(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"17", 17, false},
		{"7", 7, false},
		{"65535", 65535, false},
		{"0", 0, true},
		{"70000", 0, true},
		{"qotd", 0, true},
		{"-1", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePort(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePort(%q) error = %v, wantErr = %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParsePort(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

// ── Derived values ───────────────────────────────────────────────────

func TestTicks(t *testing.T) {
	cfg := &Config{Tick: 10 * time.Millisecond}
	tests := []struct {
		d    time.Duration
		want uint32
	}{
		{0, 1},
		{5 * time.Millisecond, 1},
		{10 * time.Millisecond, 1},
		{100 * time.Millisecond, 10},
		{5 * time.Second, 500},
	}
	for _, tt := range tests {
		if got := cfg.Ticks(tt.d); got != tt.want {
			t.Errorf("Ticks(%v) = %d, want %d", tt.d, got, tt.want)
		}
	}
}

func TestNotifyRates(t *testing.T) {
	cfg := Default()
	rates := cfg.NotifyRates()
	if rates[DefaultNotifyWindow] != DefaultNotifyBurst || len(rates) != 1 {
		t.Errorf("rates = %v", rates)
	}
	cfg.NotifyBurst = 0
	if cfg.NotifyRates() != nil {
		t.Error("zero burst should disable limiting")
	}
}

func TestAddrs(t *testing.T) {
	cfg := Default()
	cfg.QotdHost = "10.1.2.3"
	cfg.EchoHost = "10.1.2.4"
	cfg.NoDNS = true

	if got, err := cfg.QotdAddr(); err != nil || got != "10.1.2.3:17" {
		t.Errorf("QotdAddr = %q, %v", got, err)
	}
	if got, err := cfg.EchoAddr(); err != nil || got != "10.1.2.4:7" {
		t.Errorf("EchoAddr = %q, %v", got, err)
	}

	cfg.QotdHost = "djxmmx.net"
	if _, err := cfg.QotdAddr(); err == nil {
		t.Error("hostname with DNS disabled should fail")
	}
}

// ── Config.Validate ──────────────────────────────────────────────────

func valid() *Config {
	cfg := Default()
	cfg.QotdHost = "djxmmx.net"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string // empty = valid
	}{
		{"defaults with host", func(*Config) {}, ""},
		{"with echo", func(c *Config) { c.EchoHost = "127.0.0.1" }, ""},
		{"no host", func(c *Config) { c.QotdHost = "" }, "qotd-host"},
		{"bad qotd port", func(c *Config) { c.QotdPort = 0 }, "qotd-port"},
		{"bad echo port", func(c *Config) { c.EchoHost = "x"; c.EchoPort = 70000 }, "echo-port"},
		{"echo port ignored without echo host", func(c *Config) { c.EchoPort = 0 }, ""},
		{"zero threshold", func(c *Config) { c.Threshold = 0 }, "threshold"},
		{"zero queue", func(c *Config) { c.QueueDepth = 0 }, "queue-depth"},
		{"zero tick", func(c *Config) { c.Tick = 0 }, "tick"},
		{"quote interval below tick", func(c *Config) { c.QuoteEvery = time.Millisecond }, "quote-every"},
		{"negative count", func(c *Config) { c.Quotes = -1 }, "count"},
		{"write timeout without poll", func(c *Config) { c.PollInterval = 0 }, "poll-interval"},
		{"no write timeout no poll", func(c *Config) { c.PollInterval = 0; c.WriteTimeout = 0 }, ""},
		{"burst without window", func(c *Config) { c.NotifyWindow = 0 }, "notify-window"},
		{"tunnel without host", func(c *Config) { c.TunnelEnabled = true }, "tunnel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			var ce *cerrors.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("Validate() = %v, want *ConfigError", err)
			}
			if ce.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", ce.Field, tt.wantField)
			}
		})
	}
}

// TestValidate_ErrorMessages verifies that Validate returns actionable
// error messages with hints.
func TestValidate_ErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"missing host has hint", func(c *Config) { c.QotdHost = "" }, "hint: pass the QOTD server"},
		{"threshold has hint", func(c *Config) { c.Threshold = -3 }, "--threshold=-3: must be positive"},
		{"poll interval has hint", func(c *Config) { c.PollInterval = 0 }, "hint: write timeouts are detected on poll"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q should contain %q", err.Error(), tt.wantSub)
			}
		})
	}
}
