// Package cmd wires up the CLI flags and starts the quote pipeline.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"corebridge/config"
	"corebridge/internal/app"
	"corebridge/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X corebridge/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and runs corebridge.  Settings are layered as
// defaults, then the config file, then COREBRIDGE_* variables, then
// flags.
func Execute(ctx context.Context, args []string) error {
	cfg := config.Default()
	if path := configPath(args); path != "" {
		if err := config.LoadFile(path, cfg); err != nil {
			return err
		}
	}
	config.LoadFromEnv(cfg)

	fs := flag.NewFlagSet("corebridge", flag.ContinueOnError)

	// ── QOTD ─────────────────────────────────────────────────────
	fs.IntVarP(&cfg.Threshold, "threshold", "t", cfg.Threshold, "Consume received data in chunks of this many bytes")
	fs.DurationVar(&cfg.QuoteEvery, "quote-every", cfg.QuoteEvery, "How often a new quote is fetched")
	fs.IntVar(&cfg.Quotes, "count", cfg.Quotes, "Exit after delivering this many quotes (0 = run forever)")

	// ── echo ─────────────────────────────────────────────────────
	fs.StringVar(&cfg.EchoHost, "echo-host", cfg.EchoHost, "Echo server to round-trip quotes through (empty = print directly)")
	fs.IntVar(&cfg.EchoPort, "echo-port", cfg.EchoPort, "Echo server port")

	// ── cores ────────────────────────────────────────────────────
	fs.IntVar(&cfg.QueueDepth, "queue-depth", cfg.QueueDepth, "Run-queue capacity of each core")
	fs.BoolVar(&cfg.PinCores, "pin", cfg.PinCores, "Pin core 0 and core 1 to CPUs 0 and 1")
	fs.DurationVar(&cfg.Tick, "tick", cfg.Tick, "Application loop period")
	fs.DurationVar(&cfg.CounterEvery, "counter-every", cfg.CounterEvery, "Cross-core counter period (0 = off)")

	// ── network ──────────────────────────────────────────────────
	fs.DurationVarP(&cfg.Timeout, "timeout", "w", cfg.Timeout, "Connection timeout")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "Unacknowledged-write timeout")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Transport poll period")
	fs.BoolVarP(&cfg.NoDNS, "no-dns", "n", cfg.NoDNS, "Numeric-only, no DNS resolution")
	fs.IntVar(&cfg.RetryAttempts, "retries", cfg.RetryAttempts, "Consecutive QOTD failures before giving up (0 = never)")

	// ── SSH tunnel ───────────────────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "SSH tunnel via [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")

	// ── output ───────────────────────────────────────────────────
	baseVerbose := cfg.Verbose // CountVarP zeroes its target
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")

	var configFile string
	var dryRun, showVersion, showHelp bool
	fs.StringVar(&configFile, "config", "", "YAML config file (or $COREBRIDGE_CONFIG)")
	fs.BoolVar(&dryRun, "dry-run", false, "Validate the configuration, print the wiring and exit")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg.Verbose += baseVerbose

	if showHelp || (len(args) == 0 && cfg.QotdHost == "") {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Printf("corebridge %s\n", version)
		return nil
	}

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args()); err != nil {
		return err
	}

	// ── tunnel spec ──────────────────────────────────────────────
	if err := cfg.ApplyTunnelSpec(); err != nil {
		return fmt.Errorf("tunnel: %w", err)
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}

	// ── build components ─────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	if cfg.ConfigFile != "" {
		logger.Verbose("loaded %s", cfg.ConfigFile)
	}

	a, err := app.Build(cfg, logger, app.Options{})
	if err != nil {
		return err
	}
	if dryRun {
		fmt.Print(a.Describe())
		return nil
	}
	return a.Run(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

// configPath finds --config before the flag set exists, so the file can
// supply flag defaults.
func configPath(args []string) string {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			return v
		}
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return config.ConfigPathFromEnv()
}

func parsePositional(cfg *config.Config, remaining []string) error {
	switch len(remaining) {
	case 0: // host from the config file or environment
	case 1:
		cfg.QotdHost = remaining[0]
	case 2:
		cfg.QotdHost = remaining[0]
		port, err := config.ParsePort(remaining[1])
		if err != nil {
			return fmt.Errorf("qotd port: %w", err)
		}
		cfg.QotdPort = port
	default:
		return fmt.Errorf("too many arguments (use --help for usage)")
	}
	return nil
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `corebridge – two-core quote pipeline v%s

Fetches quotes from a QOTD server (RFC 865) on one core and prints them
from the other, optionally round-tripping each through an echo server.

Usage:
  corebridge [options] <qotd-host> [qotd-port]

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  corebridge djxmmx.net                              Print a quote every 5s
  corebridge -t 16 --count 3 djxmmx.net              Three quotes, 16-byte chunks
  corebridge --echo-host tcpbin.com --echo-port 4242 djxmmx.net
  corebridge -T admin@bastion qotd.internal 17       Through an SSH gateway
  COREBRIDGE_CONFIG=corebridge.yaml corebridge       Settings from a file
`)
}
