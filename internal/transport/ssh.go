package transport

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	cerrors "corebridge/internal/errors"
	"corebridge/util"
)

// SSHConfig holds everything needed to reach the QOTD and echo servers
// through an SSH gateway.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration

	// Prompt reads a secret from the terminal.  Nil uses the
	// controlling terminal on stdin.
	Prompt func(label string) ([]byte, error)
}

// SSHDialer routes connections through an SSH gateway.  The gateway
// connection is established lazily on the first Dial, re-established
// after it drops, and torn down on Close.  Both protocol clients share
// one SSHDialer and therefore one gateway connection.
type SSHDialer struct {
	config *SSHConfig
	logger *util.Logger

	mu     sync.Mutex
	client *ssh.Client
}

// NewSSHDialer creates a dialer that forwards connections through cfg's
// gateway.  Nothing is dialled until the first Dial.
func NewSSHDialer(cfg *SSHConfig, logger *util.Logger) *SSHDialer {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = 30 * time.Second
	}
	return &SSHDialer{config: cfg, logger: logger}
}

// gateway returns a live gateway client, connecting if needed.
func (d *SSHDialer) gateway(ctx context.Context) (*ssh.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client != nil {
		return d.client, nil
	}

	auth, err := BuildAuthMethods(d.config)
	if err != nil {
		return nil, cerrors.WrapSSH("auth", d.config.Host, d.config.Port, err)
	}
	hkCallback, err := hostKeyCallback(d.config)
	if err != nil {
		return nil, cerrors.WrapSSH("hostkey", d.config.Host, d.config.Port, err)
	}

	addr := net.JoinHostPort(d.config.Host, strconv.Itoa(d.config.Port))
	d.logger.Verbose("establishing SSH gateway %s@%s", d.config.User, addr)

	var dialer net.Dialer
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, cerrors.Wrap("dial", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, &ssh.ClientConfig{
		User:            d.config.User,
		Auth:            auth,
		HostKeyCallback: hkCallback,
		Timeout:         d.config.ConnTimeout,
	})
	if err != nil {
		tcpConn.Close()
		return nil, cerrors.WrapSSH("handshake", d.config.Host, d.config.Port, err)
	}

	client := ssh.NewClient(sshConn, chans, reqs)
	d.client = client
	go d.monitor(client)

	d.logger.Verbose("SSH gateway established")
	return client, nil
}

// monitor forgets client once the gateway connection drops, so the next
// Dial reconnects.
func (d *SSHDialer) monitor(client *ssh.Client) {
	err := client.Wait()

	d.mu.Lock()
	if d.client == client {
		d.client = nil
	}
	d.mu.Unlock()

	if err != nil {
		d.logger.Debug("SSH gateway closed: %v", err)
	} else {
		d.logger.Debug("SSH gateway closed")
	}
}

// Dial opens a forwarded connection to address through the gateway.
func (d *SSHDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	client, err := d.gateway(ctx)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("gateway: dialing %s %s", network, address)
	conn, err := client.Dial(network, address)
	if err != nil {
		return nil, cerrors.WrapSSH("forward", d.config.Host, d.config.Port, err)
	}
	return conn, nil
}

// Connected reports whether a gateway connection is currently up.
func (d *SSHDialer) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.client != nil
}

// Close tears down the gateway connection.
func (d *SSHDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	return err
}
