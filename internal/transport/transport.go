// Package transport is the TCP client the protocol handlers run on.
//
// A Client plays the role of a TCP/IP stack: a reader goroutine fills the
// receive buffer and raises notifications, a sender goroutine drains the
// transmit queue and reports acknowledged bytes, and a poll ticker drives
// timeouts.  Notifications are delivered through [Event] firers, normally
// *bridge.Perpetual values bound to the core that owns the handlers, so
// the stack goroutines never run handler code themselves.
package transport

import (
	"context"
	"net"
	"time"
)

// Dialer opens outbound network connections.  Implementations are a
// plain TCP dialer and an SSH-tunnelled dialer that routes traffic
// through an encrypted gateway.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH session).  Stateless dialers return nil.
	Close() error
}

// Event receives one kind of notification.  Fire must not block.
type Event[W any] interface {
	Fire(W) error
}

// Callbacks are the notifications a Client raises.  Nil entries are
// skipped.
type Callbacks struct {
	OnConnected Event[net.Addr]  // local address of the new connection
	OnReceived  Event[int]       // bytes now available in the receive buffer
	OnFin       Event[*RxBuffer] // remote closed its side; the buffer still holds undrained data
	OnClosed    Event[struct{}]  // connection torn down
	OnError     Event[error]     // dial, read or write failure
	OnPoll      Event[time.Time] // periodic tick while connected
	OnAck       Event[int]       // bytes handed to the network
}

// fire delivers w through ev, ignoring a nil ev.
func fire[W any](ev Event[W], w W) error {
	if ev == nil {
		return nil
	}
	return ev.Fire(w)
}
