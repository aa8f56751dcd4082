// Package session represents a single connection lifecycle: one dialled
// network connection, from the successful dial to its teardown.
//
// A transport client reconnects many times over its life; every
// connection gets a fresh Session so that goroutines still draining an
// old connection can never tear down its successor.
package session

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var lastID atomic.Uint64

// Session encapsulates the runtime state of one connection.
type Session struct {
	ID     uint64
	Conn   net.Conn
	Addr   string // dialled address
	Opened time.Time

	once     sync.Once
	done     chan struct{}
	closeErr error
}

// New creates a Session bound to conn, which was dialled at addr.
func New(conn net.Conn, addr string) *Session {
	return &Session{
		ID:     lastID.Add(1),
		Conn:   conn,
		Addr:   addr,
		Opened: time.Now(),
		done:   make(chan struct{}),
	}
}

// LocalAddr returns the local end of the connection.
func (s *Session) LocalAddr() net.Addr { return s.Conn.LocalAddr() }

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Close closes the connection once; later calls return the first result.
func (s *Session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.closeErr = s.Conn.Close()
	})
	return s.closeErr
}

// Age returns how long the session has been open at now.
func (s *Session) Age(now time.Time) time.Duration { return now.Sub(s.Opened) }
