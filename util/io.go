package util

import (
	"errors"
	"io"
	"net"
	"sync"
)

// DefaultBufSize is the read chunk size of the transport reader loops.
const DefaultBufSize = 2 * 1024

// IsClosed reports whether err is one of the errors expected when a
// connection is torn down while a read or write is pending.
func IsClosed(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	// net.OpError wrapping "use of closed network connection"
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}

// SerialWriter serializes whole writes to an underlying device so that a
// line printed from one core is never split by a line from the other.
type SerialWriter struct {
	mu  sync.Mutex
	out io.Writer
	n   int64
}

// NewSerialWriter wraps w.
func NewSerialWriter(w io.Writer) *SerialWriter {
	return &SerialWriter{out: w}
}

func (s *SerialWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.out.Write(p)
	s.n += int64(n)
	return n, err
}

// WriteString writes str in one locked call.
func (s *SerialWriter) WriteString(str string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := io.WriteString(s.out, str)
	s.n += int64(n)
	return n, err
}

// Written returns the total number of bytes written so far.
func (s *SerialWriter) Written() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}
