package transport

import "sync"

// RxBuffer holds received bytes until the handlers consume them.  The
// reader goroutine appends; handlers peek and consume.
type RxBuffer struct {
	mu   sync.Mutex
	data []byte
}

func (b *RxBuffer) write(p []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
	return len(b.data)
}

// Available returns the number of unconsumed bytes.
func (b *RxBuffer) Available() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Peek returns a copy of up to max unconsumed bytes without consuming
// them.
func (b *RxBuffer) Peek(max int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if max > len(b.data) {
		max = len(b.data)
	}
	if max <= 0 {
		return nil
	}
	out := make([]byte, max)
	copy(out, b.data[:max])
	return out
}

// Consume discards up to n bytes from the front and returns how many were
// discarded.
func (b *RxBuffer) Consume(n int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > len(b.data) {
		n = len(b.data)
	}
	if n <= 0 {
		return 0
	}
	rest := copy(b.data, b.data[n:])
	b.data = b.data[:rest]
	return n
}

// Reset drops all buffered bytes.
func (b *RxBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = b.data[:0]
}
