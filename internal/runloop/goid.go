package runloop

import "runtime"

// goroutineID is replaced in tests to count lookups.
var goroutineID = getGoroutineID //nolint:gochecknoglobals

// getGoroutineID parses the current goroutine's id from the first line
// of its stack trace ("goroutine NNN [...").
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
