// Package errors provides domain-specific error types for corebridge.
//
// Dispatch failures are never panics: every bridge call reports one of the
// sentinels below, usually wrapped in a [DispatchError] naming the
// operation and the core it was aimed at, so callers can tell contention
// from queue exhaustion with [errors.Is].
package errors

import (
	"errors"
	"fmt"
	"net"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	// ErrInUse is returned by a synchronous bridge that is already
	// executing another call.  The rejected call never ran.
	ErrInUse = errors.New("resource in use")

	// ErrQueueFull is returned when a core's run queue is exhausted.
	ErrQueueFull = errors.New("run queue full")

	// ErrTerminated is returned for submissions to a stopped core.
	ErrTerminated = errors.New("execution context terminated")

	// ErrUnregistered is returned when firing a handler whose owner
	// already unregistered it.
	ErrUnregistered = errors.New("handler unregistered")

	ErrNoData           = errors.New("no data")
	ErrThrottled        = errors.New("notification throttled")
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrClientClosed     = errors.New("client closed")
	ErrTimeout          = errors.New("operation timed out")
	ErrAuthFailed       = errors.New("authentication failed")
	ErrHostKeyMismatch  = errors.New("host key mismatch")
)

// ── Structured error types ───────────────────────────────────────────

// DispatchError reports a failed hand-off of work to a core.
type DispatchError struct {
	Op   string // "submit", "do", "execute", "fire", "spawn"
	Core int    // target core id
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s on c%d: %v", e.Op, e.Core, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// PanicError carries a value recovered from a panicking callback.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("callback panicked: %v", e.Value)
}

// Unwrap exposes the recovered value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// NetworkError represents a failure in a network operation.
type NetworkError struct {
	Op        string // operation: "dial", "read", "write", "shutdown"
	Addr      string // network address involved
	Err       error  // underlying error
	Retryable bool   // whether the caller should retry
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// SSHError represents an SSH-specific failure with gateway context.
type SSHError struct {
	Op   string // "handshake", "auth", "hostkey", "forward"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Dispatch wraps err with the operation and target core.  A nil err
// stays nil so call sites can wrap unconditionally.
func Dispatch(op string, core int, err error) error {
	if err == nil {
		return nil
	}
	return &DispatchError{Op: op, Core: core, Err: err}
}

// Wrap creates a NetworkError, automatically detecting retryability
// from the underlying error.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// IsContention reports whether err is a busy-guard rejection.
func IsContention(err error) bool { return errors.Is(err, ErrInUse) }

// IsSubmitFailure reports whether err means the work never reached the
// target core's queue.
func IsSubmitFailure(err error) bool {
	return errors.Is(err, ErrQueueFull) || errors.Is(err, ErrTerminated)
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return classifyRetryable(err)
}

// classifyRetryable inspects standard library error types.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
