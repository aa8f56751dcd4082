package errors

import (
	"fmt"
	"io"
	"net"
	"testing"
)

func TestDispatchError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"queue full", Dispatch("submit", 1, ErrQueueFull), "submit on c1: run queue full"},
		{"in use", Dispatch("execute", 0, ErrInUse), "execute on c0: resource in use"},
		{"terminated", Dispatch("fire", 1, ErrTerminated), "fire on c1: execution context terminated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDispatch_NilStaysNil(t *testing.T) {
	if err := Dispatch("submit", 0, nil); err != nil {
		t.Errorf("Dispatch(nil) = %v, want nil", err)
	}
}

func TestDispatchError_Classification(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		contention bool
		submit     bool
	}{
		{"in use", Dispatch("execute", 0, ErrInUse), true, false},
		{"queue full", Dispatch("submit", 0, ErrQueueFull), false, true},
		{"terminated", Dispatch("do", 1, ErrTerminated), false, true},
		{"wrapped twice", fmt.Errorf("print: %w", Dispatch("spawn", 0, ErrQueueFull)), false, true},
		{"unrelated", io.EOF, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsContention(tt.err); got != tt.contention {
				t.Errorf("IsContention = %v, want %v", got, tt.contention)
			}
			if got := IsSubmitFailure(tt.err); got != tt.submit {
				t.Errorf("IsSubmitFailure = %v, want %v", got, tt.submit)
			}
		})
	}
}

func TestPanicError(t *testing.T) {
	err := &PanicError{Value: "boom"}
	if got, want := err.Error(), "callback panicked: boom"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if Unwrap(err) != nil {
		t.Error("non-error value should not unwrap")
	}

	inner := &PanicError{Value: io.ErrUnexpectedEOF}
	if !Is(inner, io.ErrUnexpectedEOF) {
		t.Error("error value should unwrap")
	}
}

func TestNetworkError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  NetworkError
		want string
	}{
		{
			name: "retryable",
			err:  NetworkError{Op: "dial", Addr: "djxmmx.net:17", Err: io.EOF, Retryable: true},
			want: "dial djxmmx.net:17: EOF (retryable)",
		},
		{
			name: "non-retryable",
			err:  NetworkError{Op: "write", Addr: "127.0.0.1:7", Err: fmt.Errorf("broken pipe")},
			want: "write 127.0.0.1:7: broken pipe",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNetworkError_Unwrap(t *testing.T) {
	err := Wrap("dial", "x", io.EOF)
	if !Is(err, io.EOF) {
		t.Error("should unwrap to io.EOF")
	}
}

func TestSSHError(t *testing.T) {
	inner := fmt.Errorf("connection refused")
	err := WrapSSH("handshake", "bastion.example.com", 22, inner)
	want := "ssh handshake bastion.example.com:22: connection refused"
	if got := err.Error(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if !Is(err, inner) {
		t.Error("should unwrap to inner error")
	}
}

func TestConfigError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  ConfigError
		want string
	}{
		{
			name: "with value and hint",
			err: ConfigError{
				Field:   "threshold",
				Value:   0,
				Message: "must be positive",
				Hint:    "the receiver consumes data once this many bytes are buffered",
			},
			want: "config: --threshold=0: must be positive\n  hint: the receiver consumes data once this many bytes are buffered",
		},
		{
			name: "missing value no hint",
			err: ConfigError{
				Field:   "qotd-host",
				Message: "required",
			},
			want: "config: --qotd-host: required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", io.EOF, false},
		{"timeout sentinel", ErrTimeout, true},
		{"retryable network error", &NetworkError{Retryable: true, Err: io.EOF}, true},
		{"non-retryable network error", &NetworkError{Retryable: false, Err: io.EOF}, false},
		{"temporary dns", &net.DNSError{IsTemporary: true}, true},
		{"permanent dns", &net.DNSError{IsNotFound: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestJoin(t *testing.T) {
	joined := Join(ErrQueueFull, ErrTimeout)
	if !Is(joined, ErrQueueFull) || !Is(joined, ErrTimeout) {
		t.Error("joined error should match both sentinels")
	}
}
