package session

import (
	"errors"
	"fmt"
)

// Sentinel errors. Wrap these
// with fmt.Errorf("...: %w", ErrXxx) at call sites that need extra
// context; callers compare with errors.Is.
var (
	// ErrConnectFailed is returned when TCP/TLS establishment fails for a
	// reason other than timeout.
	ErrConnectFailed = errors.New("session: connect failed")
	// ErrConnectTimeout is returned when Connect's wall-clock deadline
	// elapses before the transport is up.
	ErrConnectTimeout = errors.New("session: connect timed out")
	// ErrConnectionClosed is delivered to every outstanding waiter when
	// the socket closes mid-session, and returned by calls issued after
	// Close().
	ErrConnectionClosed = errors.New("session: connection closed")
	// ErrTimeout is delivered when a call's per-request deadline expires
	// before a response arrives.
	ErrTimeout = errors.New("session: request timed out")
	// ErrNotConnected is returned by a call issued before Connect succeeds.
	ErrNotConnected = errors.New("session: not connected")
)

// ServerError wraps the error-message payload of a nonzero-status
// RpcResponse frame, letting call sites still match on ErrConnectionClosed
// etc. without mistaking a handler-level failure for a transport failure.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("session: server error: %s", e.Message)
}
