package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies errors reported through the engine's error callback.
type ErrorKind string

const (
	KindNotConnected        ErrorKind = "not_connected"
	KindTransportFailure    ErrorKind = "transport_failure"
	KindSubscriptionFailure ErrorKind = "subscription_failure"
)

var (
	ErrNotConnected        = errors.New("cannot send message: not connected")
	ErrTransportFailure    = errors.New("connection failed or ended")
	ErrSubscriptionFailure = errors.New("stream subscription failed")

	// ErrUserIDRequired is returned by New when no user id is configured.
	ErrUserIDRequired = errors.New("user id is required")
	// ErrDisposed is returned by Initialize after Dispose.
	ErrDisposed = errors.New("engine disposed")
	// ErrConnectorClosed is returned by Connect and Reconnect after Close.
	ErrConnectorClosed = errors.New("connector closed")
)

// Error is an engine error delivered to the error callback. It matches the
// sentinel of its kind and the underlying cause with errors.Is.
type Error struct {
	Kind ErrorKind
	Err  error
}

func newError(kind ErrorKind, cause error) *Error {
	return &Error{Kind: kind, Err: cause}
}

func (e *Error) Error() string {
	if e.Err == nil || e.Err == e.sentinel() {
		return e.sentinel().Error()
	}
	return fmt.Sprintf("%s: %v", e.sentinel(), e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.sentinel()}
	}
	return []error{e.sentinel(), e.Err}
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case KindNotConnected:
		return ErrNotConnected
	case KindSubscriptionFailure:
		return ErrSubscriptionFailure
	default:
		return ErrTransportFailure
	}
}
