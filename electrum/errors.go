package electrum

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned for calls issued while the client has no
// ready session.
var ErrNotConnected = errors.New("electrum: client is not connected")

// ErrClientClosed is returned for operations on a client that was closed.
var ErrClientClosed = errors.New("electrum: client is closed")

// ErrPolicyExhausted is reported to error hooks when a connection was lost
// and the persistence policy has no retries and no callback left.
var ErrPolicyExhausted = errors.New("electrum: reconnect policy exhausted")

// NegotiationError is returned when the connection was established but the
// server.version negotiation failed.
type NegotiationError struct {
	Cause error
}

func (err NegotiationError) Error() string {
	return fmt.Sprintf("electrum: version negotiation failed: %s", err.Cause)
}

func (err NegotiationError) Unwrap() error {
	return err.Cause
}

// StateError is returned when an operation is not allowed in the client's
// current state.
type StateError struct {
	Op    string
	State State
}

func (err StateError) Error() string {
	return fmt.Sprintf("electrum: cannot %s while %s", err.Op, err.State)
}
