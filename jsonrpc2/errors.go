package jsonrpc2

import (
	"errors"
	"fmt"
)

// ErrClosed is returned for calls that were pending when the session was
// closed locally, and for calls issued after.
var ErrClosed = errors.New("jsonrpc2: session closed")

// ErrPendingDiscarded is returned for calls that were dropped because the
// session reached its PendingLimit.
var ErrPendingDiscarded = errors.New("jsonrpc2: pending call discarded")

// ConnectionLostError is returned for calls that were pending when the
// underlying connection failed, and for calls issued after.
type ConnectionLostError struct {
	Cause error
}

func (err ConnectionLostError) Error() string {
	if err.Cause == nil {
		return "jsonrpc2: connection lost"
	}
	return fmt.Sprintf("jsonrpc2: connection lost: %s", err.Cause)
}

func (err ConnectionLostError) Unwrap() error {
	return err.Cause
}

// IsConnectionLost returns true if err was caused by a lost connection.
func IsConnectionLost(err error) bool {
	var lost ConnectionLostError
	return errors.As(err, &lost)
}
