package pool

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("pool is closed")

// PoolExhaustedError is returned when no member of the pool could be
// connected to.
type PoolExhaustedError struct {
	NumTried int
	Errors   []error
}

func (err PoolExhaustedError) Error() string {
	if err.NumTried == 0 {
		return "no electrum servers available"
	}

	var s strings.Builder
	fmt.Fprintf(&s, "no available electrum server found after trying %d servers", err.NumTried)
	for i, e := range err.Errors {
		if i == 0 {
			s.WriteString(": ")
		} else {
			s.WriteString("; ")
		}
		s.WriteString(e.Error())
	}
	return s.String()
}
