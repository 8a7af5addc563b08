package electrum

import "sync"

// DefaultRetries is the retry budget of DefaultPolicy.
const DefaultRetries = 1000

// Policy governs what happens after a client loses its connection. The same
// Policy is shared by every reconnect attempt of a client, so the retry
// budget persists across reconnects. A nil *Policy reconnects
// unconditionally.
type Policy struct {
	mu sync.Mutex

	// RemainingRetries is decremented on every automatic reconnect.
	RemainingRetries int
	// OnExhausted is invoked once, instead of reconnecting, when the client
	// loses its connection with no retries remaining.
	OnExhausted func()
}

// DefaultPolicy returns a policy with DefaultRetries and no callback.
func DefaultPolicy() *Policy {
	return &Policy{RemainingRetries: DefaultRetries}
}

// Remaining returns the number of retries left.
func (p *Policy) Remaining() int {
	if p == nil {
		return -1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.RemainingRetries
}

type recovery int

const (
	recoverReconnect recovery = iota
	recoverCallback
	recoverStop
)

// next consumes the policy for one connection loss.
func (p *Policy) next() recovery {
	if p == nil {
		return recoverReconnect
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.RemainingRetries > 0 {
		p.RemainingRetries--
		return recoverReconnect
	}
	if p.OnExhausted != nil {
		return recoverCallback
	}
	return recoverStop
}
