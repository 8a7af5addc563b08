package electrum

import (
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/vipnode/electrum/transport"
)

// Config of a Client. Zero fields are filled from DefaultConfig.
type Config struct {
	// ClientName is sent to the server during version negotiation.
	ClientName string
	// ProtocolVersion is the protocol version requested during negotiation.
	ProtocolVersion string

	// KeepaliveInterval is the idle time after which a ping is sent.
	KeepaliveInterval time.Duration
	// ReconnectDelay is the wait between a connection loss and the recovery
	// action of the Policy.
	ReconnectDelay time.Duration
	// HandshakeTimeout bounds the version negotiation.
	HandshakeTimeout time.Duration
	// CallTimeout bounds blocking calls. Zero means only the caller's
	// context applies.
	CallTimeout time.Duration

	// PendingLimit and PendingDiscard configure the session's pending call
	// bookkeeping, see jsonrpc2.Session.
	PendingLimit   int
	PendingDiscard int

	// NoInitReconnect stops a failed Init or Reconnect from scheduling the
	// policy's recovery action. Automatic reconnects after a lost connection
	// are not affected.
	NoInitReconnect bool

	// Clock drives the keepalive and reconnect timers.
	Clock mclock.Clock

	Transport transport.Options
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		ClientName:        "vipnode-electrum",
		ProtocolVersion:   transport.DefaultProtocolVersion,
		KeepaliveInterval: 5 * time.Second,
		ReconnectDelay:    10 * time.Second,
		HandshakeTimeout:  30 * time.Second,
		Clock:             mclock.System{},
		Transport:         transport.DefaultOptions(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ClientName == "" {
		c.ClientName = d.ClientName
	}
	if c.ProtocolVersion == "" {
		c.ProtocolVersion = d.ProtocolVersion
	}
	if c.KeepaliveInterval == 0 {
		c.KeepaliveInterval = d.KeepaliveInterval
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = d.ReconnectDelay
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.Clock == nil {
		c.Clock = d.Clock
	}
	if c.Transport == (transport.Options{}) {
		c.Transport = d.Transport
	}
	return c
}
