package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/vipnode/electrum/transport"
)

// PeerTTL is how long a discovered peer is remembered without being
// advertised again.
const PeerTTL = 7 * 24 * time.Hour

// ErrMalformedPeer is returned when a peer without a host or port is saved.
var ErrMalformedPeer = errors.New("malformed peer")

// Peer is a server endpoint the pool has learned about.
type Peer struct {
	transport.Endpoint
	LastSeen time.Time
}

func (p Peer) String() string {
	return fmt.Sprintf("Peer(%s, %s)", p.Endpoint, p.LastSeen.Format(time.RFC3339))
}

// Expired returns whether the peer was last seen more than PeerTTL before now.
func (p Peer) Expired(now time.Time) bool {
	return now.Sub(p.LastSeen) > PeerTTL
}

// Valid returns ErrMalformedPeer if the peer can't be dialed.
func Valid(p Peer) error {
	if p.Host == "" || p.Port <= 0 {
		return ErrMalformedPeer
	}
	return nil
}

// Store is the storage interface used by the pool to remember discovered
// peers between runs. It should be goroutine-safe.
type Store interface {
	// SavePeer adds or replaces the peer with the same endpoint key.
	SavePeer(Peer) error
	// RemovePeer forgets the peer with the given endpoint key. Removing an
	// unknown peer is not an error.
	RemovePeer(key string) error
	// Peers returns the unexpired peers, ordered by endpoint key.
	Peers() ([]Peer, error)
	// Close releases the store's resources.
	Close() error
}
