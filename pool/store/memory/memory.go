package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vipnode/electrum/pool/store"
)

// New implements an ephemeral in-memory store. Peers are forgotten when the
// process exits.
func New() *memoryStore {
	return &memoryStore{
		peers: map[string]store.Peer{},
		now:   time.Now,
	}
}

// Assert Store implementation
var _ store.Store = &memoryStore{}

type memoryStore struct {
	mu    sync.Mutex
	peers map[string]store.Peer
	now   func() time.Time
}

// SavePeer adds or replaces the peer with the same endpoint key.
func (s *memoryStore) SavePeer(p store.Peer) error {
	if err := store.Valid(p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers[p.Key()] = p
	return nil
}

// RemovePeer forgets a peer.
func (s *memoryStore) RemovePeer(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, key)
	return nil
}

// Peers returns the unexpired peers and drops the expired ones.
func (s *memoryStore) Peers() ([]store.Peer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	r := make([]store.Peer, 0, len(s.peers))
	for key, p := range s.peers {
		if p.Expired(now) {
			delete(s.peers, key)
			continue
		}
		r = append(r, p)
	}
	sort.Slice(r, func(i, j int) bool { return r[i].Key() < r[j].Key() })
	return r, nil
}

func (s *memoryStore) Close() error {
	return nil
}
