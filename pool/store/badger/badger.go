package badger

import (
	"sort"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/vipnode/electrum/pool/store"
)

var peerPrefix = []byte("electrum:peer:")

func peerKey(key string) []byte {
	return append(append([]byte{}, peerPrefix...), key...)
}

// Open returns a store.Store implementation using Badger as the storage
// driver, migrated to the latest version. The store should be .Close()'d
// after use.
func Open(opts badger.Options) (*badgerStore, error) {
	if opts.Logger == nil {
		opts.Logger = badgerLogger{}
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	if err := MigrateLatest(db, opts.Dir); err != nil {
		db.Close()
		return nil, err
	}
	return &badgerStore{db: db}, nil
}

// OpenDir opens a store in dir with default options.
func OpenDir(dir string) (*badgerStore, error) {
	return Open(badger.DefaultOptions(dir))
}

var _ store.Store = &badgerStore{}

type badgerStore struct {
	db *badger.DB
}

func (s *badgerStore) Close() error {
	return s.db.Close()
}

// SavePeer stores the peer until it has not been seen for store.PeerTTL.
func (s *badgerStore) SavePeer(p store.Peer) error {
	if err := store.Valid(p); err != nil {
		return err
	}
	ttl := store.PeerTTL - time.Since(p.LastSeen)
	return s.db.Update(func(txn *badger.Txn) error {
		key := peerKey(p.Key())
		if ttl <= 0 {
			return txn.Delete(key)
		}
		return setExpiringItem(txn, key, &p, ttl)
	})
}

func (s *badgerStore) RemovePeer(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(peerKey(key))
	})
}

func (s *badgerStore) Peers() ([]store.Peer, error) {
	var r []store.Peer
	now := time.Now()
	err := s.db.View(func(txn *badger.Txn) error {
		var p store.Peer
		return loopItem(txn, peerPrefix, &p, func() error {
			if !p.Expired(now) {
				r = append(r, p)
			}
			p = store.Peer{}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(r, func(i, j int) bool { return r[i].Key() < r[j].Key() })
	return r, nil
}
