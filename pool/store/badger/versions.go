package badger

import (
	"github.com/dgraph-io/badger"
)

const dbVersion = 2

var migrations = []MigrationStep{
	{From: 0, About: "initialize", Apply: func(txn *badger.Txn) error { return nil }},
	{From: 1, About: "drop peers stored without a TTL", Apply: dropPermanentPeers},
}

func dropPermanentPeers(txn *badger.Txn) error {
	return deletePrefix(txn, peerPrefix, func(item *badger.Item) bool {
		return item.ExpiresAt() == 0
	})
}
