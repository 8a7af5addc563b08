package badger

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/dgraph-io/badger"
)

func getItem(txn *badger.Txn, key []byte, into interface{}) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return gob.NewDecoder(bytes.NewReader(val)).Decode(into)
	})
}

// loopItem decodes every value under prefix into the same destination,
// calling fn after each one.
func loopItem(txn *badger.Txn, prefix []byte, into interface{}, fn func() error) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		err := it.Item().Value(func(val []byte) error {
			return gob.NewDecoder(bytes.NewReader(val)).Decode(into)
		})
		if err != nil {
			return err
		}
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

func encode(val interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(val); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setItem(txn *badger.Txn, key []byte, val interface{}) error {
	b, err := encode(val)
	if err != nil {
		return err
	}
	return txn.Set(key, b)
}

func setExpiringItem(txn *badger.Txn, key []byte, val interface{}, expire time.Duration) error {
	b, err := encode(val)
	if err != nil {
		return err
	}
	return txn.SetEntry(badger.NewEntry(key, b).WithTTL(expire))
}

// deletePrefix deletes the keys under prefix whose item matches, or all of
// them if match is nil.
func deletePrefix(txn *badger.Txn, prefix []byte, match func(*badger.Item) bool) error {
	var keys [][]byte
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if match == nil || match(it.Item()) {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
	}
	it.Close()

	for _, key := range keys {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}
