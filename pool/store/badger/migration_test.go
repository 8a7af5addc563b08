package badger

import (
	"errors"
	"testing"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/vipnode/electrum/pool/store"
	"github.com/vipnode/electrum/transport"
)

func TestMigration(t *testing.T) {
	store, err := OpenTemp()
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	db := store.db

	err = db.View(func(txn *badger.Txn) error {
		version, err := getVersion(txn)
		if err != nil {
			return err
		}
		if version != dbVersion {
			t.Errorf("incorrect version on fresh database: %d", version)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestMigrationDropsPermanentPeers(t *testing.T) {
	s, err := OpenTemp()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	old := store.Peer{
		Endpoint: transport.Endpoint{Host: "old.example.org", Port: 50001},
		LastSeen: time.Now(),
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		if err := setVersion(txn, 1); err != nil {
			return err
		}
		return setItem(txn, peerKey(old.Key()), &old)
	}); err != nil {
		t.Fatal(err)
	}

	if err := MigrateLatest(s.db, s.Dir); err != nil {
		t.Fatal(err)
	}
	peers, err := s.Peers()
	if err != nil {
		t.Fatal(err)
	}
	if len(peers) != 0 {
		t.Errorf("got: %v; want no peers", peers)
	}
}

func TestMigrationTooNew(t *testing.T) {
	s, err := OpenTemp()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.db.Update(func(txn *badger.Txn) error {
		return setVersion(txn, dbVersion+1)
	}); err != nil {
		t.Fatal(err)
	}
	err = MigrateLatest(s.db, s.Dir)
	if migErr, ok := err.(MigrationError); !ok || migErr.OldVersion != dbVersion+1 {
		t.Errorf("got: %v; want MigrationError", err)
	}
}

func TestMigrationMissingStep(t *testing.T) {
	s, err := OpenTemp()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	applied := 0
	steps := []MigrationStep{
		{From: 2, Apply: func(txn *badger.Txn) error { applied++; return nil }},
	}
	err = Migrate(s.db, s.Dir, 4, steps)
	var migErr MigrationError
	if !errors.As(err, &migErr) || migErr.OldVersion != 3 {
		t.Errorf("got: %v; want MigrationError from version 3", err)
	}
	// The transaction was discarded.
	if err := s.db.View(func(txn *badger.Txn) error {
		version, err := getVersion(txn)
		if version != dbVersion {
			t.Errorf("got: version %d; want %d", version, dbVersion)
		}
		return err
	}); err != nil {
		t.Fatal(err)
	}

	steps = append(steps, MigrationStep{From: 3, Apply: func(txn *badger.Txn) error { applied++; return nil }})
	if err := Migrate(s.db, s.Dir, 4, steps); err != nil {
		t.Fatal(err)
	}
	if applied != 3 {
		t.Errorf("got: %d steps applied; want 3", applied)
	}
}
