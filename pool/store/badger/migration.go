package badger

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger"
)

var versionKey = []byte("electrum:version")

// MigrationStep upgrades the database by one version. Migrate records the
// new version after Apply succeeds, in the same transaction.
type MigrationStep struct {
	From  int
	About string
	Apply func(txn *badger.Txn) error
}

// MigrationError is returned when the peer database has a version we can't
// migrate from, or a migration step fails.
type MigrationError struct {
	OldVersion int
	NewVersion int
	Path       string
	Cause      error
}

func (err MigrationError) Error() string {
	return fmt.Sprintf("peer store migration error: failed to migrate from version %d to %d at path %q: %s", err.OldVersion, err.NewVersion, err.Path, err.Cause)
}

func (err MigrationError) Unwrap() error {
	return err.Cause
}

// MigrateLatest brings the peer database at path to dbVersion.
func MigrateLatest(db *badger.DB, path string) error {
	return Migrate(db, path, dbVersion, migrations)
}

// Migrate applies steps in a single transaction until the database is at
// version latest. Each version between the current one and latest needs a
// step.
func Migrate(db *badger.DB, path string, latest int, steps []MigrationStep) error {
	byVersion := make(map[int]MigrationStep, len(steps))
	for _, step := range steps {
		byVersion[step.From] = step
	}

	return db.Update(func(txn *badger.Txn) error {
		version, err := getVersion(txn)
		fail := func(cause error) error {
			return MigrationError{OldVersion: version, NewVersion: latest, Path: path, Cause: cause}
		}
		if err != nil {
			return fail(err)
		}
		if version > latest {
			return fail(errors.New("database is newer than the supported version"))
		}

		for ; version < latest; version++ {
			step, ok := byVersion[version]
			if !ok {
				return fail(errors.New("no migration from this version"))
			}
			logger.Printf("migrating %q from version %d: %s", path, version, step.About)
			if err := step.Apply(txn); err != nil {
				return fail(err)
			}
			if err := setVersion(txn, version+1); err != nil {
				return fail(err)
			}
		}
		return nil
	})
}

func getVersion(txn *badger.Txn) (int, error) {
	var version int
	if err := getItem(txn, versionKey, &version); err != nil && err != badger.ErrKeyNotFound {
		return version, err
	}
	return version, nil
}

func setVersion(txn *badger.Txn, version int) error {
	return setItem(txn, versionKey, &version)
}
