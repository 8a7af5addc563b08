package main

import (
	"errors"
	"os"

	"github.com/OpenPeeDeeP/xdg"
	"github.com/vipnode/electrum/electrum"
	"github.com/vipnode/electrum/pool"
	"github.com/vipnode/electrum/pool/store"
	badgerStore "github.com/vipnode/electrum/pool/store/badger"
	"github.com/vipnode/electrum/pool/store/memory"
	"github.com/vipnode/electrum/transport"
)

// findDataDir returns a valid data dir, will create it if it doesn't
// exist.
func findDataDir(overridePath string) (string, error) {
	path := overridePath
	if path == "" {
		path = xdg.New("vipnode", "electrum").DataHome()
	}
	err := os.MkdirAll(path, 0700)
	return path, err
}

func openStore(options Options) (store.Store, error) {
	switch options.Store {
	case "memory":
		return memory.New(), nil
	case "persist":
		fallthrough
	case "badger":
		dir, err := findDataDir(options.DataDir)
		if err != nil {
			return nil, err
		}
		s, err := badgerStore.OpenDir(dir)
		if err != nil {
			return nil, err
		}
		logger.Infof("Persistent peer store using badger backend: %s", dir)
		return s, nil
	}
	return nil, errors.New("storage driver not implemented")
}

// openPool returns a pool seeded with the given endpoints and the stored
// peers. The returned func closes the store.
func openPool(options Options, seeds []transport.Endpoint) (*pool.Pool, func() error, error) {
	storeDriver, err := openStore(options)
	if err != nil {
		return nil, nil, ErrExplain{err, `Failed to open the peer store. Make sure no other electrum process is using the --datadir, or use --store=memory.`}
	}

	config := pool.DefaultConfig()
	config.Client.ClientName = "vipnode-electrum/" + Version
	config.Store = storeDriver
	config.DisableDiscovery = options.NoDiscover
	retries := options.Retries
	config.Policy = func(e transport.Endpoint) *electrum.Policy {
		return &electrum.Policy{RemainingRetries: retries}
	}

	p, err := pool.New(config, seeds...)
	if err != nil {
		storeDriver.Close()
		return nil, nil, err
	}
	return p, storeDriver.Close, nil
}
