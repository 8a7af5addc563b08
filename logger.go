package main

import (
	"io"
	"io/ioutil"

	"github.com/alexcesaro/log"
	"github.com/alexcesaro/log/golog"
	"github.com/vipnode/electrum/electrum"
	"github.com/vipnode/electrum/jsonrpc2"
	"github.com/vipnode/electrum/pool"
	badgerStore "github.com/vipnode/electrum/pool/store/badger"
	"github.com/vipnode/electrum/subscription"
	"github.com/vipnode/electrum/transport"
)

var logger *golog.Logger

// SetLogger overrides the main logger of this command.
func SetLogger(l *golog.Logger) {
	logger = l
}

// setPackageLoggers sends the log output of every subpackage to w. They log
// unleveled, so this is only worth doing at debug level.
func setPackageLoggers(w io.Writer) {
	pool.SetLogger(w)
	electrum.SetLogger(w)
	transport.SetLogger(w)
	jsonrpc2.SetLogger(w)
	subscription.SetLogger(w)
	badgerStore.SetLogger(w)
}

func init() {
	SetLogger(golog.New(ioutil.Discard, log.Debug))
}
