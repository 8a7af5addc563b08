package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"time"

	"github.com/alexcesaro/log"
	"github.com/alexcesaro/log/golog"
	flags "github.com/jessevdk/go-flags"
	"github.com/vipnode/electrum/electrum"
	"github.com/vipnode/electrum/internal/pretty"
	"github.com/vipnode/electrum/jsonrpc2"
	"github.com/vipnode/electrum/pool"
	badgerStore "github.com/vipnode/electrum/pool/store/badger"
	"github.com/vipnode/electrum/transport"
)

// defaultServers seed the pool when no --server is given.
var defaultServers = []string{
	"electrum.blockstream.info:50002:s",
	"electrum.emzy.de:50002:s",
	"electrum.bitaroo.net:50002:s",
}

// Version of the binary, assigned during build.
var Version string = "dev"

var rpcTimeout = time.Second * 30

// Options contains the flag options
type Options struct {
	Verbose []bool `short:"v" long:"verbose" description:"Show verbose logging."`
	Version bool   `long:"version" description:"Print version and exit."`

	Servers    []string `short:"s" long:"server" description:"Seed server, as host:port:s, host:port:t or a tcp://, tls://, ws:// or wss:// URI. (repeatable)"`
	Store      string   `long:"store" description:"Storage driver for discovered peers. (persist|memory)" default:"persist"`
	DataDir    string   `long:"datadir" description:"Path for storing persistent data, such as discovered peers."`
	NoDiscover bool     `long:"nodiscover" description:"Don't ask servers for their peers."`
	Retries    int      `long:"retries" description:"Reconnect attempts per server after a lost connection." default:"1000"`

	Connect struct {
		Follow bool `long:"follow" description:"Keep running and print every new block header."`
	} `command:"connect" description:"Connect to a server from the pool and print its details."`

	Peers struct {
	} `command:"peers" description:"Print the peers advertised by a server from the pool."`

	Balance struct {
		Args struct {
			ScriptHashes []string `positional-arg-name:"scripthash" description:"Script hashes to look up, hex encoded" required:"yes"`
		} `positional-args:"yes"`
	} `command:"balance" description:"Print the balance of one or more script hashes."`

	Call struct {
		Args struct {
			Method string   `positional-arg-name:"method" description:"Protocol method, such as blockchain.scripthash.get_balance" required:"yes"`
			Params []string `positional-arg-name:"params" description:"Positional params, as JSON values or plain strings"`
		} `positional-args:"yes"`
	} `command:"call" description:"Call a protocol method and print the raw result."`
}

const callUsage = `Examples:
* Fetch the current tip:
  $ electrum call blockchain.headers.subscribe

* Fetch the balance of a script hash:
  $ electrum call blockchain.scripthash.get_balance 8b01df4e368ea28f8dc0423bcf7a4923e3a12d307c875e47a0cfbf90b5c39161
`

var logLevels = []log.Level{
	log.Warning,
	log.Info,
	log.Debug,
}

// parseParams decodes each param as JSON, falling back to a plain string.
func parseParams(args []string) []interface{} {
	params := make([]interface{}, 0, len(args))
	for _, arg := range args {
		var v interface{}
		if err := json.Unmarshal([]byte(arg), &v); err != nil {
			v = arg
		}
		params = append(params, v)
	}
	return params
}

func seedEndpoints(servers []string) ([]transport.Endpoint, error) {
	if len(servers) == 0 {
		servers = defaultServers
	}
	endpoints := make([]transport.Endpoint, 0, len(servers))
	for _, s := range servers {
		e, err := transport.ParseEndpoint(s)
		if err != nil {
			return nil, ErrExplain{err, fmt.Sprintf(`Invalid server %q. Use host:port:s for TLS, host:port:t for plain TCP, or a URI such as tls://host:port.`, s)}
		}
		endpoints = append(endpoints, e)
	}
	return endpoints, nil
}

// interruptContext is cancelled on ctrl+c.
func interruptContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Shutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func subcommand(cmd string, options Options) error {
	seeds, err := seedEndpoints(options.Servers)
	if err != nil {
		return err
	}
	p, closeStore, err := openPool(options, seeds)
	if err != nil {
		return err
	}
	defer closeStore()
	defer p.Close()

	ctx, cancel := interruptContext()
	defer cancel()

	acquireCtx, acquireCancel := context.WithTimeout(ctx, rpcTimeout)
	c, err := p.Acquire(acquireCtx)
	acquireCancel()
	if err != nil {
		return err
	}
	logger.Infof("Connected to %s (%d servers in pool)", c.Endpoint(), p.Len())

	callCtx, callCancel := context.WithTimeout(ctx, rpcTimeout)
	defer callCancel()

	switch cmd {
	case "connect":
		version := c.ServerVersion()
		banner, err := c.Banner(callCtx)
		if err != nil {
			return err
		}
		fmt.Printf("server: %s\nsoftware: %s\nbanner: %s\n", c.Endpoint(), strings.Join(version, " / "), banner)

		headers := make(chan electrum.Header, 16)
		onHeader := func(h electrum.Header) {
			select {
			case headers <- h:
			default:
			}
		}
		tip, err := c.HeadersSubscribe(callCtx, onHeader)
		if err != nil {
			return err
		}
		fmt.Printf("tip: %d\n", tip.Height)
		if !options.Connect.Follow {
			return nil
		}

		watcher := newLossWatcher()
		watcher.Follow(c)
		for {
			select {
			case h := <-headers:
				fmt.Printf("tip: %d\n", h.Height)
			case <-watcher.Lost():
				// Subscriptions don't survive a lost connection.
				logger.Warning("Connection lost, waiting for a server to subscribe to headers again.")
				if c, err = reacquire(ctx, p); err != nil {
					return err
				}
				watcher.Follow(c)
				subCtx, subCancel := context.WithTimeout(ctx, rpcTimeout)
				tip, err := c.HeadersSubscribe(subCtx, onHeader)
				subCancel()
				if err != nil {
					return err
				}
				fmt.Printf("tip: %d\n", tip.Height)
			case <-ctx.Done():
				return nil
			}
		}

	case "peers":
		entries, err := c.PeersSubscribe(callCtx)
		if err != nil {
			return err
		}
		for _, e := range pool.ParsePeers(entries) {
			fmt.Printf("%s\tprotocol=%s\tpruning=%s\n", e, e.ProtocolVersion, e.Pruning)
		}
		return nil

	case "balance":
		scriptHashes := options.Balance.Args.ScriptHashes
		balances, err := c.GetBalanceBatch(callCtx, scriptHashes...)
		var batchErr *electrum.BatchError
		if err != nil && !errors.As(err, &batchErr) {
			return err
		}
		for i, balance := range balances {
			if batchErr != nil && batchErr.Errs[i] != nil {
				fmt.Printf("%s\terror: %s\n", scriptHashes[i], batchErr.Errs[i])
				continue
			}
			fmt.Printf("%s\tconfirmed: %s\tunconfirmed: %s\n", scriptHashes[i], pretty.Coin(balance.Confirmed), pretty.Coin(balance.Unconfirmed))
		}
		return nil

	case "call":
		var result json.RawMessage
		if err := c.Call(callCtx, &result, options.Call.Args.Method, parseParams(options.Call.Args.Params)...); err != nil {
			return err
		}
		fmt.Println(string(result))
		return nil
	}

	return nil
}

// lossWatcher signals connection errors of the client being followed.
// Errors of clients that were followed before are ignored.
type lossWatcher struct {
	following atomic.Value
	watched   map[*electrum.Client]bool
	lost      chan struct{}
}

func newLossWatcher() *lossWatcher {
	return &lossWatcher{
		watched: map[*electrum.Client]bool{},
		lost:    make(chan struct{}, 1),
	}
}

// Follow makes c the followed client. It must not be called concurrently.
func (w *lossWatcher) Follow(c *electrum.Client) {
	w.following.Store(c)
	if w.watched[c] {
		return
	}
	w.watched[c] = true
	c.OnError(func(c *electrum.Client, err error) {
		if w.following.Load() != c {
			return
		}
		select {
		case w.lost <- struct{}{}:
		default:
		}
	})
}

// Lost receives once per batch of errors of the followed client.
func (w *lossWatcher) Lost() <-chan struct{} {
	return w.lost
}

// reacquire retries Acquire until it succeeds or ctx is done.
func reacquire(ctx context.Context, p *pool.Pool) (*electrum.Client, error) {
	for {
		c, err := p.Acquire(ctx)
		if err == nil {
			return c, nil
		}
		logger.Warningf("Failed to acquire a server: %s", err)
		select {
		case <-time.After(electrum.DefaultConfig().ReconnectDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func main() {
	options := Options{}
	parser := flags.NewParser(&options, flags.Default)
	parser.SubcommandsOptional = true
	p, err := parser.Parse()
	if err != nil {
		if p == nil {
			fmt.Println(err)
		}
		if flagErr, ok := err.(*flags.Error); ok && flagErr.Type == flags.ErrHelp && parser.Active != nil {
			// Print additional usage help when run with --help
			switch parser.Active.Name {
			case "call":
				exit(0, callUsage)
			}
		}
		return
	}

	if options.Version {
		fmt.Println(Version)
		os.Exit(0)
	}

	// Figure out the log level
	numVerbose := len(options.Verbose)
	if numVerbose >= len(logLevels) {
		numVerbose = len(logLevels) - 1
	}

	logLevel := logLevels[numVerbose]
	logWriter := os.Stderr

	SetLogger(golog.New(logWriter, logLevel))
	if logLevel == log.Debug {
		setPackageLoggers(logWriter)
	}

	cmd := "connect"
	if parser.Active != nil {
		cmd = parser.Active.Name
	}
	err = subcommand(cmd, options)
	if err == nil {
		return
	}

	if err == io.EOF || jsonrpc2.IsConnectionLost(err) {
		exit(3, "Connection closed.\n")
	}

	var exhausted pool.PoolExhaustedError
	var negotiation electrum.NegotiationError
	var migration badgerStore.MigrationError
	switch typedErr := err.(type) {
	case ErrExplain:
		// All good.
	case net.Error:
		err = ErrExplain{err, `Disconnected from server unexpectedly. Could be a connectivity issue or the server is down. Try again?`}
	case interface{ ErrorCode() int }:
		switch typedErr.ErrorCode() {
		case jsonrpc2.ErrCodeMethodNotFound:
			err = ErrExplain{err, `The server does not know this method. Check the spelling, or try a server running a newer protocol version.`}
		default:
			err = ErrExplain{err, fmt.Sprintf(`The server rejected the call (code %d). Check the params, such as the script hash or transaction hash.`, typedErr.ErrorCode())}
		}
	default:
		switch {
		case errors.As(err, &exhausted):
			err = ErrExplain{err, `None of the known servers accepted a connection. Check your network, or add a server with --server.`}
		case errors.As(err, &negotiation):
			err = ErrExplain{err, `The server does not support the requested protocol version.`}
		case errors.As(err, &migration):
			err = ErrExplain{err, `The peer database could not be upgraded. Remove it from the --datadir, or use --store=memory.`}
		case errors.Is(err, context.DeadlineExceeded):
			err = ErrExplain{err, `The server took too long to respond. Try again?`}
		case errors.Is(err, context.Canceled):
			return
		default:
			err = ErrExplain{err, fmt.Sprintf(`Error type %T is missing an explanation. Please open an issue at https://github.com/vipnode/electrum`, err)}
		}
	}

	exit(2, "%s failed: %s\n", cmd, err)
}

func exit(code int, format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(code)
}

// ErrExplain annotates an error with an explanation.
type ErrExplain struct {
	Cause       error
	Explanation string
}

func (err ErrExplain) Error() string {
	return fmt.Sprintf("%s\n -> %s", err.Cause, err.Explanation)
}
