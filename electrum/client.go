// Package electrum implements a resilient ElectrumX client: a session that
// negotiates the protocol version, keeps itself alive with pings and
// reconnects after connection loss according to a Policy.
package electrum

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/vipnode/electrum/jsonrpc2"
	"github.com/vipnode/electrum/subscription"
	"github.com/vipnode/electrum/transport"
)

var _ jsonrpc2.Service = &Client{}

// Client owns at most one live session with a single server endpoint.
type Client struct {
	endpoint  transport.Endpoint
	config    Config
	clock     mclock.Clock
	transport *transport.Transport
	subs      subscription.Dispatcher

	mu            sync.Mutex
	state         State
	policy        *Policy
	session       *jsonrpc2.Session
	gen           uint64 // incremented for every session
	serverVersion []string
	lastActivity  mclock.AbsTime

	keepalive    mclock.Timer
	keepaliveSeq uint64
	reconnect    mclock.Timer
	reconnectSeq uint64

	onConnect []func(*Client)
	onError   []func(*Client, error)
}

// New returns an unconnected client for the endpoint.
func New(endpoint transport.Endpoint, config Config) *Client {
	config = config.withDefaults()
	return &Client{
		endpoint:  endpoint,
		config:    config,
		clock:     config.Clock,
		transport: transport.New(config.Transport),
		state:     Disconnected,
	}
}

func (c *Client) String() string {
	return "electrum.Client(" + c.endpoint.String() + ")"
}

// Endpoint returns the endpoint the client connects to.
func (c *Client) Endpoint() transport.Endpoint {
	return c.endpoint
}

// Transport returns the client's transport, whose socket settings can be
// changed at any time.
func (c *Client) Transport() *transport.Transport {
	return c.transport
}

// Subscriptions returns the registry that receives the server's pushes.
// Listeners are cleared whenever the connection is lost; subscriptions must
// be issued again after reconnecting.
func (c *Client) Subscriptions() *subscription.Dispatcher {
	return &c.subs
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Policy returns the persistence policy given to Init.
func (c *Client) Policy() *Policy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policy
}

// ServerVersion returns the [software, protocol] pair reported by the server
// during the last successful negotiation.
func (c *Client) ServerVersion() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverVersion
}

// OnConnect registers a hook that runs after every successful negotiation,
// including reconnects.
func (c *Client) OnConnect(fn func(*Client)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = append(c.onConnect, fn)
}

// OnError registers a hook that runs for every connection-level error:
// failed connects, failed negotiations, lost connections and policy
// exhaustion.
func (c *Client) OnError(fn func(*Client, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = append(c.onError, fn)
}

// setState must hold the c.mu lock.
func (c *Client) setState(s State) bool {
	if !canTransition(c.state, s) {
		return false
	}
	logger.Printf("%s: %s -> %s", c, c.state, s)
	c.state = s
	return true
}

func (c *Client) emitError(err error) {
	c.mu.Lock()
	hooks := make([]func(*Client, error), len(c.onError))
	copy(hooks, c.onError)
	c.mu.Unlock()

	logger.Printf("%s: %s", c, err)
	for _, fn := range hooks {
		fn(c, err)
	}
}

// Init connects to the endpoint and negotiates the protocol version. The
// policy is kept for automatic reconnects. A failed Init is reported to the
// error hooks and returned, and the policy's recovery action follows after
// ReconnectDelay unless Config.NoInitReconnect is set.
func (c *Client) Init(ctx context.Context, policy *Policy) error {
	c.mu.Lock()
	if c.state == Ready {
		c.policy = policy
		c.mu.Unlock()
		return nil
	}
	c.policy = policy
	c.mu.Unlock()
	return c.connectOrRecover(ctx)
}

// connectOrRecover connects and treats a failure like a lost connection.
func (c *Client) connectOrRecover(ctx context.Context) error {
	err := c.connect(ctx)
	if err != nil && err != ErrClientClosed && !c.config.NoInitReconnect {
		c.scheduleReconnect()
	}
	return err
}

// Reconnect tears down the current session, if any, and connects again with
// the remembered endpoint, configuration and policy.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	session := c.session
	if c.state == Ready {
		c.gen++
		c.session = nil
		c.stopKeepalive()
		c.setState(Disconnected)
	}
	c.mu.Unlock()

	if session != nil {
		c.subs.Clear()
		session.Close()
	}
	return c.connectOrRecover(ctx)
}

func (c *Client) connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if !c.setState(Connecting) {
		err := StateError{"connect", c.state}
		c.mu.Unlock()
		return err
	}
	c.stopReconnect()
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	conn, err := c.transport.Open(ctx, c.endpoint)
	if err != nil {
		return c.failConnect(gen, err)
	}

	session := jsonrpc2.NewSession(jsonrpc2.IOCodec(conn), &c.subs)
	session.PendingLimit = c.config.PendingLimit
	session.PendingDiscard = c.config.PendingDiscard

	c.mu.Lock()
	if c.gen != gen || !c.setState(Handshaking) {
		c.mu.Unlock()
		session.Close()
		return ErrClientClosed
	}
	c.session = session
	c.mu.Unlock()

	go c.serve(gen, session)

	hctx, cancel := context.WithTimeout(ctx, c.config.HandshakeTimeout)
	defer cancel()
	var version []string
	if err := session.Call(hctx, &version, "server.version", c.config.ClientName, c.config.ProtocolVersion); err != nil {
		session.Close()
		return c.failConnect(gen, NegotiationError{err})
	}

	c.mu.Lock()
	if c.gen != gen || !c.setState(Ready) {
		c.mu.Unlock()
		session.Close()
		return ErrClientClosed
	}
	c.serverVersion = version
	c.touch()
	hooks := make([]func(*Client), len(c.onConnect))
	copy(hooks, c.onConnect)
	c.mu.Unlock()

	logger.Printf("%s: connected, server version %q", c, version)
	for _, fn := range hooks {
		fn(c)
	}
	return nil
}

// failConnect moves a connect attempt of generation gen back to
// Disconnected and reports err.
func (c *Client) failConnect(gen uint64, err error) error {
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.gen == gen {
		c.session = nil
		c.setState(Disconnected)
	}
	c.mu.Unlock()

	c.emitError(err)
	return err
}

// serve runs the session's read loop and handles the loss of a ready
// connection.
func (c *Client) serve(gen uint64, session *jsonrpc2.Session) {
	err := session.Serve()

	c.mu.Lock()
	if c.gen != gen || c.state != Ready {
		// Closed, replaced or still negotiating; connect handles the latter.
		c.mu.Unlock()
		return
	}
	c.session = nil
	c.stopKeepalive()
	c.setState(Disconnected)
	c.mu.Unlock()

	c.subs.Clear()
	c.emitError(jsonrpc2.ConnectionLostError{Cause: err})
	c.scheduleReconnect()
}

// scheduleReconnect arms the single reconnect timer. The policy is consulted
// when it fires.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Disconnected || c.reconnect != nil {
		return
	}
	c.setState(ReconnectPending)
	c.reconnectSeq++
	seq := c.reconnectSeq
	c.reconnect = c.clock.AfterFunc(c.config.ReconnectDelay, func() {
		c.recover(seq)
	})
}

// stopReconnect must hold the c.mu lock.
func (c *Client) stopReconnect() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	c.reconnectSeq++
}

func (c *Client) recover(seq uint64) {
	c.mu.Lock()
	if c.reconnectSeq != seq || c.state != ReconnectPending {
		c.mu.Unlock()
		return
	}
	c.reconnect = nil
	policy := c.policy
	action := policy.next()
	if action != recoverReconnect {
		c.setState(Disconnected)
	}
	c.mu.Unlock()

	switch action {
	case recoverReconnect:
		logger.Printf("%s: reconnecting, %d retries remaining", c, policy.Remaining())
		ctx := context.Background()
		if err := c.connect(ctx); err != nil && err != ErrClientClosed {
			// A failed reconnect counts as another loss.
			c.scheduleReconnect()
		}
	case recoverCallback:
		logger.Printf("%s: retries exhausted, invoking callback", c)
		policy.OnExhausted()
	case recoverStop:
		c.emitError(ErrPolicyExhausted)
	}
}

// touch records activity and re-arms the keepalive timer, must hold the c.mu
// lock.
func (c *Client) touch() {
	c.lastActivity = c.clock.Now()
	c.stopKeepalive()
	seq := c.keepaliveSeq
	c.keepalive = c.clock.AfterFunc(c.config.KeepaliveInterval, func() {
		c.keepaliveFired(seq)
	})
}

// stopKeepalive must hold the c.mu lock.
func (c *Client) stopKeepalive() {
	if c.keepalive != nil {
		c.keepalive.Stop()
		c.keepalive = nil
	}
	c.keepaliveSeq++
}

func (c *Client) keepaliveFired(seq uint64) {
	c.mu.Lock()
	if c.keepaliveSeq != seq || c.state != Ready {
		c.mu.Unlock()
		return
	}
	c.keepalive = nil
	idle := time.Duration(c.clock.Now() - c.lastActivity)
	c.mu.Unlock()

	if idle < c.config.KeepaliveInterval {
		return
	}
	logger.Printf("%s: idle for %s, sending ping", c, idle)
	call := c.Go("server.ping")
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.config.HandshakeTimeout)
		defer cancel()
		if _, err := call.Wait(ctx); err != nil {
			logger.Printf("%s: ping failed: %s", c, err)
		}
	}()
}

// readySession returns the live session and records activity.
func (c *Client) readySession() (*jsonrpc2.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Ready:
	case Closed:
		return nil, ErrClientClosed
	default:
		return nil, ErrNotConnected
	}
	c.touch()
	return c.session, nil
}

// Go issues a call without waiting for its reply. Calls fail immediately
// unless the client is ready.
func (c *Client) Go(method string, params ...interface{}) *jsonrpc2.Call {
	session, err := c.readySession()
	if err != nil {
		return jsonrpc2.FailedCall(method, err)
	}
	return session.Go(method, params...)
}

// GoBatch issues one call of method per argument in a single write.
func (c *Client) GoBatch(method string, args ...interface{}) *jsonrpc2.BatchCall {
	session, err := c.readySession()
	if err != nil {
		return jsonrpc2.FailedBatch(method, len(args), err)
	}
	return session.GoBatch(method, args...)
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.CallTimeout > 0 {
		return context.WithTimeout(ctx, c.config.CallTimeout)
	}
	return context.WithCancel(ctx)
}

// Call issues a call and decodes its result into result.
func (c *Client) Call(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	return c.Go(method, params...).Decode(ctx, result)
}

// CallBatch issues a batch and waits for every item. Results are in the
// order of args; an item the server failed carries its own error.
func (c *Client) CallBatch(ctx context.Context, method string, args ...interface{}) ([]jsonrpc2.BatchResult, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	return c.GoBatch(method, args...).Wait(ctx)
}

// Close stops both timers, fails pending calls with jsonrpc2.ErrClosed and
// closes the connection. A closed client never reconnects. Close is
// idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return nil
	}
	c.setState(Closed)
	c.gen++
	c.stopKeepalive()
	c.stopReconnect()
	session := c.session
	c.session = nil
	c.mu.Unlock()

	c.subs.Clear()
	var err error
	if session != nil {
		err = session.Close()
	}
	c.transport.Close()
	return err
}
