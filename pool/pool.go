// Package pool keeps a growing set of ElectrumX servers, one lazily
// connected electrum.Client per server, and fails over between them.
package pool

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/vipnode/electrum/electrum"
	"github.com/vipnode/electrum/pool/store"
	"github.com/vipnode/electrum/subscription"
	"github.com/vipnode/electrum/transport"
)

// Config of a Pool.
type Config struct {
	// Client configures every member.
	Client electrum.Config
	// Policy returns the persistence policy of a member when it is first
	// connected. Members reconnect unconditionally if Policy is nil.
	Policy func(transport.Endpoint) *electrum.Policy
	// Store persists discovered peers, optional.
	Store store.Store
	// DisableDiscovery stops members from asking servers for their peers.
	DisableDiscovery bool
	// DiscoveryTimeout bounds the peer request made after each connect.
	DiscoveryTimeout time.Duration
}

// DefaultConfig returns a discovering pool config with electrum defaults.
func DefaultConfig() Config {
	return Config{
		Client:           electrum.DefaultConfig(),
		DiscoveryTimeout: 30 * time.Second,
	}
}

type member struct {
	key    string
	client *electrum.Client
	policy *electrum.Policy
}

// Pool is a set of servers keyed by host and transport. Membership only
// grows: a server that was seen once stays a candidate.
type Pool struct {
	config Config

	mu      sync.Mutex
	members map[string]*member
	order   []string
	cursor  int
	closed  bool

	wg sync.WaitGroup
}

// New returns a pool seeded with the given endpoints and the unexpired peers
// of the configured store. No connections are made until Acquire.
func New(config Config, seeds ...transport.Endpoint) (*Pool, error) {
	if config.DiscoveryTimeout <= 0 {
		config.DiscoveryTimeout = DefaultConfig().DiscoveryTimeout
	}
	// Acquire fails over to the next member instead.
	config.Client.NoInitReconnect = true
	p := &Pool{
		config:  config,
		members: map[string]*member{},
	}
	for _, e := range seeds {
		p.Add(e)
	}
	if config.Store != nil {
		peers, err := config.Store.Peers()
		if err != nil {
			return nil, err
		}
		for _, peer := range peers {
			p.Add(peer.Endpoint)
		}
		logger.Printf("loaded %d stored peers", len(peers))
	}
	return p, nil
}

// Add makes the endpoint a member unless its key is already known. It
// returns whether a member was added.
func (p *Pool) Add(e transport.Endpoint) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.add(e)
}

// add must hold the p.mu lock.
func (p *Pool) add(e transport.Endpoint) bool {
	key := e.Key()
	if p.closed || p.members[key] != nil || e.Host == "" || e.Port <= 0 {
		return false
	}
	m := &member{
		key:    key,
		client: electrum.New(e, p.config.Client),
	}
	if p.config.Policy != nil {
		m.policy = p.config.Policy(e)
	}
	m.client.OnConnect(p.onConnect)
	m.client.OnError(func(c *electrum.Client, err error) {
		p.advancePast(key)
	})
	p.members[key] = m
	p.order = append(p.order, key)
	logger.Printf("added member %s", e)
	return true
}

// Merge adds the unknown endpoints and returns how many were added. Known
// endpoints are left untouched. Every merged endpoint is recorded in the
// store as seen now.
func (p *Pool) Merge(endpoints []transport.Endpoint) int {
	now := time.Now()
	var seen []store.Peer
	added := 0

	p.mu.Lock()
	for _, e := range endpoints {
		if p.add(e) {
			added++
			seen = append(seen, store.Peer{Endpoint: e, LastSeen: now})
		} else if m := p.members[e.Key()]; m != nil {
			seen = append(seen, store.Peer{Endpoint: m.client.Endpoint(), LastSeen: now})
		}
	}
	p.mu.Unlock()

	if p.config.Store != nil {
		for _, peer := range seen {
			if err := p.config.Store.SavePeer(peer); err != nil {
				logger.Printf("failed to save peer %s: %s", peer.Endpoint, err)
			}
		}
	}
	if added > 0 {
		logger.Printf("merged %d new members from %d endpoints", added, len(endpoints))
	}
	return added
}

// Len returns the number of members.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}

// Members returns every member's client in the order they were added.
func (p *Pool) Members() []*electrum.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := make([]*electrum.Client, 0, len(p.order))
	for _, key := range p.order {
		r = append(r, p.members[key].client)
	}
	return r
}

// advancePast moves the cursor to the member after key, if the cursor is on
// key.
func (p *Pool) advancePast(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.order)
	if n == 0 || p.order[p.cursor] != key {
		return
	}
	p.cursor = (p.cursor + 1) % n
	logger.Printf("failing over from %s to %s", key, p.order[p.cursor])
}

// Acquire returns a ready client. Starting at the cursor, members are tried
// one at a time: a ready member is returned as is, any other is connected
// with Init. Members that fail are skipped and the cursor moves past them. If
// none succeeds, the error is a PoolExhaustedError.
func (p *Pool) Acquire(ctx context.Context) (*electrum.Client, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	n := len(p.order)
	candidates := make([]*member, 0, n)
	for i := 0; i < n; i++ {
		candidates = append(candidates, p.members[p.order[(p.cursor+i)%n]])
	}
	p.mu.Unlock()

	exhausted := PoolExhaustedError{}
	for _, m := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		exhausted.NumTried++
		if m.client.State() == electrum.Ready {
			return m.client, nil
		}
		err := m.client.Init(ctx, m.policy)
		if err == nil {
			return m.client, nil
		}
		logger.Printf("failed to acquire %s: %s", m.client.Endpoint(), err)
		exhausted.Errors = append(exhausted.Errors, err)
		p.advancePast(m.key)
	}
	return nil, exhausted
}

// onConnect runs peer discovery for a member that just connected.
func (p *Pool) onConnect(c *electrum.Client) {
	if p.config.DisableDiscovery {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	c.Subscriptions().Register(subscription.PeersTopic, func(params json.RawMessage) {
		var pushed [][]electrum.PeerEntry
		if err := json.Unmarshal(params, &pushed); err != nil {
			logger.Printf("%s: invalid peers push: %s", c, err)
			return
		}
		for _, entries := range pushed {
			p.Merge(ParsePeers(entries))
		}
	})

	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.config.DiscoveryTimeout)
		defer cancel()
		entries, err := c.PeersSubscribe(ctx)
		if err != nil {
			logger.Printf("%s: peer discovery failed: %s", c, err)
			return
		}
		p.Merge(ParsePeers(entries))
	}()
}

// Close closes every member. Discovery in flight is waited for.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	members := make([]*member, 0, len(p.order))
	for _, key := range p.order {
		members = append(members, p.members[key])
	}
	p.mu.Unlock()

	for _, m := range members {
		m.client.Close()
	}
	p.wg.Wait()
	return nil
}
