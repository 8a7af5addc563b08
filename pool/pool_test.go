package pool

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/vipnode/electrum/electrum"
	"github.com/vipnode/electrum/internal/fakeserver"
	"github.com/vipnode/electrum/pool/store/memory"
	"github.com/vipnode/electrum/transport"
)

func testConfig() Config {
	config := DefaultConfig()
	config.Client.Clock = &mclock.Simulated{}
	config.Client.HandshakeTimeout = 2 * time.Second
	config.DiscoveryTimeout = 2 * time.Second
	config.DisableDiscovery = true
	return config
}

func startServer(t *testing.T) (*fakeserver.Server, transport.Endpoint) {
	t.Helper()
	s := fakeserver.New()
	t.Cleanup(func() { s.Close() })
	e, err := s.Listen(transport.Plain)
	if err != nil {
		t.Fatal(err)
	}
	return s, e
}

// aliased returns e under a different host name that reaches the same
// server, so that it gets its own pool key.
func aliased(e transport.Endpoint) transport.Endpoint {
	e.Host = "localhost"
	return e
}

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", desc)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAddIsIdempotent(t *testing.T) {
	e := transport.Endpoint{Host: "electrum.example.org", Port: 50002, Security: transport.TLS}
	p, err := New(testConfig(), e)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	first := p.Members()[0]
	other := e
	other.Port = 60002
	if p.Add(other) {
		t.Error("added an endpoint with a known key")
	}
	plain := e
	plain.Security = transport.Plain
	if !p.Add(plain) {
		t.Error("failed to add the plain endpoint of a known host")
	}

	if got := p.Merge([]transport.Endpoint{e, other, plain}); got != 0 {
		t.Errorf("got: %d merged; want 0", got)
	}
	if got, want := p.Len(), 2; got != want {
		t.Errorf("got: %d members; want %d", got, want)
	}
	if p.Members()[0] != first {
		t.Error("merge replaced a known member")
	}
	if got := p.Members()[0].Endpoint().Port; got != 50002 {
		t.Errorf("got: %d; want the original port", got)
	}

	if p.Add(transport.Endpoint{Port: 1}) || p.Add(transport.Endpoint{Host: "noport"}) {
		t.Error("added a malformed endpoint")
	}
}

func TestMergeIsMonotonic(t *testing.T) {
	p, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	last := 0
	for i := 0; i < 5; i++ {
		var batch []transport.Endpoint
		for j := 0; j <= i; j++ {
			batch = append(batch, transport.Endpoint{Host: "host" + strconv.Itoa(j) + ".example.org", Port: 50001})
		}
		p.Merge(batch)
		p.Merge(batch[:1])
		if n := p.Len(); n < last || n != i+1 {
			t.Errorf("step %d: got: %d members; want %d", i, n, i+1)
		}
		last = p.Len()
	}
}

func TestAcquireExhausted(t *testing.T) {
	p, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Acquire(context.Background())
	var exhausted PoolExhaustedError
	if !errors.As(err, &exhausted) || exhausted.NumTried != 0 {
		t.Errorf("got: %v; want PoolExhaustedError", err)
	}

	s1, e1 := startServer(t)
	s2, e2 := startServer(t)
	s1.RejectVersion(true)
	s2.Close()
	p.Add(e1)
	p.Add(aliased(e2))

	_, err = p.Acquire(context.Background())
	if !errors.As(err, &exhausted) || exhausted.NumTried != 2 || len(exhausted.Errors) != 2 {
		t.Errorf("got: %v; want PoolExhaustedError after 2 tries", err)
	}

	p.Close()
	if _, err := p.Acquire(context.Background()); err != ErrPoolClosed {
		t.Errorf("got: %v; want %v", err, ErrPoolClosed)
	}
}

func TestAcquireFailover(t *testing.T) {
	bad, badEndpoint := startServer(t)
	bad.RejectVersion(true)
	good, goodEndpoint := startServer(t)

	p, err := New(testConfig(), badEndpoint, aliased(goodEndpoint))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	c, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got, want := c.Endpoint(), aliased(goodEndpoint); got != want {
		t.Errorf("got: %s; want %s", got, want)
	}
	if bad.Accepts() != 1 || good.Accepts() != 1 {
		t.Errorf("unexpected accepts: bad=%d good=%d", bad.Accepts(), good.Accepts())
	}

	// Failed members wait for the next Acquire rather than reconnecting.
	if got := p.Members()[0].State(); got != electrum.Disconnected {
		t.Errorf("got: %s; want %s", got, electrum.Disconnected)
	}

	// The cursor moved past the failing member.
	c2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c2 != c {
		t.Errorf("got: %s; want the same ready client", c2)
	}
	if bad.Accepts() != 1 || good.Accepts() != 1 {
		t.Errorf("unexpected accepts: bad=%d good=%d", bad.Accepts(), good.Accepts())
	}
}

func TestFailoverOnConnectionLoss(t *testing.T) {
	s1, e1 := startServer(t)
	s2, e2 := startServer(t)
	p, err := New(testConfig(), e1, aliased(e2))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	c1, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c1.Endpoint() != e1 {
		t.Fatalf("got: %s; want %s", c1.Endpoint(), e1)
	}

	s1.DropAll()
	waitFor(t, "connection loss", func() bool { return c1.State() == electrum.ReconnectPending })

	c2, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c2.Endpoint() != aliased(e2) {
		t.Errorf("got: %s; want %s", c2.Endpoint(), aliased(e2))
	}
	if got := s2.Accepts(); got != 1 {
		t.Errorf("got: %d accepts; want 1", got)
	}
}

func TestDiscovery(t *testing.T) {
	s1, e1 := startServer(t)
	_, e2 := startServer(t)
	s1.SetPeers(
		fakeserver.Peer{IP: "127.0.0.1", Host: "localhost", Features: []string{"v1.4", "t" + strconv.Itoa(e2.Port)}},
		fakeserver.Peer{IP: "127.0.0.1", Host: "", Features: []string{"t1"}},
	)

	peerStore := memory.New()
	config := testConfig()
	config.DisableDiscovery = false
	config.Store = peerStore
	p, err := New(config, e1)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := p.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "discovery", func() bool { return p.Len() == 2 })

	discovered := p.Members()[1]
	if got, want := discovered.Endpoint().Key(), "localhost_tcp"; got != want {
		t.Errorf("got: %q; want %q", got, want)
	}
	if got := discovered.State(); got != electrum.Disconnected {
		t.Errorf("got: %s; want discovered members to connect lazily", got)
	}

	waitFor(t, "stored peer", func() bool {
		peers, _ := peerStore.Peers()
		return len(peers) == 1
	})
	p.Close()

	// A new pool remembers the discovered peer.
	config.DisableDiscovery = true
	p2, err := New(config, e1)
	if err != nil {
		t.Fatal(err)
	}
	defer p2.Close()
	if got, want := p2.Len(), 2; got != want {
		t.Errorf("got: %d members; want %d", got, want)
	}
}

func TestMemberPolicy(t *testing.T) {
	_, e := startServer(t)
	policies := map[string]*electrum.Policy{}
	config := testConfig()
	config.Policy = func(e transport.Endpoint) *electrum.Policy {
		policy := &electrum.Policy{RemainingRetries: 3}
		policies[e.Key()] = policy
		return policy
	}
	p, err := New(config, e)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	c, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c.Policy() == nil || c.Policy() != policies[e.Key()] {
		t.Error("member was not initialized with its policy")
	}
}

func TestErrorAdvancesCursorOnlyFromIt(t *testing.T) {
	a := transport.Endpoint{Host: "a.example.org", Port: 50001}
	b := transport.Endpoint{Host: "b.example.org", Port: 50001}
	c := transport.Endpoint{Host: "c.example.org", Port: 50001}
	p, err := New(testConfig(), a, b, c)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	// A background error of another member keeps the cursor.
	p.advancePast(c.Key())
	if got, want := p.order[p.cursor], a.Key(); got != want {
		t.Errorf("got: %q; want %q", got, want)
	}
	p.advancePast(a.Key())
	if got, want := p.order[p.cursor], b.Key(); got != want {
		t.Errorf("got: %q; want %q", got, want)
	}
	// Reported twice for the same failure, it moves once.
	p.advancePast(a.Key())
	if got, want := p.order[p.cursor], b.Key(); got != want {
		t.Errorf("got: %q; want %q", got, want)
	}
}
