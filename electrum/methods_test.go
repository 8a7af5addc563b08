package electrum

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/vipnode/electrum/internal/fakeserver"
	"github.com/vipnode/electrum/jsonrpc2"
	"github.com/vipnode/electrum/subscription"
)

const (
	scriptHashA = "8b01df4e368ea28f8dc0423bcf7a4923e3a12d307c875e47a0cfbf90b5c39161"
	scriptHashB = "e61327a2a2a3e1d6b3f1a1a5ff2b4bb9c8d1b5c5a1e4b4ec6f7e4ad5d3ff4c21"
)

func readyClient(t *testing.T) (*fakeserver.Server, *Client) {
	t.Helper()
	s, e := startServer(t)
	c := newClient(t, e, &mclock.Simulated{})
	if err := c.Init(context.Background(), DefaultPolicy()); err != nil {
		t.Fatal(err)
	}
	return s, c
}

func TestServerMethods(t *testing.T) {
	s, c := readyClient(t)
	ctx := context.Background()

	if err := c.Ping(ctx); err != nil {
		t.Error(err)
	}
	banner, err := c.Banner(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(banner, fakeserver.Software) {
		t.Errorf("got: %q; want it to mention %q", banner, fakeserver.Software)
	}
	features, err := c.Features(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := features["protocol_max"], "1.4"; got != want {
		t.Errorf("got: %v; want %q", got, want)
	}

	s.SetPeers(fakeserver.Peer{IP: "10.0.0.1", Host: "electrum.example.org", Features: []string{"v1.4", "s50002"}})
	peers, err := c.PeersSubscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(peers) != 1 || peers[0].Host != "electrum.example.org" || len(peers[0].Features) != 2 {
		t.Errorf("unexpected peers: %+v", peers)
	}
}

func TestFeeMethods(t *testing.T) {
	_, c := readyClient(t)
	ctx := context.Background()

	fee, err := c.EstimateFee(ctx, 25)
	if err != nil {
		t.Fatal(err)
	}
	if fee != 0.0001 {
		t.Errorf("got: %v; want %v", fee, 0.0001)
	}
	if fee, _ := c.EstimateFee(ctx, 0); fee != -1 {
		t.Errorf("got: %v; want -1", fee)
	}

	histogram, err := c.FeeHistogram(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(histogram) != 3 {
		t.Fatalf("got: %d buckets; want 3", len(histogram))
	}
	if got, want := histogram[1], (FeeBucket{FeeRate: 5, VSize: 25000}); got != want {
		t.Errorf("got: %+v; want %+v", got, want)
	}
}

func TestScriptHashMethods(t *testing.T) {
	s, c := readyClient(t)
	ctx := context.Background()
	s.SetBalance(scriptHashA, 5000, 250)

	balance, err := c.GetBalance(ctx, scriptHashA)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := balance, (Balance{5000, 250}); got != want {
		t.Errorf("got: %+v; want %+v", got, want)
	}

	unspent, err := c.ListUnspent(ctx, scriptHashA)
	if err != nil {
		t.Fatal(err)
	}
	if len(unspent) != 1 || unspent[0].Value != 5000 {
		t.Errorf("unexpected unspent: %+v", unspent)
	}

	_, err = c.GetBalance(ctx, "nothex")
	var respErr *jsonrpc2.ErrResponse
	if !errors.As(err, &respErr) || respErr.Code != 1 {
		t.Errorf("got: %v; want a server error", err)
	}
}

func TestScriptHashSubscribe(t *testing.T) {
	s, c := readyClient(t)
	ctx := context.Background()

	statuses := make(chan string, 1)
	status, err := c.ScriptHashSubscribe(ctx, scriptHashA, func(status string) { statuses <- status })
	if err != nil {
		t.Fatal(err)
	}
	if status != "" {
		t.Errorf("got: %q; want empty status", status)
	}

	s.SetBalance(scriptHashA, 1, 0)
	// Pushes for other script hashes are not delivered.
	if err := s.Notify(subscription.ScriptHashTopic, scriptHashB, "ffff"); err != nil {
		t.Fatal(err)
	}
	if err := s.Notify(subscription.ScriptHashTopic, scriptHashA, fakeserver.Status(scriptHashA)); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-statuses:
		if want := fakeserver.Status(scriptHashA); got != want {
			t.Errorf("got: %q; want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for status")
	}

	status, err = c.ScriptHashSubscribe(ctx, scriptHashA, nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := fakeserver.Status(scriptHashA); status != want {
		t.Errorf("got: %q; want %q", status, want)
	}

	ok, err := c.ScriptHashUnsubscribe(ctx, scriptHashA)
	if err != nil || !ok {
		t.Errorf("unsubscribe: %v, %v", ok, err)
	}
	if n := c.Subscriptions().Len(subscription.ScriptHashTopic); n != 1 {
		t.Errorf("got: %d listeners; want 1", n)
	}
}

func TestTransactionMethods(t *testing.T) {
	s, c := readyClient(t)
	ctx := context.Background()

	txHash, err := c.TransactionBroadcast(ctx, "0100")
	if err != nil {
		t.Fatal(err)
	}
	if len(txHash) != 64 {
		t.Errorf("got: %q; want a transaction hash", txHash)
	}
	tx, err := c.TransactionGet(ctx, txHash)
	if err != nil {
		t.Fatal(err)
	}
	if tx != "0100" {
		t.Errorf("got: %q; want %q", tx, "0100")
	}

	proof, err := c.TransactionGetMerkle(ctx, txHash, 100)
	if err != nil {
		t.Fatal(err)
	}
	if proof.BlockHeight != 100 || len(proof.Merkle) != 1 {
		t.Errorf("unexpected proof: %+v", proof)
	}

	id, err := c.TransactionIDFromPos(ctx, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	pos, err := c.TransactionIDFromPosMerkle(ctx, 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if pos.TxHash != id || len(pos.Merkle) != 1 {
		t.Errorf("unexpected position: %+v", pos)
	}

	if _, err := c.TransactionGet(ctx, "missing"); err == nil {
		t.Error("expected error for unknown transaction")
	}

	s.SetTransaction("aa", "02")
	txs, err := c.TransactionGetBatch(ctx, "aa", txHash)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 2 || txs[0] != "02" || txs[1] != "0100" {
		t.Errorf("unexpected batch: %q", txs)
	}
}

func TestBatchPartialFailure(t *testing.T) {
	s, c := readyClient(t)
	s.SetBalance(scriptHashA, 10, 0)
	s.SetBalance(scriptHashB, 20, 5)

	balances, err := c.GetBalanceBatch(context.Background(), scriptHashA, "bogus", scriptHashB)
	var batchErr *BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("got: %v; want *BatchError", err)
	}
	if len(batchErr.Errs) != 1 || batchErr.Errs[1] == nil {
		t.Errorf("unexpected failed items: %v", batchErr.Errs)
	}
	if len(balances) != 3 {
		t.Fatalf("got: %d balances; want 3", len(balances))
	}
	if balances[0].Confirmed != 10 || balances[2].Confirmed != 20 || balances[2].Unconfirmed != 5 {
		t.Errorf("unexpected balances: %+v", balances)
	}
	if got, want := s.Calls("blockchain.scripthash.get_balance"), 3; got != want {
		t.Errorf("got: %d calls; want %d", got, want)
	}

	empty, err := c.GetBalanceBatch(context.Background())
	if err != nil || len(empty) != 0 {
		t.Errorf("empty batch: %v, %v", empty, err)
	}
}

func TestPeerEntryJSON(t *testing.T) {
	raw := `[["107.150.45.210","e.anonyhost.org",["v1.0","p10000","t","s995"]],["1.2.3.4","x.onion",[]]]`
	var peers []PeerEntry
	if err := json.Unmarshal([]byte(raw), &peers); err != nil {
		t.Fatal(err)
	}
	if len(peers) != 2 {
		t.Fatalf("got: %d peers; want 2", len(peers))
	}
	if got, want := peers[0].Host, "e.anonyhost.org"; got != want {
		t.Errorf("got: %q; want %q", got, want)
	}
	if got, want := strings.Join(peers[0].Features, ","), "v1.0,p10000,t,s995"; got != want {
		t.Errorf("got: %q; want %q", got, want)
	}

	out, err := json.Marshal(peers[1])
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(out), `["1.2.3.4","x.onion",[]]`; got != want {
		t.Errorf("got: %s; want %s", got, want)
	}

	var bad PeerEntry
	if err := json.Unmarshal([]byte(`["1.2.3.4"]`), &bad); err == nil {
		t.Error("expected error for short peer entry")
	}
}

func TestFailedSubscribeRemovesListener(t *testing.T) {
	_, e := startServer(t)
	c := newClient(t, e, &mclock.Simulated{})
	ctx := context.Background()

	calls := 0
	if _, err := c.HeadersSubscribe(ctx, func(Header) { calls++ }); err != ErrNotConnected {
		t.Errorf("got: %v; want %v", err, ErrNotConnected)
	}
	if got := c.Subscriptions().Len(subscription.HeadersTopic); got != 0 {
		t.Errorf("got: %d header listeners; want 0", got)
	}

	if err := c.Init(ctx, DefaultPolicy()); err != nil {
		t.Fatal(err)
	}
	c.Subscriptions().Dispatch(subscription.HeadersTopic, json.RawMessage(`[{"height": 1, "hex": "00"}]`))
	if calls != 0 {
		t.Errorf("got: %d calls; want a failed subscribe to stay unsubscribed", calls)
	}

	if _, err := c.ScriptHashSubscribe(ctx, "nothex", func(string) { calls++ }); err == nil {
		t.Error("missing error for an invalid script hash")
	}
	if got := c.Subscriptions().Len(subscription.ScriptHashTopic); got != 0 {
		t.Errorf("got: %d script hash listeners; want 0", got)
	}
}
