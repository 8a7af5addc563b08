package electrum

import (
	"context"
	"encoding/json"

	"github.com/vipnode/electrum/internal/pretty"
	"github.com/vipnode/electrum/jsonrpc2"
	"github.com/vipnode/electrum/subscription"
)

// Ping sends server.ping.
func (c *Client) Ping(ctx context.Context) error {
	return c.Call(ctx, nil, "server.ping")
}

// Banner returns the server's banner text.
func (c *Client) Banner(ctx context.Context) (string, error) {
	var banner string
	err := c.Call(ctx, &banner, "server.banner")
	return banner, err
}

// Features returns the server's features document.
func (c *Client) Features(ctx context.Context) (map[string]interface{}, error) {
	var features map[string]interface{}
	err := c.Call(ctx, &features, "server.features")
	return features, err
}

// DonationAddress returns the server operator's donation address.
func (c *Client) DonationAddress(ctx context.Context) (string, error) {
	var addr string
	err := c.Call(ctx, &addr, "server.donation_address")
	return addr, err
}

// PeersSubscribe returns the peers the server knows about.
func (c *Client) PeersSubscribe(ctx context.Context) ([]PeerEntry, error) {
	var peers []PeerEntry
	err := c.Call(ctx, &peers, subscription.PeersTopic)
	return peers, err
}

// BlockHeader returns the raw header at height.
func (c *Client) BlockHeader(ctx context.Context, height int64) (string, error) {
	var header string
	err := c.Call(ctx, &header, "blockchain.block.header", height)
	return header, err
}

// BlockHeaders returns up to count raw headers starting at startHeight.
func (c *Client) BlockHeaders(ctx context.Context, startHeight int64, count int) (Headers, error) {
	var headers Headers
	err := c.Call(ctx, &headers, "blockchain.block.headers", startHeight, count)
	return headers, err
}

// HeadersSubscribe returns the current tip and registers listener, if any,
// for every following tip announcement.
func (c *Client) HeadersSubscribe(ctx context.Context, listener func(Header)) (Header, error) {
	var push subscription.Listener
	if listener != nil {
		push = func(params json.RawMessage) {
			var headers []Header
			if err := json.Unmarshal(params, &headers); err != nil {
				logger.Printf("%s: invalid header push: %s", c, err)
				return
			}
			for _, h := range headers {
				listener(h)
			}
		}
	}
	var tip Header
	err := c.subscribe(ctx, &tip, subscription.HeadersTopic, push)
	return tip, err
}

// subscribe registers push, if any, before calling topic so that no
// announcement following the reply is missed. The listener is removed again
// if the call fails.
func (c *Client) subscribe(ctx context.Context, result interface{}, topic string, push subscription.Listener, params ...interface{}) error {
	var h subscription.Handle
	if push != nil {
		h = c.subs.Register(topic, push)
	}
	err := c.Call(ctx, result, topic, params...)
	if err != nil && push != nil {
		c.subs.Unregister(h)
	}
	return err
}

// EstimateFee returns the fee rate in coin/kB for confirmation within
// blocks, or -1 if the server has no estimate.
func (c *Client) EstimateFee(ctx context.Context, blocks int) (float64, error) {
	var fee float64
	err := c.Call(ctx, &fee, "blockchain.estimatefee", blocks)
	return fee, err
}

// RelayFee returns the minimum relay fee in coin/kB.
func (c *Client) RelayFee(ctx context.Context) (float64, error) {
	var fee float64
	err := c.Call(ctx, &fee, "blockchain.relayfee")
	return fee, err
}

// GetBalance returns the balance of a script hash.
func (c *Client) GetBalance(ctx context.Context, scriptHash string) (Balance, error) {
	var balance Balance
	err := c.Call(ctx, &balance, "blockchain.scripthash.get_balance", scriptHash)
	return balance, err
}

// GetHistory returns the confirmed and unconfirmed history of a script hash.
func (c *Client) GetHistory(ctx context.Context, scriptHash string) ([]HistoryItem, error) {
	var history []HistoryItem
	err := c.Call(ctx, &history, "blockchain.scripthash.get_history", scriptHash)
	return history, err
}

// GetMempool returns the unconfirmed transactions of a script hash.
func (c *Client) GetMempool(ctx context.Context, scriptHash string) ([]MempoolItem, error) {
	var mempool []MempoolItem
	err := c.Call(ctx, &mempool, "blockchain.scripthash.get_mempool", scriptHash)
	return mempool, err
}

// ListUnspent returns the unspent outputs of a script hash.
func (c *Client) ListUnspent(ctx context.Context, scriptHash string) ([]Unspent, error) {
	var unspent []Unspent
	err := c.Call(ctx, &unspent, "blockchain.scripthash.listunspent", scriptHash)
	return unspent, err
}

// ScriptHashSubscribe returns the current status of a script hash, empty if
// it has no history, and registers listener, if any, for status changes of
// that script hash.
func (c *Client) ScriptHashSubscribe(ctx context.Context, scriptHash string, listener func(status string)) (string, error) {
	var push subscription.Listener
	if listener != nil {
		push = func(params json.RawMessage) {
			var update []*string
			if err := json.Unmarshal(params, &update); err != nil || len(update) != 2 || update[0] == nil {
				logger.Printf("%s: invalid script hash push: %s", c, params)
				return
			}
			if *update[0] != scriptHash {
				return
			}
			logger.Printf("%s: status of %s changed", c, pretty.Abbrev(scriptHash))
			status := ""
			if update[1] != nil {
				status = *update[1]
			}
			listener(status)
		}
	}
	var status *string
	if err := c.subscribe(ctx, &status, subscription.ScriptHashTopic, push, scriptHash); err != nil {
		return "", err
	}
	if status == nil {
		return "", nil
	}
	return *status, nil
}

// ScriptHashUnsubscribe stops status notifications for a script hash.
// Listeners registered for it stay registered.
func (c *Client) ScriptHashUnsubscribe(ctx context.Context, scriptHash string) (bool, error) {
	var ok bool
	err := c.Call(ctx, &ok, "blockchain.scripthash.unsubscribe", scriptHash)
	return ok, err
}

// TransactionGet returns a raw transaction, hex encoded.
func (c *Client) TransactionGet(ctx context.Context, txHash string) (string, error) {
	var tx string
	err := c.Call(ctx, &tx, "blockchain.transaction.get", txHash)
	return tx, err
}

// TransactionBroadcast submits a raw transaction and returns its hash.
func (c *Client) TransactionBroadcast(ctx context.Context, rawTx string) (string, error) {
	var txHash string
	if err := c.Call(ctx, &txHash, "blockchain.transaction.broadcast", rawTx); err != nil {
		return "", err
	}
	logger.Printf("%s: broadcast transaction %s", c, pretty.Abbrev(txHash))
	return txHash, nil
}

// TransactionGetMerkle returns the merkle proof of a confirmed transaction.
func (c *Client) TransactionGetMerkle(ctx context.Context, txHash string, height int64) (MerkleProof, error) {
	var proof MerkleProof
	err := c.Call(ctx, &proof, "blockchain.transaction.get_merkle", txHash, height)
	return proof, err
}

// TransactionIDFromPos returns the hash of the transaction at a position in
// a block.
func (c *Client) TransactionIDFromPos(ctx context.Context, height int64, txPos int) (string, error) {
	var txHash string
	err := c.Call(ctx, &txHash, "blockchain.transaction.id_from_pos", height, txPos)
	return txHash, err
}

// TransactionIDFromPosMerkle is TransactionIDFromPos with a merkle proof.
func (c *Client) TransactionIDFromPosMerkle(ctx context.Context, height int64, txPos int) (TxPosition, error) {
	var pos TxPosition
	err := c.Call(ctx, &pos, "blockchain.transaction.id_from_pos", height, txPos, true)
	return pos, err
}

// FeeHistogram returns the mempool fee histogram.
func (c *Client) FeeHistogram(ctx context.Context) ([]FeeBucket, error) {
	var histogram []FeeBucket
	err := c.Call(ctx, &histogram, "mempool.get_fee_histogram")
	return histogram, err
}

func stringArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

// decodeBatch decodes each successful item with decode and collects the
// failed items in a *BatchError.
func decodeBatch(results []jsonrpc2.BatchResult, decode func(i int, r jsonrpc2.BatchResult) error) error {
	var batchErr *BatchError
	for i, r := range results {
		err := r.Err
		if err == nil {
			err = decode(i, r)
		}
		if err == nil {
			continue
		}
		if batchErr == nil {
			batchErr = &BatchError{Errs: map[int]error{}}
		}
		batchErr.Errs[i] = err
	}
	if batchErr != nil {
		return batchErr
	}
	return nil
}

// GetBalanceBatch returns the balance of each script hash, in order. If
// some items failed, the error is a *BatchError and the other balances are
// still set.
func (c *Client) GetBalanceBatch(ctx context.Context, scriptHashes ...string) ([]Balance, error) {
	results, err := c.CallBatch(ctx, "blockchain.scripthash.get_balance", stringArgs(scriptHashes)...)
	if err != nil {
		return nil, err
	}
	balances := make([]Balance, len(results))
	return balances, decodeBatch(results, func(i int, r jsonrpc2.BatchResult) error {
		return r.Decode(&balances[i])
	})
}

// ListUnspentBatch returns the unspent outputs of each script hash, in order.
func (c *Client) ListUnspentBatch(ctx context.Context, scriptHashes ...string) ([][]Unspent, error) {
	results, err := c.CallBatch(ctx, "blockchain.scripthash.listunspent", stringArgs(scriptHashes)...)
	if err != nil {
		return nil, err
	}
	unspent := make([][]Unspent, len(results))
	return unspent, decodeBatch(results, func(i int, r jsonrpc2.BatchResult) error {
		return r.Decode(&unspent[i])
	})
}

// GetHistoryBatch returns the history of each script hash, in order.
func (c *Client) GetHistoryBatch(ctx context.Context, scriptHashes ...string) ([][]HistoryItem, error) {
	results, err := c.CallBatch(ctx, "blockchain.scripthash.get_history", stringArgs(scriptHashes)...)
	if err != nil {
		return nil, err
	}
	history := make([][]HistoryItem, len(results))
	return history, decodeBatch(results, func(i int, r jsonrpc2.BatchResult) error {
		return r.Decode(&history[i])
	})
}

// TransactionGetBatch returns each raw transaction, in order.
func (c *Client) TransactionGetBatch(ctx context.Context, txHashes ...string) ([]string, error) {
	results, err := c.CallBatch(ctx, "blockchain.transaction.get", stringArgs(txHashes)...)
	if err != nil {
		return nil, err
	}
	txs := make([]string, len(results))
	return txs, decodeBatch(results, func(i int, r jsonrpc2.BatchResult) error {
		return r.Decode(&txs[i])
	})
}
