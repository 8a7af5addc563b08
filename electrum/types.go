package electrum

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Balance of a script hash, in satoshis.
type Balance struct {
	Confirmed   int64 `json:"confirmed"`
	Unconfirmed int64 `json:"unconfirmed"`
}

// HistoryItem is a transaction touching a script hash. Height is 0 for
// mempool transactions with confirmed inputs and -1 otherwise.
type HistoryItem struct {
	Height int64  `json:"height"`
	TxHash string `json:"tx_hash"`
	Fee    int64  `json:"fee,omitempty"`
}

// MempoolItem is an unconfirmed transaction touching a script hash.
type MempoolItem struct {
	Height int64  `json:"height"`
	TxHash string `json:"tx_hash"`
	Fee    int64  `json:"fee"`
}

// Unspent is an unspent output of a script hash.
type Unspent struct {
	Height int64  `json:"height"`
	TxPos  int    `json:"tx_pos"`
	TxHash string `json:"tx_hash"`
	Value  int64  `json:"value"`
}

// Header is a block header announcement, hex encoded.
type Header struct {
	Height int64  `json:"height"`
	Hex    string `json:"hex"`
}

// Headers is a run of consecutive raw headers.
type Headers struct {
	Count int    `json:"count"`
	Hex   string `json:"hex"`
	Max   int    `json:"max"`
}

// MerkleProof of a transaction's inclusion in a block.
type MerkleProof struct {
	BlockHeight int64    `json:"block_height"`
	Merkle      []string `json:"merkle"`
	Pos         int      `json:"pos"`
}

// TxPosition is the result of blockchain.transaction.id_from_pos when a
// merkle proof is requested.
type TxPosition struct {
	TxHash string   `json:"tx_hash"`
	Merkle []string `json:"merkle"`
}

// FeeBucket is one entry of the mempool fee histogram.
type FeeBucket struct {
	FeeRate float64
	VSize   int64
}

func (b *FeeBucket) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	b.FeeRate, b.VSize = pair[0], int64(pair[1])
	return nil
}

// PeerEntry is one server advertised by server.peers.subscribe, encoded on
// the wire as [ip, host, [features]].
type PeerEntry struct {
	IP       string
	Host     string
	Features []string
}

func (p *PeerEntry) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 3 {
		return fmt.Errorf("peer entry has %d fields, want 3", len(raw))
	}
	*p = PeerEntry{}
	if err := json.Unmarshal(raw[0], &p.IP); err != nil {
		return err
	}
	if err := json.Unmarshal(raw[1], &p.Host); err != nil {
		return err
	}
	return json.Unmarshal(raw[2], &p.Features)
}

func (p PeerEntry) MarshalJSON() ([]byte, error) {
	features := p.Features
	if features == nil {
		features = []string{}
	}
	return json.Marshal([]interface{}{p.IP, p.Host, features})
}

// BatchError reports the items of a batch that the server failed. The other
// items of the batch hold valid results.
type BatchError struct {
	Errs map[int]error
}

func (err *BatchError) Error() string {
	idx := make([]int, 0, len(err.Errs))
	for i := range err.Errs {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	first := idx[0]
	return fmt.Sprintf("electrum: %d batch items failed, item %d: %s", len(idx), first, err.Errs[first])
}
