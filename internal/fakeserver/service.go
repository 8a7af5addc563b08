package fakeserver

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/vipnode/electrum/jsonrpc2"
)

const Software = "FakeElectrumX 1.0"

// Peer is an entry of server.peers.subscribe, encoded as [ip, host,
// features].
type Peer struct {
	IP       string
	Host     string
	Features []string
}

func (p Peer) MarshalJSON() ([]byte, error) {
	features := p.Features
	if features == nil {
		features = []string{}
	}
	return json.Marshal([]interface{}{p.IP, p.Host, features})
}

type Header struct {
	Height int64  `json:"height"`
	Hex    string `json:"hex"`
}

type Balance struct {
	Confirmed   int64 `json:"confirmed"`
	Unconfirmed int64 `json:"unconfirmed"`
}

type Unspent struct {
	Height int64  `json:"height"`
	TxPos  int    `json:"tx_pos"`
	TxHash string `json:"tx_hash"`
	Value  int64  `json:"value"`
}

type History struct {
	Height int64  `json:"height"`
	TxHash string `json:"tx_hash"`
}

type fixtures struct {
	Peers    []Peer
	Tip      Header
	Balances map[string]Balance
	Txs      map[string]string
}

func defaultFixtures() fixtures {
	return fixtures{
		Peers:    []Peer{},
		Tip:      Header{Height: 630000, Hex: "00"},
		Balances: map[string]Balance{},
		Txs:      map[string]string{},
	}
}

// serviceMethods maps protocol method names to service methods.
var serviceMethods = map[string]string{
	"server.version":                     "Version",
	"server.ping":                        "Ping",
	"server.banner":                      "Banner",
	"server.features":                    "Features",
	"server.donation_address":            "DonationAddress",
	"server.peers.subscribe":             "PeersSubscribe",
	"blockchain.block.header":            "BlockHeader",
	"blockchain.headers.subscribe":       "HeadersSubscribe",
	"blockchain.estimatefee":             "EstimateFee",
	"blockchain.relayfee":                "RelayFee",
	"blockchain.scripthash.get_balance":  "GetBalance",
	"blockchain.scripthash.get_history":  "GetHistory",
	"blockchain.scripthash.listunspent":  "ListUnspent",
	"blockchain.scripthash.subscribe":    "ScriptHashSubscribe",
	"blockchain.scripthash.unsubscribe":  "ScriptHashUnsubscribe",
	"blockchain.transaction.get":         "TransactionGet",
	"blockchain.transaction.broadcast":   "TransactionBroadcast",
	"blockchain.transaction.get_merkle":  "TransactionGetMerkle",
	"blockchain.transaction.id_from_pos": "TransactionIDFromPos",
	"mempool.get_fee_histogram":          "FeeHistogram",
}

var (
	errBadScriptHash = &jsonrpc2.ErrResponse{Code: 1, Message: "invalid script hash"}
	errNoTx          = &jsonrpc2.ErrResponse{Code: 2, Message: "daemon error: no such mempool or blockchain transaction"}
	errVersion       = &jsonrpc2.ErrResponse{Code: 1, Message: "unsupported protocol version"}
)

func validScriptHash(scriptHash string) bool {
	b, err := hex.DecodeString(scriptHash)
	return err == nil && len(b) == sha256.Size
}

// service answers protocol calls from the server's fixtures.
type service struct {
	s *Server
}

func (svc *service) Version(clientName string, protocolVersion string) ([]string, error) {
	svc.s.mu.Lock()
	reject := svc.s.rejectVersion
	svc.s.mu.Unlock()
	if reject {
		return nil, errVersion
	}
	return []string{Software, "1.4"}, nil
}

func (svc *service) Ping() error {
	return nil
}

func (svc *service) Banner() string {
	return "Welcome to " + Software
}

func (svc *service) Features() map[string]interface{} {
	return map[string]interface{}{
		"server_version": Software,
		"protocol_min":   "1.4",
		"protocol_max":   "1.4",
		"pruning":        nil,
		"hash_function":  "sha256",
	}
}

func (svc *service) DonationAddress() string {
	return ""
}

func (svc *service) PeersSubscribe() []Peer {
	svc.s.mu.Lock()
	defer svc.s.mu.Unlock()
	return svc.s.fixtures.Peers
}

func (svc *service) BlockHeader(height int64) (string, error) {
	svc.s.mu.Lock()
	defer svc.s.mu.Unlock()
	if height > svc.s.fixtures.Tip.Height {
		return "", &jsonrpc2.ErrResponse{Code: 1, Message: "height out of range"}
	}
	return svc.s.fixtures.Tip.Hex, nil
}

func (svc *service) HeadersSubscribe() Header {
	svc.s.mu.Lock()
	defer svc.s.mu.Unlock()
	return svc.s.fixtures.Tip
}

func (svc *service) EstimateFee(blocks int) float64 {
	if blocks <= 0 {
		return -1
	}
	return 0.0001
}

func (svc *service) RelayFee() float64 {
	return 0.00001
}

func (svc *service) GetBalance(scriptHash string) (*Balance, error) {
	if !validScriptHash(scriptHash) {
		return nil, errBadScriptHash
	}
	svc.s.mu.Lock()
	defer svc.s.mu.Unlock()
	balance := svc.s.fixtures.Balances[scriptHash]
	return &balance, nil
}

func (svc *service) GetHistory(scriptHash string) ([]History, error) {
	if !validScriptHash(scriptHash) {
		return nil, errBadScriptHash
	}
	return []History{}, nil
}

func (svc *service) ListUnspent(scriptHash string) ([]Unspent, error) {
	if !validScriptHash(scriptHash) {
		return nil, errBadScriptHash
	}
	svc.s.mu.Lock()
	defer svc.s.mu.Unlock()
	balance, ok := svc.s.fixtures.Balances[scriptHash]
	if !ok || balance.Confirmed == 0 {
		return []Unspent{}, nil
	}
	return []Unspent{{Height: svc.s.fixtures.Tip.Height, TxHash: scriptHash, Value: balance.Confirmed}}, nil
}

func (svc *service) ScriptHashSubscribe(scriptHash string) (*string, error) {
	if !validScriptHash(scriptHash) {
		return nil, errBadScriptHash
	}
	svc.s.mu.Lock()
	defer svc.s.mu.Unlock()
	if _, ok := svc.s.fixtures.Balances[scriptHash]; !ok {
		return nil, nil
	}
	status := Status(scriptHash)
	return &status, nil
}

func (svc *service) ScriptHashUnsubscribe(scriptHash string) bool {
	return validScriptHash(scriptHash)
}

func (svc *service) TransactionGet(txHash string, verbose bool) (string, error) {
	svc.s.mu.Lock()
	defer svc.s.mu.Unlock()
	tx, ok := svc.s.fixtures.Txs[txHash]
	if !ok {
		return "", errNoTx
	}
	return tx, nil
}

func (svc *service) TransactionBroadcast(rawTx string) (string, error) {
	b, err := hex.DecodeString(rawTx)
	if err != nil {
		return "", &jsonrpc2.ErrResponse{Code: 1, Message: "the transaction was rejected by network rules"}
	}
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	txHash := hex.EncodeToString(second[:])

	svc.s.mu.Lock()
	svc.s.fixtures.Txs[txHash] = rawTx
	svc.s.mu.Unlock()
	return txHash, nil
}

func (svc *service) TransactionGetMerkle(txHash string, height int64) (map[string]interface{}, error) {
	svc.s.mu.Lock()
	defer svc.s.mu.Unlock()
	if _, ok := svc.s.fixtures.Txs[txHash]; !ok {
		return nil, errNoTx
	}
	return map[string]interface{}{
		"block_height": height,
		"merkle":       []string{txHash},
		"pos":          0,
	}, nil
}

func (svc *service) TransactionIDFromPos(height int64, txPos int, merkle bool) (interface{}, error) {
	txHash := hex.EncodeToString(make([]byte, sha256.Size))
	if merkle {
		return map[string]interface{}{
			"tx_hash": txHash,
			"merkle":  []string{txHash},
		}, nil
	}
	return txHash, nil
}

func (svc *service) FeeHistogram() [][2]float64 {
	return [][2]float64{{12.5, 1000}, {5, 25000}, {1, 100000}}
}

// Status returns the status the server reports for a script hash with a
// balance.
func Status(scriptHash string) string {
	sum := sha256.Sum256([]byte(scriptHash))
	return hex.EncodeToString(sum[:])
}
