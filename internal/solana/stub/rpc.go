package stub

import (
	"context"
	"errors"
	"sync"

	"github.com/mr-tron/base58"

	"solana-trade-engine/internal/solana"
)

// ErrNotFound is returned when a programmed value is missing.
var ErrNotFound = errors.New("not found")

// RPCClient implements solana.RPCClient for testing.
// All maps are guarded by the client's mutex; use the Set*/Add* helpers
// once the client is shared with running goroutines.
type RPCClient struct {
	mu sync.Mutex

	Blockhashes  []solana.Blockhash // returned in order, the last one repeats
	BlockHeight  uint64
	Transactions map[string]*solana.Transaction
	Statuses     map[string]*solana.SignatureStatus
	Accounts     map[string]*solana.AccountInfo
	Balances     map[string]uint64
	BlockTimes   map[int64]int64

	// SimulateFunc overrides the default successful simulation.
	SimulateFunc func(rawTx []byte) (*solana.SimulationResult, error)
	// OnSend is invoked after every sendTransaction with the signature of the payload.
	OnSend func(signature string, rawTx []byte)

	Sent  [][]byte
	Calls map[string]int

	blockhashIdx int
}

var _ solana.RPCClient = (*RPCClient)(nil)

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions: make(map[string]*solana.Transaction),
		Statuses:     make(map[string]*solana.SignatureStatus),
		Accounts:     make(map[string]*solana.AccountInfo),
		Balances:     make(map[string]uint64),
		BlockTimes:   make(map[int64]int64),
		Calls:        make(map[string]int),
	}
}

func (c *RPCClient) record(method string) {
	c.Calls[method]++
}

// CallCount returns how many times method was called.
func (c *RPCClient) CallCount(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Calls[method]
}

// GetLatestBlockhash returns the next programmed blockhash.
func (c *RPCClient) GetLatestBlockhash(_ context.Context) (*solana.Blockhash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("getLatestBlockhash")

	if len(c.Blockhashes) == 0 {
		return nil, ErrNotFound
	}
	idx := c.blockhashIdx
	if idx >= len(c.Blockhashes) {
		idx = len(c.Blockhashes) - 1
	}
	c.blockhashIdx++
	bh := c.Blockhashes[idx]
	return &bh, nil
}

// SimulateTransaction succeeds unless SimulateFunc says otherwise.
func (c *RPCClient) SimulateTransaction(_ context.Context, rawTx []byte) (*solana.SimulationResult, error) {
	c.mu.Lock()
	c.record("simulateTransaction")
	fn := c.SimulateFunc
	c.mu.Unlock()

	if fn != nil {
		return fn(rawTx)
	}
	return &solana.SimulationResult{}, nil
}

// SendTransaction records the payload and returns its first signature.
func (c *RPCClient) SendTransaction(_ context.Context, rawTx []byte, _ solana.SendOptions) (string, error) {
	sig := SignatureOf(rawTx)

	c.mu.Lock()
	c.record("sendTransaction")
	c.Sent = append(c.Sent, rawTx)
	fn := c.OnSend
	c.mu.Unlock()

	if fn != nil {
		fn(sig, rawTx)
	}
	return sig, nil
}

// GetSignatureStatuses returns programmed statuses, nil for unknown signatures.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("getSignatureStatuses")

	out := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		if st, ok := c.Statuses[sig]; ok {
			cp := *st
			out[i] = &cp
		}
	}
	return out, nil
}

// GetBlockHeight returns BlockHeight.
func (c *RPCClient) GetBlockHeight(_ context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("getBlockHeight")
	return c.BlockHeight, nil
}

// GetTransaction retrieves a transaction by signature from the stub store.
// Unknown signatures return nil, as the node does.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("getTransaction")
	return c.Transactions[signature], nil
}

// GetAccountInfo returns the programmed account or nil.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("getAccountInfo")
	return c.Accounts[pubkey], nil
}

// GetBalance returns the programmed balance.
func (c *RPCClient) GetBalance(_ context.Context, pubkey string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("getBalance")
	return c.Balances[pubkey], nil
}

// GetBlockTime returns the programmed block time, nil if absent.
func (c *RPCClient) GetBlockTime(_ context.Context, slot int64) (*int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("getBlockTime")
	bt, ok := c.BlockTimes[slot]
	if !ok {
		return nil, nil
	}
	return &bt, nil
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

// SetStatus sets the status reported for a signature.
func (c *RPCClient) SetStatus(signature string, status *solana.SignatureStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Statuses[signature] = status
}

// SetBlockHeight sets the current block height.
func (c *RPCClient) SetBlockHeight(h uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.BlockHeight = h
}

// AddAccount registers an existing account.
func (c *RPCClient) AddAccount(pubkey string, info *solana.AccountInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Accounts[pubkey] = info
}

// SentCount returns the number of sendTransaction calls.
func (c *RPCClient) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Sent)
}

// SignatureOf extracts the fee payer signature from a serialized transaction.
// Wire layout: compact-u16 signature count | 64-byte signatures | message.
func SignatureOf(rawTx []byte) string {
	if len(rawTx) < 65 {
		return ""
	}
	return base58.Encode(rawTx[1:65])
}
