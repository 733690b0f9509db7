package solana

import (
	"context"
	"encoding/json"
)

// RPCClient defines the Solana RPC HTTP interface used by the trade engine.
type RPCClient interface {
	// GetLatestBlockhash returns a fresh blockhash and its expiry height.
	GetLatestBlockhash(ctx context.Context) (*Blockhash, error)

	// SimulateTransaction dry-runs a signed transaction against current state.
	SimulateTransaction(ctx context.Context, rawTx []byte) (*SimulationResult, error)

	// SendTransaction submits a signed transaction and returns its signature.
	SendTransaction(ctx context.Context, rawTx []byte, opts SendOptions) (string, error)

	// GetSignatureStatuses returns statuses aligned with the requested signatures.
	// Unknown signatures yield nil entries.
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)

	// GetBlockHeight returns the current block height at confirmed commitment.
	GetBlockHeight(ctx context.Context) (uint64, error)

	// GetTransaction retrieves a jsonParsed transaction by signature.
	// Returns nil if the transaction is not (yet) known.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetAccountInfo retrieves account info. Returns nil if the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetBalance returns the lamport balance of an account.
	GetBalance(ctx context.Context, pubkey string) (uint64, error)

	// GetBlockTime returns the estimated production time of a block, nil if unavailable.
	GetBlockTime(ctx context.Context, slot int64) (*int64, error)
}

// Transaction represents a confirmed Solana transaction in jsonParsed encoding.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime *int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err               interface{}
	LogMessages       []string
	InnerInstructions []InnerInstructions
}

// TransactionMessage contains the parsed transaction message.
type TransactionMessage struct {
	AccountKeys  []AccountKey
	Instructions []Instruction
}

// AccountKey is an entry of a jsonParsed message's account list.
type AccountKey struct {
	Pubkey   string `json:"pubkey"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
}

// Instruction is either a raw instruction (Data set) or one the node parsed (Parsed set).
type Instruction struct {
	ProgramID string          `json:"programId"`
	Program   string          `json:"program,omitempty"`
	Accounts  []string        `json:"accounts,omitempty"`
	Data      string          `json:"data,omitempty"` // base58
	Parsed    json.RawMessage `json:"parsed,omitempty"`
}

// InnerInstructions groups the instructions invoked by the top-level instruction at Index.
type InnerInstructions struct {
	Index        int           `json:"index"`
	Instructions []Instruction `json:"instructions"`
}

// Signer returns the first signing account of the message, the fee payer.
func (tx *Transaction) Signer() string {
	if tx == nil || tx.Message == nil {
		return ""
	}
	for _, k := range tx.Message.AccountKeys {
		if k.Signer {
			return k.Pubkey
		}
	}
	return ""
}

// Inner returns the inner instructions invoked by top-level instruction idx.
func (tx *Transaction) Inner(idx int) []Instruction {
	if tx == nil || tx.Meta == nil {
		return nil
	}
	for _, in := range tx.Meta.InnerInstructions {
		if in.Index == idx {
			return in.Instructions
		}
	}
	return nil
}
