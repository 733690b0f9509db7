// Package decoder recovers the realized amounts of a confirmed swap from its
// jsonParsed transaction.
package decoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/solana"
)

// Default fetch parameters.
const (
	DefaultFetchAttempts = 30
	DefaultFetchInterval = 2 * time.Second
)

// Result is the realized outcome of one swap.
type Result struct {
	SolLamports uint64
	TokenUnits  uint64
	SolAmount   decimal.Decimal // SOL
	TokenAmount decimal.Decimal // whole tokens
	IsBuy       bool
	Slot        int64
	Timestamp   int64 // unix seconds
}

// Config holds decoder settings.
type Config struct {
	FetchAttempts  uint
	FetchInterval  time.Duration
	BlockTimeCache int
}

// Decoder decodes swaps per protocol.
type Decoder struct {
	rpc    solana.RPCClient
	cfg    Config
	times  *BlockTimeCache
	logger *slog.Logger
}

// New creates a Decoder with its own block-time cache.
func New(rpc solana.RPCClient, cfg Config, logger *slog.Logger) *Decoder {
	if cfg.FetchAttempts == 0 {
		cfg.FetchAttempts = DefaultFetchAttempts
	}
	if cfg.FetchInterval <= 0 {
		cfg.FetchInterval = DefaultFetchInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{
		rpc:    rpc,
		cfg:    cfg,
		times:  NewBlockTimeCache(rpc, cfg.BlockTimeCache),
		logger: logger.With(slog.String("component", "decoder")),
	}
}

var errNotVisible = errors.New("transaction not yet visible")

// Fetch retrieves the confirmed transaction for signature. It returns nil when
// the transaction never becomes visible, and a *domain.LedgerExecutionError
// when it executed with an error.
func (d *Decoder) Fetch(ctx context.Context, signature string) (*solana.Transaction, error) {
	tx, err := backoff.Retry(ctx, func() (*solana.Transaction, error) {
		tx, err := d.rpc.GetTransaction(ctx, signature)
		if err != nil {
			return nil, err
		}
		if tx == nil {
			return nil, errNotVisible
		}
		return tx, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(d.cfg.FetchInterval)),
		backoff.WithMaxTries(d.cfg.FetchAttempts),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		d.logger.Warn("transaction not found",
			slog.String("signature", signature),
			slog.Uint64("attempts", uint64(d.cfg.FetchAttempts)),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}
	if tx.Meta != nil && tx.Meta.Err != nil {
		d.logger.Warn("transaction failed on ledger", slog.String("signature", signature), slog.Any("err", tx.Meta.Err))
		return nil, &domain.LedgerExecutionError{Signature: signature, Err: tx.Meta.Err}
	}
	return tx, nil
}

// Decode extracts the swap of protocol from tx. It returns nil when tx holds
// no matching instruction.
func (d *Decoder) Decode(ctx context.Context, protocol domain.Protocol, tx *solana.Transaction, decimals uint8) (*Result, error) {
	if tx == nil || tx.Message == nil {
		return nil, nil
	}

	var (
		res *Result
		err error
	)
	switch protocol {
	case domain.ProtocolRaydiumV4:
		res, err = decodeRaydiumV4(tx)
	case domain.ProtocolRaydiumCPMM:
		res, err = decodeRaydiumCPMM(tx)
	case domain.ProtocolPumpFun:
		res, err = decodePumpFun(tx)
	default:
		return nil, fmt.Errorf("decode: %w: %d", domain.ErrUnknownProtocol, protocol)
	}
	if err != nil || res == nil {
		return nil, err
	}

	res.Slot = tx.Slot
	res.SolAmount = decimal.NewFromUint64(res.SolLamports).Shift(-9)
	res.TokenAmount = decimal.NewFromUint64(res.TokenUnits).Shift(-int32(decimals))

	if res.Timestamp == 0 {
		ts, err := d.blockTime(ctx, tx)
		if err != nil {
			return nil, err
		}
		res.Timestamp = ts
	}
	return res, nil
}

// DecodeSignature fetches and decodes signature.
func (d *Decoder) DecodeSignature(ctx context.Context, protocol domain.Protocol, signature string, decimals uint8) (*Result, error) {
	tx, err := d.Fetch(ctx, signature)
	if err != nil || tx == nil {
		return nil, err
	}
	return d.Decode(ctx, protocol, tx, decimals)
}

func (d *Decoder) blockTime(ctx context.Context, tx *solana.Transaction) (int64, error) {
	if tx.BlockTime != nil {
		return *tx.BlockTime, nil
	}
	ts, ok, err := d.times.Get(ctx, tx.Slot)
	if err != nil {
		return 0, fmt.Errorf("block time of slot %d: %w", tx.Slot, err)
	}
	if !ok {
		return 0, nil
	}
	return ts, nil
}
