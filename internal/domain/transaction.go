package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxType is the direction of a persisted trade.
type TxType string

const (
	TxTypeBuy  TxType = "BUY"
	TxTypeSell TxType = "SELL"
)

// Transaction is the immutable record of a confirmed and decoded trade.
// For a BUY AmountIn is SOL and AmountOut is tokens; for a SELL the reverse.
type Transaction struct {
	ID          int64
	WalletID    int64
	Signature   string
	Type        TxType
	AmountIn    decimal.Decimal
	AmountOut   decimal.Decimal
	TokenID     string // mint
	PoolID      string
	Slot        int64
	Timestamp   int64 // unix seconds
	BuyTxID     *int64
	TriggerMode TriggerMode
	CreatedAt   time.Time
}

// Position is one buy plus the sells linked to it.
type Position struct {
	Buy   Transaction
	Sells []Transaction
}

// TokensSold returns the total token amount sold out of the position.
func (p Position) TokensSold() decimal.Decimal {
	sum := decimal.Zero
	for _, s := range p.Sells {
		sum = sum.Add(s.AmountIn)
	}
	return sum
}

// TokensLeft returns the unsold token quantity.
func (p Position) TokensLeft() decimal.Decimal {
	return p.Buy.AmountOut.Sub(p.TokensSold())
}

// RealizedSol returns the SOL received from all sells.
func (p Position) RealizedSol() decimal.Decimal {
	sum := decimal.Zero
	for _, s := range p.Sells {
		sum = sum.Add(s.AmountOut)
	}
	return sum
}

// IsOpen reports whether at least one whole token remains unsold.
func (p Position) IsOpen() bool {
	return HasTokensLeft(p.TokensLeft())
}

// HasTokensLeft reports whether a remaining quantity still counts as an open position.
func HasTokensLeft(left decimal.Decimal) bool {
	return left.GreaterThanOrEqual(decimal.NewFromInt(1))
}
