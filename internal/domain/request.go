package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TradeRequest describes one swap. Amount is SOL for a buy and token units for a sell.
type TradeRequest struct {
	IsBuy       bool            `json:"isBuy"`
	Amount      decimal.Decimal `json:"amount"`
	IsClose     bool            `json:"isClose,omitempty"`
	LinkedBuyID *int64          `json:"linkedBuyId,omitempty"`
	ReplyTarget *int            `json:"replyTarget,omitempty"`
}

// Direction returns "buy" or "sell".
func (r TradeRequest) Direction() string {
	if r.IsBuy {
		return "buy"
	}
	return "sell"
}

// TradeJob is the payload of a swap job.
type TradeJob struct {
	ID       string         `json:"id"`
	WalletID int64          `json:"walletId"`
	Pool     PoolDescriptor `json:"pool"`
	Request  TradeRequest   `json:"request"`
}

// Validate checks the payload before it is enqueued.
func (j TradeJob) Validate() error {
	if j.WalletID <= 0 {
		return fmt.Errorf("trade job: wallet id required")
	}
	if j.Pool.Mint == "" || j.Pool.PoolAddress == "" {
		return fmt.Errorf("trade job: pool mint and address required")
	}
	if !j.Pool.Protocol.IsValid() {
		return fmt.Errorf("trade job: %w", ErrUnknownProtocol)
	}
	if !j.Request.Amount.IsPositive() {
		return fmt.Errorf("trade job: %w", ErrInvalidAmount)
	}
	return nil
}
