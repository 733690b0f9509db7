package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActiveWalletsLimit is the maximum number of simultaneously active wallets per owner.
const ActiveWalletsLimit = 5

// TriggerMode selects which opportunity feed a wallet reacts to.
type TriggerMode int

const (
	TriggerBullishBonding TriggerMode = 0
	TriggerGodMode        TriggerMode = 1
	TriggerMoonFinder     TriggerMode = 2
	TriggerPFFomo         TriggerMode = 3
)

func (m TriggerMode) String() string {
	switch m {
	case TriggerBullishBonding:
		return "Bullish Bonding"
	case TriggerGodMode:
		return "God Mode"
	case TriggerMoonFinder:
		return "Moon Finder"
	case TriggerPFFomo:
		return "PF Fomo"
	}
	return "N/A"
}

// DexscreenerPaid filter values stored on a wallet.
const (
	DexscreenerPaidAny = 0 // don't care
	DexscreenerPaidYes = 1
	DexscreenerPaidNo  = 2
)

// Wallet is a trading account with its auto-trade configuration.
// EncryptedKey is only decrypted inside the trade orchestrator.
type Wallet struct {
	ID           int64
	OwnerID      int64 // chat id of the owning operator
	Address      string
	Label        string
	EncryptedKey []byte

	BuyAmount    decimal.Decimal // SOL
	BuySlippage  decimal.Decimal // percent
	SellSlippage decimal.Decimal // percent
	SellPreset1  int             // percent
	SellPreset2  int             // percent
	PriorityFee  uint64          // micro-lamports per compute unit
	TipMev       uint64          // lamports
	IsMev        bool
	IsActive     bool
	IsDefault    bool

	// Criteria
	StartHour       *int // UTC, nil = always
	EndHour         *int // UTC, nil = always
	TTC             *int // max time-to-completion, nil = no ceiling
	AgScore         int
	DeployerAge     int // hours
	DexscreenerPaid int
	MinMcap         decimal.Decimal
	MaxMcap         decimal.Decimal
	MinLiquidity    decimal.Decimal
	MaxLiquidity    decimal.Decimal
	TriggerMode     TriggerMode

	CreatedAt time.Time
}
