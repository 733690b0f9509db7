package domain

import "github.com/shopspring/decimal"

// Criteria is the snapshot of a discovered opportunity used to select wallets.
type Criteria struct {
	AgScore         int             `json:"agScore"`
	Mcap            decimal.Decimal `json:"mcap"`
	Liquidity       decimal.Decimal `json:"liquidity"`
	TriggerMode     TriggerMode     `json:"triggerMode"`
	DeployerAge     int             `json:"deployerAge"`
	DexscreenerPaid *bool           `json:"dexscreenerPaid"`
	TTC             *int            `json:"ttc"`
}

// DexscreenerPaidValue maps the opportunity flag onto the wallet filter encoding.
func (c Criteria) DexscreenerPaidValue() int {
	if c.DexscreenerPaid == nil {
		return DexscreenerPaidAny
	}
	if *c.DexscreenerPaid {
		return DexscreenerPaidYes
	}
	return DexscreenerPaidNo
}

// OpportunityJob fans out into one buy job per matching wallet.
type OpportunityJob struct {
	ID       string         `json:"id"`
	Criteria Criteria       `json:"criteria"`
	Pool     PoolDescriptor `json:"pool"`
}

// DispatchSummary reports the result of an opportunity fan-out.
type DispatchSummary struct {
	WalletsMatched  int `json:"walletsMatched"`
	SwapsDispatched int `json:"swapsDispatched"`
}
