package domain

import "github.com/shopspring/decimal"

// PoolDescriptor is a read-only snapshot of a token's pool for the duration of one trade.
type PoolDescriptor struct {
	Mint     string          `json:"address"`
	Symbol   string          `json:"symbol"`
	Decimals uint8           `json:"decimals"`
	Supply   decimal.Decimal `json:"supply"`
	SolPrice decimal.Decimal `json:"solPrice"` // USD per SOL

	Protocol      Protocol        `json:"protocol"`
	PoolAddress   string          `json:"poolAddress"`
	PricePerSol   decimal.Decimal `json:"pricePerSol"`   // token units per SOL
	PricePerToken decimal.Decimal `json:"pricePerToken"` // SOL per token
	Mcap          decimal.Decimal `json:"mcap"`          // USD
}
