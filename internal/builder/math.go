package builder

import (
	"fmt"

	"github.com/shopspring/decimal"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/solana"
)

// DefaultFeeBps is the protocol fee skimmed from every swap (1%).
const DefaultFeeBps = 100

var (
	lamportsPerSol = decimal.NewFromInt(solana.LamportsPerSOL)
	bpsDenominator = decimal.NewFromInt(10_000)
	hundred        = decimal.NewFromInt(100)
)

// Quote holds the integer amounts of one swap, all in base units.
// Estimate is the output before slippage; MinOut the bound enforced on-ledger.
type Quote struct {
	AmountIn uint64
	Estimate uint64
	MinOut   uint64
	Fee      uint64
}

// tokenRate converts pricePerSol (tokens per SOL) into token base units per lamport.
func tokenRate(pricePerSol decimal.Decimal, decimals uint8) decimal.Decimal {
	return pricePerSol.Shift(int32(decimals) - 9)
}

func slippageFactor(slippagePct decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(1).Sub(slippagePct.Div(hundred))
}

// QuoteBuy computes the amounts of a SOL -> token swap. amountSol is in SOL,
// slippagePct in percent. All intermediate values are truncated toward zero.
func QuoteBuy(amountSol, pricePerSol decimal.Decimal, decimals uint8, slippagePct decimal.Decimal, feeBps int64) (Quote, error) {
	if !pricePerSol.IsPositive() {
		return Quote{}, fmt.Errorf("price per sol %s: %w", pricePerSol, domain.ErrInvalidAmount)
	}

	solIn := amountSol.Mul(lamportsPerSol).Floor()
	fee := solIn.Mul(decimal.NewFromInt(feeBps)).Div(bpsDenominator).Floor()
	amountIn := solIn.Sub(fee)
	estimate := amountIn.Mul(tokenRate(pricePerSol, decimals))
	minOut := estimate.Mul(slippageFactor(slippagePct)).Floor()

	if !amountIn.IsPositive() || !minOut.IsPositive() {
		return Quote{}, fmt.Errorf("buy %s SOL yields min out %s: %w", amountSol, minOut, domain.ErrInvalidAmount)
	}
	return Quote{
		AmountIn: uint64(amountIn.IntPart()),
		Estimate: uint64(estimate.Floor().IntPart()),
		MinOut:   uint64(minOut.IntPart()),
		Fee:      uint64(fee.IntPart()),
	}, nil
}

// QuoteSell computes the amounts of a token -> SOL swap. amountTokens is in
// whole tokens. The fee is taken from the estimated SOL proceeds.
func QuoteSell(amountTokens, pricePerSol decimal.Decimal, decimals uint8, slippagePct decimal.Decimal, feeBps int64) (Quote, error) {
	if !pricePerSol.IsPositive() {
		return Quote{}, fmt.Errorf("price per sol %s: %w", pricePerSol, domain.ErrInvalidAmount)
	}

	tokenIn := amountTokens.Shift(int32(decimals)).Floor()
	solCost := tokenIn.Div(tokenRate(pricePerSol, decimals))
	minOut := solCost.Mul(slippageFactor(slippagePct)).Floor()
	fee := solCost.Mul(decimal.NewFromInt(feeBps)).Div(bpsDenominator).Floor()

	if !tokenIn.IsPositive() || !minOut.IsPositive() {
		return Quote{}, fmt.Errorf("sell %s tokens yields min out %s: %w", amountTokens, minOut, domain.ErrInvalidAmount)
	}
	return Quote{
		AmountIn: uint64(tokenIn.IntPart()),
		Estimate: uint64(solCost.Floor().IntPart()),
		MinOut:   uint64(minOut.IntPart()),
		Fee:      uint64(fee.IntPart()),
	}, nil
}

// SlippageBps converts a percent slippage into basis points, truncated.
func SlippageBps(slippagePct decimal.Decimal) uint64 {
	bps := slippagePct.Mul(hundred).Floor()
	if bps.IsNegative() {
		return 0
	}
	return uint64(bps.IntPart())
}

// Lamports converts a SOL amount into lamports, truncated.
func Lamports(amountSol decimal.Decimal) uint64 {
	v := amountSol.Mul(lamportsPerSol).Floor()
	if v.IsNegative() {
		return 0
	}
	return uint64(v.IntPart())
}

// BaseUnits converts a whole-token amount into base units, truncated.
func BaseUnits(amount decimal.Decimal, decimals uint8) uint64 {
	v := amount.Shift(int32(decimals)).Floor()
	if v.IsNegative() {
		return 0
	}
	return uint64(v.IntPart())
}
