package trade

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"solana-trade-engine/internal/domain"
)

var telegramEscaper = strings.NewReplacer(
	"<", "&lt;",
	">", "&gt;",
	"|", "&#124;",
	".", ".\u200b",
)

// EscapeTelegram escapes user-controlled text for HTML parse mode. Dots get a
// zero-width space so token symbols are never rendered as links.
func EscapeTelegram(s string) string {
	return telegramEscaper.Replace(s)
}

func walletString(w *domain.Wallet) string {
	short := w.Address
	if len(short) > 6 {
		short = short[:6]
	}
	link := fmt.Sprintf(`<a href="https://solscan.io/account/%s">%s</a>`, w.Address, short)
	if w.Label != "" {
		return fmt.Sprintf("💳 <strong>%s (%s)</strong>", EscapeTelegram(w.Label), link)
	}
	return fmt.Sprintf("💳 <strong>%s</strong>", link)
}

func txLink(signature string) string {
	return fmt.Sprintf(`<a href="https://solscan.io/tx/%s">View on Solscan</a>`, signature)
}

// groupThousands inserts commas into the integer part of a plain decimal string.
func groupThousands(s string) string {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String()
	if hasFrac {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

// formatNumber renders d with exactly places fraction digits and grouped thousands.
func formatNumber(d decimal.Decimal, places int32) string {
	return groupThousands(d.StringFixed(places))
}

// formatFiat renders whole US dollars.
func formatFiat(d decimal.Decimal) string {
	s := groupThousands(d.Round(0).StringFixed(0))
	if strings.HasPrefix(s, "-") {
		return "-$" + s[1:]
	}
	return "$" + s
}

// formatPercent renders at most two fraction digits.
func formatPercent(d decimal.Decimal) string {
	return groupThousands(d.Round(2).String()) + "%"
}

func formatSOL(lamports uint64) string {
	return decimal.NewFromUint64(lamports).Shift(-9).String() + " SOL"
}

// elapsed renders h:mm between two unix timestamps.
func elapsed(from, to int64) string {
	d := to - from
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%d:%02d", d/3600, (d%3600)/60)
}

// swapMcap is the market cap implied by the executed price.
func swapMcap(sol, tokens decimal.Decimal, pool *domain.PoolDescriptor) decimal.Decimal {
	if tokens.IsZero() {
		return decimal.Zero
	}
	return sol.Div(tokens).Mul(pool.Supply).Mul(pool.SolPrice)
}

// ConfirmationMessage renders the notification sent after a trade is persisted.
func ConfirmationMessage(tx *domain.Transaction, pool *domain.PoolDescriptor) string {
	sol, tokens := tx.AmountIn, tx.AmountOut
	if tx.Type == domain.TxTypeSell {
		sol, tokens = tx.AmountOut, tx.AmountIn
	}
	solStr := formatNumber(sol, 2)
	fiat := formatFiat(sol.Mul(pool.SolPrice))
	tokenStr := formatNumber(tokens, 0)
	symbol := EscapeTelegram(pool.Symbol)
	mcap := "MC: " + formatFiat(swapMcap(sol, tokens, pool))

	if tx.Type == domain.TxTypeSell {
		return fmt.Sprintf("✅ Swapped <strong>%s %s</strong> for <strong>%s SOL (%s)</strong> @ <strong>%s</strong>. %s",
			tokenStr, symbol, solStr, fiat, mcap, txLink(tx.Signature))
	}
	return fmt.Sprintf("✅ %s: Swapped <strong>%s SOL (%s)</strong> for <strong>%s %s</strong> @ <strong>%s</strong>. %s",
		tx.TriggerMode, solStr, fiat, tokenStr, symbol, mcap, txLink(tx.Signature))
}

// PositionStats summarizes a position at the current pool price.
type PositionStats struct {
	Initial    decimal.Decimal // SOL spent
	Realized   decimal.Decimal // SOL received
	Worth      decimal.Decimal // SOL value of the tokens left
	TokensLeft decimal.Decimal
	Growth     decimal.Decimal // percent
	Open       bool
	Elapsed    string
}

// Stats computes the position monitor figures. An open position is valued at
// pricePerToken; a closed one by what its sells realized.
func Stats(p domain.Position, pricePerToken decimal.Decimal, now time.Time) PositionStats {
	s := PositionStats{
		Initial:    p.Buy.AmountIn,
		Realized:   p.RealizedSol(),
		TokensLeft: p.TokensLeft(),
		Open:       p.IsOpen(),
	}
	s.Worth = s.TokensLeft.Mul(pricePerToken)

	value := s.Realized
	if s.Open {
		value = s.Worth
	}
	if s.Initial.IsPositive() {
		s.Growth = value.Div(s.Initial).Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100))
	}

	end := now.Unix()
	if !s.Open && len(p.Sells) > 0 {
		end = p.Sells[len(p.Sells)-1].Timestamp
	}
	s.Elapsed = elapsed(p.Buy.Timestamp, end)
	return s
}

// MonitorMessage renders the position monitor. balance is the wallet's SOL
// balance in lamports, nil when unknown.
func MonitorMessage(w *domain.Wallet, p domain.Position, pool *domain.PoolDescriptor, balance *uint64, now time.Time) string {
	st := Stats(p, pool.PricePerToken, now)

	icon := "🔒"
	if st.Open {
		icon = "🪙"
	}
	bal := "?"
	if balance != nil {
		bal = formatSOL(*balance)
	}
	link := fmt.Sprintf(`<a href="https://dexscreener.com/solana/%s">DS</a>`, p.Buy.TokenID)
	market := "Raydium"
	if pool.Protocol == domain.ProtocolPumpFun {
		link = fmt.Sprintf(`<a href="https://pump.fun/%s">PF</a>`, p.Buy.TokenID)
		market = "pump.fun"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📌 %s Trade\n", p.Buy.TriggerMode)
	fmt.Fprintf(&b, "%s - 💰 %s\n", walletString(w), bal)
	fmt.Fprintf(&b, "%s <strong>%s</strong> 🚀 <strong>%s</strong>\n", icon, EscapeTelegram(pool.Symbol), formatPercent(st.Growth))
	fmt.Fprintf(&b, "<code>%s</code>\n", p.Buy.TokenID)
	fmt.Fprintf(&b, "Initial: <strong>%s SOL</strong>\n", formatNumber(st.Initial, 3))
	fmt.Fprintf(&b, "Worth: <strong>%s SOL</strong>\n", formatNumber(st.Worth, 2))
	fmt.Fprintf(&b, "Realized: <strong>%s SOL</strong>\n", formatNumber(st.Realized, 2))
	fmt.Fprintf(&b, "Time elapsed: <strong>%s</strong>\n", st.Elapsed)
	fmt.Fprintf(&b, "Current Mcap: <strong>%s</strong>\n", formatFiat(pool.Mcap))
	fmt.Fprintf(&b, "Market: <strong>%s</strong>\n\n", market)
	fmt.Fprintf(&b, "Links: <strong>%s</strong>", link)
	return b.String()
}

// TradeButtons builds the monitor keyboard. Sell buttons are shown only while
// the position is open.
func TradeButtons(buyTxID int64, w *domain.Wallet, open bool) [][]domain.Button {
	rows := [][]domain.Button{{
		{Text: "🎨 Flex", Data: fmt.Sprintf("flex_profit_%d", buyTxID)},
		{Text: "🥸 Incognito", Data: fmt.Sprintf("flex_profit_incognito_%d", buyTxID)},
		{Text: "🔄 Refresh", Data: fmt.Sprintf("refresh_%d", buyTxID)},
	}}
	if !open {
		return rows
	}
	sell := [][]domain.Button{
		{
			{Text: fmt.Sprintf("🪝 Sell %d%%", w.SellPreset1), Data: fmt.Sprintf("make_sell_%d_%d", buyTxID, w.SellPreset1)},
			{Text: fmt.Sprintf("🪝 Sell %d%%", w.SellPreset2), Data: fmt.Sprintf("make_sell_%d_%d", buyTxID, w.SellPreset2)},
		},
		{{Text: "🪝 Sell 100%", Data: fmt.Sprintf("make_sell_%d_100", buyTxID)}},
		{{Text: "🪝 Sell Custom (enter integer as %)", Data: fmt.Sprintf("custom_sell_%d", buyTxID)}},
	}
	return append(sell, rows...)
}

// BuyFailedMessage reports one failed buy attempt.
func BuyFailedMessage(w *domain.Wallet, pool *domain.PoolDescriptor, attempt, maxAttempts int, err error) string {
	return fmt.Sprintf("%s Swap failed for <b>%s</b> (Attempt %d of %d): %s",
		w.TriggerMode, EscapeTelegram(pool.Symbol), attempt, maxAttempts, EscapeTelegram(err.Error()))
}

// SellFailedMessage reports a failed sell.
func SellFailedMessage(pool *domain.PoolDescriptor, err error) string {
	return fmt.Sprintf("Swap failed for <b>%s</b>: %s", EscapeTelegram(pool.Symbol), EscapeTelegram(err.Error()))
}

// VerifyFailedMessage reports a swap that landed but could not be decoded.
func VerifyFailedMessage(pool *domain.PoolDescriptor, req domain.TradeRequest) string {
	if req.IsBuy {
		return fmt.Sprintf("Failed to verify transaction:\nTried to buy %s with <b>%s</b> SOL",
			EscapeTelegram(pool.Symbol), req.Amount.StringFixed(2))
	}
	return fmt.Sprintf("Failed to verify transaction:\nTried to sell <b>%s</b> %s", req.Amount.StringFixed(2), EscapeTelegram(pool.Symbol))
}
