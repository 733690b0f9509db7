package dispatch

import (
	"context"
	"fmt"
	"time"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

// Match reports whether wallet w should auto-buy an opportunity with criteria c
// at hourUTC.
func Match(w *domain.Wallet, c domain.Criteria, hourUTC int) bool {
	if w == nil || !w.IsActive || w.TriggerMode != c.TriggerMode {
		return false
	}
	if w.DexscreenerPaid != domain.DexscreenerPaidAny && w.DexscreenerPaid != c.DexscreenerPaidValue() {
		return false
	}
	if c.Liquidity.LessThan(w.MinLiquidity) || c.Liquidity.GreaterThan(w.MaxLiquidity) {
		return false
	}
	if c.Mcap.LessThan(w.MinMcap) || c.Mcap.GreaterThan(w.MaxMcap) {
		return false
	}
	if w.AgScore > c.AgScore || w.DeployerAge > c.DeployerAge {
		return false
	}
	if !ttcAllows(w.TTC, c.TTC) {
		return false
	}
	return InWindow(w.StartHour, w.EndHour, hourUTC)
}

// ttcAllows: no opportunity ttc or no wallet ceiling passes; otherwise the
// ceiling must cover it.
func ttcAllows(ceiling, ttc *int) bool {
	if ttc == nil || ceiling == nil || *ceiling == 0 {
		return true
	}
	return *ceiling >= *ttc
}

// InWindow reports whether hour falls in [start, end). A window with
// end < start wraps midnight. A missing bound means always.
func InWindow(start, end *int, hour int) bool {
	if start == nil || end == nil {
		return true
	}
	if *end < *start {
		return hour >= *start || hour < *end
	}
	return hour >= *start && hour < *end
}

// Matcher selects the wallets an opportunity fans out to.
type Matcher struct {
	wallets storage.WalletStore
}

// NewMatcher creates a Matcher.
func NewMatcher(wallets storage.WalletStore) *Matcher {
	return &Matcher{wallets: wallets}
}

// Select returns the active wallets whose criteria accept c at now.
func (m *Matcher) Select(ctx context.Context, c domain.Criteria, now time.Time) ([]*domain.Wallet, error) {
	candidates, err := m.wallets.ListActiveByTriggerMode(ctx, c.TriggerMode)
	if err != nil {
		return nil, fmt.Errorf("matcher: list wallets: %w", err)
	}
	hour := now.UTC().Hour()
	var out []*domain.Wallet
	for _, w := range candidates {
		if Match(w, c, hour) {
			out = append(out, w)
		}
	}
	return out, nil
}
