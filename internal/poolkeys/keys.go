package poolkeys

import (
	"context"
	"fmt"
)

// Resolver resolves the on-ledger account set of a Raydium pool.
type Resolver interface {
	// Resolve returns the keys of poolID.
	// Returns domain.ErrPoolNotFound if the API has no entry for the pool.
	Resolve(ctx context.Context, poolID string) (*Keys, error)
}

// Mint is one side of a pool.
type Mint struct {
	Address   string `json:"address"`
	Decimals  uint8  `json:"decimals"`
	ProgramID string `json:"programId"`
}

// Vaults holds the pool's token vaults keyed by side.
type Vaults struct {
	A string `json:"A"`
	B string `json:"B"`
}

// AmmConfig references a CPMM config account.
type AmmConfig struct {
	ID string `json:"id"`
}

// Keys is the account set of a Raydium pool as served by the pool-keys API.
// Market fields are only populated for V4 pools; Config only for CPMM pools.
type Keys struct {
	ProgramID string `json:"programId"`
	ID        string `json:"id"`
	MintA     Mint   `json:"mintA"`
	MintB     Mint   `json:"mintB"`
	Vault     Vaults `json:"vault"`
	Authority string `json:"authority"`

	OpenOrders       string `json:"openOrders"`
	TargetOrders     string `json:"targetOrders"`
	MarketProgramID  string `json:"marketProgramId"`
	MarketID         string `json:"marketId"`
	MarketAuthority  string `json:"marketAuthority"`
	MarketBaseVault  string `json:"marketBaseVault"`
	MarketQuoteVault string `json:"marketQuoteVault"`
	MarketBids       string `json:"marketBids"`
	MarketAsks       string `json:"marketAsks"`
	MarketEventQueue string `json:"marketEventQueue"`

	Config *AmmConfig `json:"config,omitempty"`
}

// VaultFor returns the pool vault holding mint.
func (k *Keys) VaultFor(mint string) (string, error) {
	switch mint {
	case k.MintA.Address:
		return k.Vault.A, nil
	case k.MintB.Address:
		return k.Vault.B, nil
	}
	return "", fmt.Errorf("pool %s has no vault for mint %s", k.ID, mint)
}
