package storage

import (
	"context"

	"solana-trade-engine/internal/domain"
)

// WalletStore provides access to wallets storage.
type WalletStore interface {
	// Insert adds a wallet, assigns its ID and makes it the owner's default.
	// Returns ErrDuplicateKey if the address exists.
	Insert(ctx context.Context, w *domain.Wallet) error

	// GetByID retrieves a wallet. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id int64) (*domain.Wallet, error)

	// GetByAddress retrieves a wallet by its public address. Returns ErrNotFound if not exists.
	GetByAddress(ctx context.Context, address string) (*domain.Wallet, error)

	// ListByOwner retrieves all wallets of an owner, ordered by ID ASC.
	ListByOwner(ctx context.Context, ownerID int64) ([]*domain.Wallet, error)

	// ListActiveByTriggerMode retrieves active wallets reacting to mode, ordered by ID ASC.
	ListActiveByTriggerMode(ctx context.Context, mode domain.TriggerMode) ([]*domain.Wallet, error)

	// SetActive toggles auto-trading. Activating beyond domain.ActiveWalletsLimit
	// returns domain.ErrActiveLimit.
	SetActive(ctx context.Context, id int64, active bool) error

	// SetDefault makes the wallet the owner's only default.
	SetDefault(ctx context.Context, id int64) error
}

// TransactionStore provides access to confirmed trades. Records are immutable.
type TransactionStore interface {
	// Insert adds a trade and assigns its ID. Returns ErrDuplicateKey if the signature exists.
	Insert(ctx context.Context, t *domain.Transaction) error

	// GetByID retrieves a trade. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id int64) (*domain.Transaction, error)

	// GetBySignature retrieves a trade by ledger signature. Returns ErrNotFound if not exists.
	GetBySignature(ctx context.Context, signature string) (*domain.Transaction, error)

	// GetSells retrieves the sells linked to a buy, ordered by ID ASC.
	GetSells(ctx context.Context, buyID int64) ([]*domain.Transaction, error)

	// LatestPositions returns up to limit most recent buys of the owner's
	// wallets, newest first, each with its sells.
	LatestPositions(ctx context.Context, ownerID int64, limit int) ([]domain.Position, error)
}
