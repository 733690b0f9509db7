package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

// WalletStore implements storage.WalletStore using PostgreSQL.
type WalletStore struct {
	pool *Pool
}

// NewWalletStore creates a new WalletStore.
func NewWalletStore(pool *Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WalletStore = (*WalletStore)(nil)

const walletColumns = `
	id, owner_id, address, label, encrypted_key,
	buy_amount::text, buy_slippage::text, sell_slippage::text, sell_preset1, sell_preset2,
	priority_fee, tip_mev, is_mev, is_active, is_default,
	start_hour, end_hour, ttc, ag_score, deployer_age, dexscreener_paid,
	min_mcap::text, max_mcap::text, min_liquidity::text, max_liquidity::text,
	trigger_mode, created_at`

// Insert adds a wallet and makes it the owner's default in one transaction.
func (s *WalletStore) Insert(ctx context.Context, w *domain.Wallet) error {
	if w == nil || w.Address == "" || w.OwnerID == 0 {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE wallets SET is_default = FALSE WHERE owner_id = $1 AND is_default`, w.OwnerID); err != nil {
		return fmt.Errorf("clear default wallet: %w", err)
	}

	query := `
		INSERT INTO wallets (
			owner_id, address, label, encrypted_key,
			buy_amount, buy_slippage, sell_slippage, sell_preset1, sell_preset2,
			priority_fee, tip_mev, is_mev, is_active, is_default,
			start_hour, end_hour, ttc, ag_score, deployer_age, dexscreener_paid,
			min_mcap, max_mcap, min_liquidity, max_liquidity, trigger_mode
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9,
			$10, $11, $12, $13, TRUE,
			$14, $15, $16, $17, $18, $19,
			$20, $21, $22, $23, $24
		)
		RETURNING id, created_at
	`
	err = tx.QueryRow(ctx, query,
		w.OwnerID, w.Address, w.Label, w.EncryptedKey,
		w.BuyAmount.String(), w.BuySlippage.String(), w.SellSlippage.String(), w.SellPreset1, w.SellPreset2,
		int64(w.PriorityFee), int64(w.TipMev), w.IsMev, w.IsActive,
		w.StartHour, w.EndHour, w.TTC, w.AgScore, w.DeployerAge, w.DexscreenerPaid,
		w.MinMcap.String(), w.MaxMcap.String(), w.MinLiquidity.String(), w.MaxLiquidity.String(), int(w.TriggerMode),
	).Scan(&w.ID, &w.CreatedAt)
	if err != nil {
		return storeError("insert wallet", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	w.IsDefault = true
	return nil
}

// GetByID retrieves a wallet by ID.
func (s *WalletStore) GetByID(ctx context.Context, id int64) (*domain.Wallet, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id)
	w, err := scanWallet(row)
	if err != nil {
		return nil, storeError("get wallet by id", err)
	}
	return w, nil
}

// GetByAddress retrieves a wallet by address.
func (s *WalletStore) GetByAddress(ctx context.Context, address string) (*domain.Wallet, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE address = $1`, address)
	w, err := scanWallet(row)
	if err != nil {
		return nil, storeError("get wallet by address", err)
	}
	return w, nil
}

// ListByOwner retrieves all wallets of an owner.
func (s *WalletStore) ListByOwner(ctx context.Context, ownerID int64) ([]*domain.Wallet, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+walletColumns+` FROM wallets WHERE owner_id = $1 ORDER BY id ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list wallets by owner: %w", err)
	}
	defer rows.Close()
	return scanWallets(rows)
}

// ListActiveByTriggerMode retrieves active wallets reacting to mode.
func (s *WalletStore) ListActiveByTriggerMode(ctx context.Context, mode domain.TriggerMode) ([]*domain.Wallet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE is_active AND trigger_mode = $1 ORDER BY id ASC`, int(mode))
	if err != nil {
		return nil, fmt.Errorf("list active wallets: %w", err)
	}
	defer rows.Close()
	return scanWallets(rows)
}

// SetActive toggles auto-trading. The owner's rows are serialized with an
// advisory lock so concurrent activations cannot exceed the limit.
func (s *WalletStore) SetActive(ctx context.Context, id int64, active bool) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		ownerID   int64
		wasActive bool
	)
	err = tx.QueryRow(ctx, `SELECT owner_id, is_active FROM wallets WHERE id = $1`, id).Scan(&ownerID, &wasActive)
	if err != nil {
		return storeError("get wallet", err)
	}

	if active && !wasActive {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, ownerID); err != nil {
			return fmt.Errorf("lock owner wallets: %w", err)
		}
		var count int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM wallets WHERE owner_id = $1 AND is_active`, ownerID).Scan(&count); err != nil {
			return fmt.Errorf("count active wallets: %w", err)
		}
		if count >= domain.ActiveWalletsLimit {
			return domain.ErrActiveLimit
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE wallets SET is_active = $2 WHERE id = $1`, id, active); err != nil {
		return fmt.Errorf("update wallet active: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// SetDefault makes the wallet the owner's only default.
func (s *WalletStore) SetDefault(ctx context.Context, id int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var ownerID int64
	if err := tx.QueryRow(ctx, `SELECT owner_id FROM wallets WHERE id = $1`, id).Scan(&ownerID); err != nil {
		return storeError("get wallet", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE wallets SET is_default = FALSE WHERE owner_id = $1 AND is_default`, ownerID); err != nil {
		return fmt.Errorf("clear default wallet: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE wallets SET is_default = TRUE WHERE id = $1`, id); err != nil {
		return fmt.Errorf("set default wallet: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// scanWallet scans a single row into a Wallet.
func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var (
		w           domain.Wallet
		priorityFee int64
		tipMev      int64
		triggerMode int
		decimals    [7]string
	)

	err := row.Scan(
		&w.ID, &w.OwnerID, &w.Address, &w.Label, &w.EncryptedKey,
		&decimals[0], &decimals[1], &decimals[2], &w.SellPreset1, &w.SellPreset2,
		&priorityFee, &tipMev, &w.IsMev, &w.IsActive, &w.IsDefault,
		&w.StartHour, &w.EndHour, &w.TTC, &w.AgScore, &w.DeployerAge, &w.DexscreenerPaid,
		&decimals[3], &decimals[4], &decimals[5], &decimals[6],
		&triggerMode, &w.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	targets := []*decimal.Decimal{
		&w.BuyAmount, &w.BuySlippage, &w.SellSlippage,
		&w.MinMcap, &w.MaxMcap, &w.MinLiquidity, &w.MaxLiquidity,
	}
	for i, dst := range targets {
		if *dst, err = decimal.NewFromString(decimals[i]); err != nil {
			return nil, fmt.Errorf("parse wallet numeric column %d: %w", i, err)
		}
	}
	w.PriorityFee = uint64(priorityFee)
	w.TipMev = uint64(tipMev)
	w.TriggerMode = domain.TriggerMode(triggerMode)
	return &w, nil
}

// scanWallets scans multiple rows into a slice of Wallet.
func scanWallets(rows pgx.Rows) ([]*domain.Wallet, error) {
	var wallets []*domain.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet row: %w", err)
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet rows: %w", err)
	}
	return wallets, nil
}
