package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

// TransactionStore implements storage.TransactionStore using PostgreSQL.
type TransactionStore struct {
	pool *Pool
}

// NewTransactionStore creates a new TransactionStore.
func NewTransactionStore(pool *Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TransactionStore = (*TransactionStore)(nil)

const transactionColumns = `
	t.id, t.wallet_id, t.signature, t.type, t.amount_in::text, t.amount_out::text,
	t.token_id, t.pool_id, t.slot, t.timestamp, t.buy_tx_id, t.trigger_mode, t.created_at`

// Insert adds a trade. Returns ErrDuplicateKey if the signature exists.
func (s *TransactionStore) Insert(ctx context.Context, t *domain.Transaction) error {
	if t == nil || t.Signature == "" || t.WalletID == 0 {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO transactions (
			wallet_id, signature, type, amount_in, amount_out,
			token_id, pool_id, slot, timestamp, buy_tx_id, trigger_mode
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11
		)
		RETURNING id, created_at
	`
	err := s.pool.QueryRow(ctx, query,
		t.WalletID, t.Signature, string(t.Type), t.AmountIn.String(), t.AmountOut.String(),
		t.TokenID, t.PoolID, t.Slot, t.Timestamp, t.BuyTxID, int(t.TriggerMode),
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return storeError("insert transaction", err)
	}
	return nil
}

// GetByID retrieves a trade by ID.
func (s *TransactionStore) GetByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions t WHERE t.id = $1`, id)
	t, err := scanTransaction(row)
	if err != nil {
		return nil, storeError("get transaction by id", err)
	}
	return t, nil
}

// GetBySignature retrieves a trade by signature.
func (s *TransactionStore) GetBySignature(ctx context.Context, signature string) (*domain.Transaction, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions t WHERE t.signature = $1`, signature)
	t, err := scanTransaction(row)
	if err != nil {
		return nil, storeError("get transaction by signature", err)
	}
	return t, nil
}

// GetSells retrieves the sells linked to buyID.
func (s *TransactionStore) GetSells(ctx context.Context, buyID int64) ([]*domain.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions t WHERE t.buy_tx_id = $1 AND t.type = 'SELL' ORDER BY t.id ASC`, buyID)
	if err != nil {
		return nil, fmt.Errorf("get sells: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// LatestPositions returns the owner's most recent buys with their sells.
func (s *TransactionStore) LatestPositions(ctx context.Context, ownerID int64, limit int) ([]domain.Position, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions t
		JOIN wallets w ON w.id = t.wallet_id
		WHERE w.owner_id = $1 AND t.type = 'BUY'
		ORDER BY t.id DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("get latest buys: %w", err)
	}
	buys, err := scanTransactions(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(buys) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(buys))
	for i, b := range buys {
		ids[i] = b.ID
	}
	rows, err = s.pool.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions t WHERE t.buy_tx_id = ANY($1) AND t.type = 'SELL' ORDER BY t.id ASC`, ids)
	if err != nil {
		return nil, fmt.Errorf("get position sells: %w", err)
	}
	defer rows.Close()
	sells, err := scanTransactions(rows)
	if err != nil {
		return nil, err
	}

	byBuy := make(map[int64][]domain.Transaction, len(buys))
	for _, sell := range sells {
		byBuy[*sell.BuyTxID] = append(byBuy[*sell.BuyTxID], *sell)
	}

	positions := make([]domain.Position, 0, len(buys))
	for _, b := range buys {
		positions = append(positions, domain.Position{Buy: *b, Sells: byBuy[b.ID]})
	}
	return positions, nil
}

// scanTransaction scans a single row into a Transaction.
func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		t           domain.Transaction
		txType      string
		amountIn    string
		amountOut   string
		triggerMode int
	)

	err := row.Scan(
		&t.ID, &t.WalletID, &t.Signature, &txType, &amountIn, &amountOut,
		&t.TokenID, &t.PoolID, &t.Slot, &t.Timestamp, &t.BuyTxID, &triggerMode, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if t.AmountIn, err = decimal.NewFromString(amountIn); err != nil {
		return nil, fmt.Errorf("parse amount_in: %w", err)
	}
	if t.AmountOut, err = decimal.NewFromString(amountOut); err != nil {
		return nil, fmt.Errorf("parse amount_out: %w", err)
	}
	t.Type = domain.TxType(txType)
	t.TriggerMode = domain.TriggerMode(triggerMode)
	return &t, nil
}

// scanTransactions scans multiple rows into a slice of Transaction.
func scanTransactions(rows pgx.Rows) ([]*domain.Transaction, error) {
	var txs []*domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txs, nil
}
