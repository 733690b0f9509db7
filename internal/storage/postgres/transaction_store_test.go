package postgres

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

func createTestTransaction(walletID int64, sig string, typ domain.TxType, in, out string, buyID *int64) *domain.Transaction {
	return &domain.Transaction{
		WalletID:    walletID,
		Signature:   sig,
		Type:        typ,
		AmountIn:    decimal.RequireFromString(in),
		AmountOut:   decimal.RequireFromString(out),
		TokenID:     "mint-1",
		PoolID:      "pool-1",
		Slot:        250_000_000,
		Timestamp:   1_700_000_000,
		BuyTxID:     buyID,
		TriggerMode: domain.TriggerPFFomo,
	}
}

func TestTransactionStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	wallets := NewWalletStore(pool)
	store := NewTransactionStore(pool)

	w := createTestWallet(1, "tx-wallet")
	require.NoError(t, wallets.Insert(ctx, w))

	buy := createTestTransaction(w.ID, "sig-buy", domain.TxTypeBuy, "0.5", "123456.789", nil)
	require.NoError(t, store.Insert(ctx, buy))
	require.NotZero(t, buy.ID)

	got, err := store.GetBySignature(ctx, "sig-buy")
	require.NoError(t, err)
	assert.Equal(t, buy.ID, got.ID)
	assert.Equal(t, domain.TxTypeBuy, got.Type)
	assert.True(t, decimal.RequireFromString("123456.789").Equal(got.AmountOut))
	assert.Nil(t, got.BuyTxID)
	assert.Equal(t, domain.TriggerPFFomo, got.TriggerMode)

	byID, err := store.GetByID(ctx, buy.ID)
	require.NoError(t, err)
	assert.Equal(t, "sig-buy", byID.Signature)

	err = store.Insert(ctx, createTestTransaction(w.ID, "sig-buy", domain.TxTypeBuy, "1", "1", nil))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	_, err = store.GetBySignature(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTransactionStore_Positions(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	wallets := NewWalletStore(pool)
	store := NewTransactionStore(pool)

	w := createTestWallet(2, "pos-wallet")
	require.NoError(t, wallets.Insert(ctx, w))
	other := createTestWallet(3, "other-wallet")
	require.NoError(t, wallets.Insert(ctx, other))

	first := createTestTransaction(w.ID, "b1", domain.TxTypeBuy, "1", "1000", nil)
	require.NoError(t, store.Insert(ctx, first))
	require.NoError(t, store.Insert(ctx, createTestTransaction(w.ID, "s1", domain.TxTypeSell, "400", "0.6", &first.ID)))

	second := createTestTransaction(w.ID, "b2", domain.TxTypeBuy, "1", "50", nil)
	require.NoError(t, store.Insert(ctx, second))
	require.NoError(t, store.Insert(ctx, createTestTransaction(other.ID, "x1", domain.TxTypeBuy, "1", "1", nil)))

	sells, err := store.GetSells(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, sells, 1)
	assert.Equal(t, "s1", sells[0].Signature)

	positions, err := store.LatestPositions(ctx, 2, 5)
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, "b2", positions[0].Buy.Signature)
	assert.Empty(t, positions[0].Sells)
	assert.Equal(t, "b1", positions[1].Buy.Signature)
	assert.True(t, decimal.NewFromInt(600).Equal(positions[1].TokensLeft()))

	limited, err := store.LatestPositions(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "b2", limited[0].Buy.Signature)
}
