package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

func buyTx(walletID int64, sig string, tokens string) *domain.Transaction {
	return &domain.Transaction{
		WalletID:  walletID,
		Signature: sig,
		Type:      domain.TxTypeBuy,
		AmountIn:  decimal.RequireFromString("0.5"),
		AmountOut: decimal.RequireFromString(tokens),
		TokenID:   "mint",
		PoolID:    "pool",
	}
}

func sellTx(walletID, buyID int64, sig string, tokens string) *domain.Transaction {
	return &domain.Transaction{
		WalletID:  walletID,
		Signature: sig,
		Type:      domain.TxTypeSell,
		AmountIn:  decimal.RequireFromString(tokens),
		AmountOut: decimal.RequireFromString("0.1"),
		TokenID:   "mint",
		PoolID:    "pool",
		BuyTxID:   &buyID,
	}
}

func TestTransactionStore_InsertAndGet(t *testing.T) {
	store := NewTransactionStore(NewWalletStore())
	ctx := context.Background()

	buy := buyTx(1, "sig1", "1000")
	if err := store.Insert(ctx, buy); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if buy.ID == 0 {
		t.Fatalf("Insert did not assign an ID")
	}

	got, err := store.GetBySignature(ctx, "sig1")
	if err != nil {
		t.Fatalf("GetBySignature failed: %v", err)
	}
	if got.ID != buy.ID || !got.AmountOut.Equal(buy.AmountOut) {
		t.Errorf("mismatch: got %+v", got)
	}

	if _, err := store.GetByID(ctx, 42); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestTransactionStore_DuplicateSignature(t *testing.T) {
	store := NewTransactionStore(NewWalletStore())
	ctx := context.Background()

	if err := store.Insert(ctx, buyTx(1, "sig", "1")); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := store.Insert(ctx, buyTx(1, "sig", "1")); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestTransactionStore_PositionRemaining(t *testing.T) {
	wallets := NewWalletStore()
	store := NewTransactionStore(wallets)
	ctx := context.Background()

	w := newWallet(5, "owner-wallet")
	_ = wallets.Insert(ctx, w)

	buy := buyTx(w.ID, "buy", "1000")
	_ = store.Insert(ctx, buy)
	_ = store.Insert(ctx, sellTx(w.ID, buy.ID, "sell1", "250"))
	_ = store.Insert(ctx, sellTx(w.ID, buy.ID, "sell2", "150"))

	sells, err := store.GetSells(ctx, buy.ID)
	if err != nil {
		t.Fatalf("GetSells failed: %v", err)
	}
	if len(sells) != 2 || sells[0].Signature != "sell1" {
		t.Fatalf("unexpected sells: %+v", sells)
	}

	positions, err := store.LatestPositions(ctx, 5, 10)
	if err != nil {
		t.Fatalf("LatestPositions failed: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(positions))
	}
	if left := positions[0].TokensLeft(); !left.Equal(decimal.NewFromInt(600)) {
		t.Errorf("TokensLeft = %s, want 600", left)
	}
}

func TestTransactionStore_LatestPositionsNewestFirst(t *testing.T) {
	wallets := NewWalletStore()
	store := NewTransactionStore(wallets)
	ctx := context.Background()

	mine := newWallet(1, "mine")
	theirs := newWallet(2, "theirs")
	_ = wallets.Insert(ctx, mine)
	_ = wallets.Insert(ctx, theirs)

	_ = store.Insert(ctx, buyTx(mine.ID, "b1", "1"))
	_ = store.Insert(ctx, buyTx(theirs.ID, "x1", "1"))
	_ = store.Insert(ctx, buyTx(mine.ID, "b2", "1"))
	_ = store.Insert(ctx, buyTx(mine.ID, "b3", "1"))

	positions, _ := store.LatestPositions(ctx, 1, 2)
	if len(positions) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(positions))
	}
	if positions[0].Buy.Signature != "b3" || positions[1].Buy.Signature != "b2" {
		t.Errorf("wrong order: %s, %s", positions[0].Buy.Signature, positions[1].Buy.Signature)
	}

	empty, _ := store.LatestPositions(ctx, 1, 0)
	if len(empty) != 0 {
		t.Errorf("limit 0 must return nothing")
	}
}
