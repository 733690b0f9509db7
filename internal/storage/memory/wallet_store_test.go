package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

func newWallet(owner int64, addr string) *domain.Wallet {
	return &domain.Wallet{OwnerID: owner, Address: addr, Label: addr}
}

func TestWalletStore_InsertMakesDefault(t *testing.T) {
	store := NewWalletStore()
	ctx := context.Background()

	first := newWallet(1, "addr1")
	second := newWallet(1, "addr2")
	other := newWallet(2, "addr3")
	for _, w := range []*domain.Wallet{first, second, other} {
		if err := store.Insert(ctx, w); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got, err := store.GetByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.IsDefault {
		t.Errorf("first wallet should lose default after second insert")
	}

	got, _ = store.GetByAddress(ctx, "addr2")
	if !got.IsDefault || got.ID != second.ID {
		t.Errorf("second wallet should be default, got %+v", got)
	}

	got, _ = store.GetByID(ctx, other.ID)
	if !got.IsDefault {
		t.Errorf("other owner's default must be untouched")
	}
}

func TestWalletStore_DuplicateAddress(t *testing.T) {
	store := NewWalletStore()
	ctx := context.Background()

	if err := store.Insert(ctx, newWallet(1, "addr")); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	err := store.Insert(ctx, newWallet(2, "addr"))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestWalletStore_SetDefault(t *testing.T) {
	store := NewWalletStore()
	ctx := context.Background()

	a, b := newWallet(1, "a"), newWallet(1, "b")
	_ = store.Insert(ctx, a)
	_ = store.Insert(ctx, b)

	if err := store.SetDefault(ctx, a.ID); err != nil {
		t.Fatalf("SetDefault failed: %v", err)
	}
	wallets, _ := store.ListByOwner(ctx, 1)
	defaults := 0
	for _, w := range wallets {
		if w.IsDefault {
			defaults++
			if w.ID != a.ID {
				t.Errorf("wrong default wallet %d", w.ID)
			}
		}
	}
	if defaults != 1 {
		t.Errorf("expected exactly one default, got %d", defaults)
	}

	if err := store.SetDefault(ctx, 999); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestWalletStore_ActiveLimit(t *testing.T) {
	store := NewWalletStore()
	ctx := context.Background()

	var ids []int64
	for i := 0; i <= domain.ActiveWalletsLimit; i++ {
		w := newWallet(7, fmt.Sprintf("w%d", i))
		w.TriggerMode = domain.TriggerGodMode
		if err := store.Insert(ctx, w); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		ids = append(ids, w.ID)
	}

	for _, id := range ids[:domain.ActiveWalletsLimit] {
		if err := store.SetActive(ctx, id, true); err != nil {
			t.Fatalf("SetActive(%d) failed: %v", id, err)
		}
	}
	// Re-activating an active wallet is not counted twice
	if err := store.SetActive(ctx, ids[0], true); err != nil {
		t.Errorf("re-activation failed: %v", err)
	}

	last := ids[domain.ActiveWalletsLimit]
	if err := store.SetActive(ctx, last, true); !errors.Is(err, domain.ErrActiveLimit) {
		t.Fatalf("Expected ErrActiveLimit, got %v", err)
	}

	if err := store.SetActive(ctx, ids[0], false); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if err := store.SetActive(ctx, last, true); err != nil {
		t.Errorf("activation after freeing a slot failed: %v", err)
	}

	active, _ := store.ListActiveByTriggerMode(ctx, domain.TriggerGodMode)
	if len(active) != domain.ActiveWalletsLimit {
		t.Errorf("expected %d active wallets, got %d", domain.ActiveWalletsLimit, len(active))
	}
	for i := 1; i < len(active); i++ {
		if active[i-1].ID > active[i].ID {
			t.Errorf("active wallets not ordered by ID")
		}
	}

	none, _ := store.ListActiveByTriggerMode(ctx, domain.TriggerPFFomo)
	if len(none) != 0 {
		t.Errorf("expected no PF Fomo wallets, got %d", len(none))
	}
}

func TestWalletStore_ReturnsCopies(t *testing.T) {
	store := NewWalletStore()
	ctx := context.Background()

	w := newWallet(1, "addr")
	_ = store.Insert(ctx, w)

	got, _ := store.GetByID(ctx, w.ID)
	got.Label = "mutated"

	again, _ := store.GetByID(ctx, w.ID)
	if again.Label != "addr" {
		t.Errorf("store leaked internal state: %q", again.Label)
	}
}
