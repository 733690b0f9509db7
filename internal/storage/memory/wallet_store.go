package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

// WalletStore is an in-memory implementation of storage.WalletStore.
type WalletStore struct {
	mu     sync.RWMutex
	nextID int64
	data   map[int64]*domain.Wallet
}

// NewWalletStore creates a new in-memory wallet store.
func NewWalletStore() *WalletStore {
	return &WalletStore{data: make(map[int64]*domain.Wallet)}
}

var _ storage.WalletStore = (*WalletStore)(nil)

// Insert adds a wallet and makes it the owner's default.
func (s *WalletStore) Insert(_ context.Context, w *domain.Wallet) error {
	if w == nil || w.Address == "" || w.OwnerID == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data {
		if existing.Address == w.Address {
			return storage.ErrDuplicateKey
		}
	}
	for _, existing := range s.data {
		if existing.OwnerID == w.OwnerID {
			existing.IsDefault = false
		}
	}

	s.nextID++
	w.ID = s.nextID
	w.IsDefault = true
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	cp := *w
	s.data[w.ID] = &cp
	return nil
}

// GetByID retrieves a wallet by ID.
func (s *WalletStore) GetByID(_ context.Context, id int64) (*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

// GetByAddress retrieves a wallet by address.
func (s *WalletStore) GetByAddress(_ context.Context, address string) (*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, w := range s.data {
		if w.Address == address {
			cp := *w
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

// ListByOwner retrieves all wallets of an owner.
func (s *WalletStore) ListByOwner(_ context.Context, ownerID int64) ([]*domain.Wallet, error) {
	return s.filter(func(w *domain.Wallet) bool { return w.OwnerID == ownerID }), nil
}

// ListActiveByTriggerMode retrieves active wallets reacting to mode.
func (s *WalletStore) ListActiveByTriggerMode(_ context.Context, mode domain.TriggerMode) ([]*domain.Wallet, error) {
	return s.filter(func(w *domain.Wallet) bool { return w.IsActive && w.TriggerMode == mode }), nil
}

// SetActive toggles auto-trading, bounded by domain.ActiveWalletsLimit per owner.
func (s *WalletStore) SetActive(_ context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.data[id]
	if !ok {
		return storage.ErrNotFound
	}
	if active && !w.IsActive {
		count := 0
		for _, other := range s.data {
			if other.OwnerID == w.OwnerID && other.IsActive {
				count++
			}
		}
		if count >= domain.ActiveWalletsLimit {
			return domain.ErrActiveLimit
		}
	}
	w.IsActive = active
	return nil
}

// SetDefault makes the wallet the owner's only default.
func (s *WalletStore) SetDefault(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.data[id]
	if !ok {
		return storage.ErrNotFound
	}
	for _, other := range s.data {
		if other.OwnerID == w.OwnerID {
			other.IsDefault = other.ID == id
		}
	}
	return nil
}

func (s *WalletStore) filter(keep func(*domain.Wallet) bool) []*domain.Wallet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Wallet
	for _, w := range s.data {
		if keep(w) {
			cp := *w
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}
