package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

// TransactionStore is an in-memory implementation of storage.TransactionStore.
// Owner resolution for LatestPositions goes through the wallet store.
type TransactionStore struct {
	mu      sync.RWMutex
	nextID  int64
	data    map[int64]*domain.Transaction
	wallets storage.WalletStore
}

// NewTransactionStore creates a new in-memory transaction store.
func NewTransactionStore(wallets storage.WalletStore) *TransactionStore {
	return &TransactionStore{
		data:    make(map[int64]*domain.Transaction),
		wallets: wallets,
	}
}

var _ storage.TransactionStore = (*TransactionStore)(nil)

// Insert adds a trade. Returns ErrDuplicateKey if the signature exists.
func (s *TransactionStore) Insert(_ context.Context, t *domain.Transaction) error {
	if t == nil || t.Signature == "" || t.WalletID == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data {
		if existing.Signature == t.Signature {
			return storage.ErrDuplicateKey
		}
	}

	s.nextID++
	t.ID = s.nextID
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	cp := *t
	s.data[t.ID] = &cp
	return nil
}

// GetByID retrieves a trade by ID.
func (s *TransactionStore) GetByID(_ context.Context, id int64) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// GetBySignature retrieves a trade by signature.
func (s *TransactionStore) GetBySignature(_ context.Context, signature string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.data {
		if t.Signature == signature {
			cp := *t
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

// GetSells retrieves the sells linked to buyID.
func (s *TransactionStore) GetSells(_ context.Context, buyID int64) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sellsLocked(buyID), nil
}

// LatestPositions returns the owner's most recent buys with their sells.
func (s *TransactionStore) LatestPositions(ctx context.Context, ownerID int64, limit int) ([]domain.Position, error) {
	if limit <= 0 {
		return nil, nil
	}
	wallets, err := s.wallets.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	owned := make(map[int64]struct{}, len(wallets))
	for _, w := range wallets {
		owned[w.ID] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var buys []*domain.Transaction
	for _, t := range s.data {
		if _, ok := owned[t.WalletID]; ok && t.Type == domain.TxTypeBuy {
			buys = append(buys, t)
		}
	}
	sort.Slice(buys, func(i, j int) bool {
		return buys[i].ID > buys[j].ID
	})
	if len(buys) > limit {
		buys = buys[:limit]
	}

	positions := make([]domain.Position, 0, len(buys))
	for _, b := range buys {
		p := domain.Position{Buy: *b}
		for _, sell := range s.sellsLocked(b.ID) {
			p.Sells = append(p.Sells, *sell)
		}
		positions = append(positions, p)
	}
	return positions, nil
}

func (s *TransactionStore) sellsLocked(buyID int64) []*domain.Transaction {
	var result []*domain.Transaction
	for _, t := range s.data {
		if t.Type == domain.TxTypeSell && t.BuyTxID != nil && *t.BuyTxID == buyID {
			cp := *t
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}
