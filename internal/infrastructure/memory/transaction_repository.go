package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/Zhima-Mochi/freshcut/internal/domain/transaction"
)

// TransactionRepository is append-only and unique on OrderID.
type TransactionRepository struct {
	mu      sync.RWMutex
	items   []*domain.Transaction
	byOrder map[string]int
}

func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{
		byOrder: make(map[string]int),
	}
}

func (r *TransactionRepository) Insert(ctx context.Context, t *domain.Transaction) error {
	_ = ctx
	if t == nil || t.OrderID == "" {
		return fmt.Errorf("transaction repository: order id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byOrder[t.OrderID]; exists {
		return domain.ErrDuplicate
	}
	clone := *t
	r.items = append(r.items, &clone)
	r.byOrder[t.OrderID] = len(r.items) - 1
	return nil
}

func (r *TransactionRepository) GetByOrder(ctx context.Context, orderID string) (*domain.Transaction, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.byOrder[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *r.items[i]
	return &clone, nil
}

func (r *TransactionRepository) List(ctx context.Context, limit int) ([]*domain.Transaction, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = defaultListLimit
	}
	out := make([]*domain.Transaction, 0, min(limit, len(r.items)))
	for i := len(r.items) - 1; i >= 0 && len(out) < limit; i-- {
		clone := *r.items[i]
		out = append(out, &clone)
	}
	return out, nil
}
