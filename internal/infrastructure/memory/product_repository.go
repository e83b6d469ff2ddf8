package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domain "github.com/Zhima-Mochi/freshcut/internal/domain/catalog"
	"github.com/shopspring/decimal"
)

type ProductRepository struct {
	mu    sync.RWMutex
	items map[string]*domain.Product
}

func NewProductRepository() *ProductRepository {
	return &ProductRepository{
		items: make(map[string]*domain.Product),
	}
}

func (r *ProductRepository) Get(ctx context.Context, id string) (*domain.Product, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *ProductRepository) List(ctx context.Context) ([]*domain.Product, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Product, 0, len(r.items))
	for _, p := range r.items {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *ProductRepository) Upsert(ctx context.Context, p *domain.Product) error {
	_ = ctx
	if p == nil || p.ID == "" {
		return fmt.Errorf("product repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	clone := p.Clone()
	clone.Version = 1
	if existing, ok := r.items[p.ID]; ok {
		clone.Version = existing.Version + 1
	}
	clone.UpdatedAt = time.Now().UTC()
	r.items[p.ID] = clone
	p.Version = clone.Version
	return nil
}

func (r *ProductRepository) UpdateStock(ctx context.Context, id string, expectedVersion int64, stock decimal.Decimal) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Version != expectedVersion {
		return domain.ErrStockConflict
	}
	p.StockKilograms = stock
	p.Version++
	p.UpdatedAt = time.Now().UTC()
	return nil
}
