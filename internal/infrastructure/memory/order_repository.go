package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domain "github.com/Zhima-Mochi/freshcut/internal/domain/order"
)

const defaultListLimit = 100

type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
	seq    int64
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders: make(map[string]*domain.Order),
	}
}

func (r *OrderRepository) Insert(ctx context.Context, order *domain.Order) error {
	_ = ctx
	if order == nil || order.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return domain.ErrConflict
	}

	r.seq++
	order.Number = r.seq
	r.orders[order.ID] = order.Clone()
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return order.Clone(), nil
}

func (r *OrderRepository) MarkPaid(ctx context.Context, id, paymentRef string, at time.Time) error {
	return r.update(ctx, id, func(o *domain.Order) error {
		if o.Status != domain.StatusPending {
			return domain.ErrConflict
		}
		o.Status = domain.StatusPaid
		o.PaymentRef = paymentRef
		o.UpdatedAt = at
		return nil
	})
}

func (r *OrderRepository) MarkCancelled(ctx context.Context, id, reason string, at time.Time) error {
	return r.update(ctx, id, func(o *domain.Order) error {
		if o.Status != domain.StatusPending {
			return domain.ErrConflict
		}
		o.Status = domain.StatusCancelled
		o.CancelReason = reason
		o.UpdatedAt = at
		return nil
	})
}

func (r *OrderRepository) SetFulfilled(ctx context.Context, id string, value bool, at time.Time) error {
	return r.update(ctx, id, func(o *domain.Order) error {
		o.Fulfilled = value
		o.UpdatedAt = at
		return nil
	})
}

func (r *OrderRepository) SetBillingArtifact(ctx context.Context, id, ref string, at time.Time) error {
	return r.update(ctx, id, func(o *domain.Order) error {
		o.BillingArtifactRef = ref
		o.UpdatedAt = at
		return nil
	})
}

func (r *OrderRepository) List(ctx context.Context, f domain.Filter) ([]*domain.Order, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Order, 0)
	for _, o := range r.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.Fulfilled != nil && o.Fulfilled != *f.Fulfilled {
			continue
		}
		if !f.CreatedBefore.IsZero() && !o.CreatedAt.Before(f.CreatedBefore) {
			continue
		}
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Number > out[j].Number
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *OrderRepository) update(ctx context.Context, id string, fn func(*domain.Order) error) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	next := o.Clone()
	if err := fn(next); err != nil {
		return err
	}
	r.orders[id] = next
	return nil
}
