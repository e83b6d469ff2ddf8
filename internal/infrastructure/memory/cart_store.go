package memory

import (
	"context"
	"sync"

	"github.com/Zhima-Mochi/freshcut/internal/domain/cart"
)

// CartStore keeps carts in process memory; carts vanish on restart.
type CartStore struct {
	mu    sync.RWMutex
	carts map[string]*cart.Cart
}

func NewCartStore() *CartStore {
	return &CartStore{carts: make(map[string]*cart.Cart)}
}

func (s *CartStore) Load(ctx context.Context, key string) (*cart.Cart, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.carts[key]
	if !ok {
		return nil, cart.ErrCartNotFound
	}
	return cloneCart(c), nil
}

func (s *CartStore) Update(ctx context.Context, key string, edit func(*cart.Cart) error) (*cart.Cart, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	c := &cart.Cart{}
	if stored, ok := s.carts[key]; ok {
		c = cloneCart(stored)
	}
	if err := edit(c); err != nil {
		return nil, err
	}
	s.carts[key] = cloneCart(c)
	return c, nil
}

func (s *CartStore) Delete(ctx context.Context, key string) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, key)
	return nil
}

func cloneCart(c *cart.Cart) *cart.Cart {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Lines = c.Snapshot()
	return &cp
}
