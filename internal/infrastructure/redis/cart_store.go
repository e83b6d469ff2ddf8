package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/freshcut/internal/domain/cart"
	goredis "github.com/redis/go-redis/v9"
)

const (
	cartKeyPrefix    = "freshcut:cart:"
	maxUpdateRetries = 5
)

// CartStore keeps carts as JSON values that expire after ttl of inactivity.
type CartStore struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

func NewCartStore(client goredis.UniversalClient, ttl time.Duration) *CartStore {
	return &CartStore{client: client, ttl: ttl}
}

func (s *CartStore) Load(ctx context.Context, key string) (*cart.Cart, error) {
	raw, err := s.client.Get(ctx, cartKeyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, cart.ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: load cart: %w", err)
	}
	return decodeCart(raw)
}

func decodeCart(raw []byte) (*cart.Cart, error) {
	var c cart.Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("redis: decode cart: %w", err)
	}
	return &c, nil
}

// Update is an optimistic WATCH/MULTI transaction on the cart key, retried a
// few times when another writer gets in first.
func (s *CartStore) Update(ctx context.Context, key string, edit func(*cart.Cart) error) (*cart.Cart, error) {
	full := cartKeyPrefix + key
	var (
		out     *cart.Cart
		editErr error
	)
	txf := func(tx *goredis.Tx) error {
		c := &cart.Cart{}
		raw, err := tx.Get(ctx, full).Bytes()
		switch {
		case errors.Is(err, goredis.Nil):
		case err != nil:
			return fmt.Errorf("redis: load cart: %w", err)
		default:
			if c, err = decodeCart(raw); err != nil {
				return err
			}
		}
		if editErr = edit(c); editErr != nil {
			return editErr
		}
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("redis: encode cart: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, full, data, s.ttl)
			return nil
		})
		if err == nil {
			out = c
		}
		return err
	}

	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		err := s.client.Watch(ctx, txf, full)
		switch {
		case err == nil:
			return out, nil
		case editErr != nil:
			return nil, editErr
		case errors.Is(err, goredis.TxFailedErr):
			continue
		default:
			return nil, fmt.Errorf("redis: save cart: %w", err)
		}
	}
	return nil, fmt.Errorf("redis: save cart: %w", cart.ErrContended)
}

func (s *CartStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, cartKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis: delete cart: %w", err)
	}
	return nil
}
