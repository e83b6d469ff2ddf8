package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Zhima-Mochi/freshcut/internal/domain/catalog"
	"github.com/Zhima-Mochi/freshcut/internal/observability"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

const productKeyPrefix = "freshcut:product:"

type cachedProduct struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Category         string          `json:"category"`
	PricePerKilogram int64           `json:"price_per_kg"`
	StockKilograms   decimal.Decimal `json:"stock_kg"`
	ImageRef         string          `json:"image_ref"`
	Version          int64           `json:"version"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// ProductCache is a read-through cache in front of a catalog.Reader. Concurrent
// misses for the same id share one backend load. Cached stock may be stale and
// must not be used for inventory decisions.
type ProductCache struct {
	client  goredis.UniversalClient
	backend catalog.Reader
	ttl     time.Duration
	group   singleflight.Group
	log     observability.Logger
}

func NewProductCache(client goredis.UniversalClient, backend catalog.Reader, ttl time.Duration, logger observability.Logger) *ProductCache {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &ProductCache{
		client:  client,
		backend: backend,
		ttl:     ttl,
		log:     logger.With(observability.F("component", "product_cache")),
	}
}

func (c *ProductCache) Get(ctx context.Context, id string) (*catalog.Product, error) {
	if raw, err := c.client.Get(ctx, productKeyPrefix+id).Bytes(); err == nil {
		var cp cachedProduct
		if jsonErr := json.Unmarshal(raw, &cp); jsonErr == nil {
			return fromCached(cp), nil
		}
	} else if !errors.Is(err, goredis.Nil) {
		c.log.Warn("product_cache_read_failed", observability.F("product_id", id), observability.F("error", err))
	}

	v, err, _ := c.group.Do(id, func() (any, error) {
		p, err := c.backend.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(toCached(p)); err == nil {
			if err := c.client.Set(ctx, productKeyPrefix+id, data, c.ttl).Err(); err != nil {
				c.log.Warn("product_cache_write_failed", observability.F("product_id", id), observability.F("error", err))
			}
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*catalog.Product).Clone(), nil
}

// Invalidate drops the cached copy of id.
func (c *ProductCache) Invalidate(ctx context.Context, id string) error {
	return c.client.Del(ctx, productKeyPrefix+id).Err()
}

func toCached(p *catalog.Product) cachedProduct {
	return cachedProduct{
		ID:               p.ID,
		Name:             p.Name,
		Category:         p.Category,
		PricePerKilogram: p.PricePerKilogram,
		StockKilograms:   p.StockKilograms,
		ImageRef:         p.ImageRef,
		Version:          p.Version,
		UpdatedAt:        p.UpdatedAt,
	}
}

func fromCached(cp cachedProduct) *catalog.Product {
	return &catalog.Product{
		ID:               cp.ID,
		Name:             cp.Name,
		Category:         cp.Category,
		PricePerKilogram: cp.PricePerKilogram,
		StockKilograms:   cp.StockKilograms,
		ImageRef:         cp.ImageRef,
		Version:          cp.Version,
		UpdatedAt:        cp.UpdatedAt,
	}
}
