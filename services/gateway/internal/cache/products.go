// Package cache stores product listings in Redis. Every listing is written
// twice: a fresh copy that expires after the cache TTL and a stale copy that
// outlives it so the gateway can still answer while inventory is down.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hellodd/orderflow/services/gateway/internal/domain"
)

const keyPrefix = "products:list:"

// ErrMiss is returned when no entry exists for the requested listing.
var ErrMiss = errors.New("cache miss")

// Entry is one cached listing.
type Entry struct {
	Products []domain.ProductView `json:"products"`
	StoredAt time.Time            `json:"stored_at"`
}

// ProductCache is a Redis-backed listing cache.
type ProductCache struct {
	client   *redis.Client
	ttl      time.Duration
	staleTTL time.Duration
}

// NewProductCache creates a new product cache.
func NewProductCache(client *redis.Client, ttl, staleTTL time.Duration) *ProductCache {
	return &ProductCache{client: client, ttl: ttl, staleTTL: staleTTL}
}

// Key returns the fresh key for a listing of limit products.
func Key(limit int) string {
	return keyPrefix + strconv.Itoa(limit)
}

func staleKey(limit int) string {
	return Key(limit) + ":stale"
}

// Get returns the fresh listing for limit.
func (c *ProductCache) Get(ctx context.Context, limit int) (*Entry, error) {
	return c.get(ctx, Key(limit))
}

// GetStale returns the last listing stored for limit, even if its fresh
// copy has expired.
func (c *ProductCache) GetStale(ctx context.Context, limit int) (*Entry, error) {
	return c.get(ctx, staleKey(limit))
}

// Set stores both copies of a listing.
func (c *ProductCache) Set(ctx context.Context, limit int, products []domain.ProductView, now time.Time) error {
	data, err := json.Marshal(Entry{Products: products, StoredAt: now})
	if err != nil {
		return fmt.Errorf("marshal listing: %w", err)
	}

	_, err = c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, Key(limit), data, c.ttl)
		p.Set(ctx, staleKey(limit), data, c.staleTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set listing: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (c *ProductCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *ProductCache) get(ctx context.Context, key string) (*Entry, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("redis get listing: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal listing: %w", err)
	}
	return &e, nil
}
