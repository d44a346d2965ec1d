package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const rateKeyPrefix = "rates:"

// RateCache caches suggested exchange-rate tables in a Store
type RateCache struct {
	store Store
	ttl   time.Duration
}

// NewRateCache creates a rate cache keeping tables for ttl
func NewRateCache(store Store, ttl time.Duration) *RateCache {
	return &RateCache{store: store, ttl: ttl}
}

// Get returns the cached table for key
func (c *RateCache) Get(ctx context.Context, key string) (map[string]decimal.Decimal, bool, error) {
	raw, ok, err := c.store.Get(ctx, rateKeyPrefix+key)
	if err != nil || !ok {
		return nil, false, err
	}
	var rates map[string]decimal.Decimal
	if err := json.Unmarshal(raw, &rates); err != nil {
		return nil, false, fmt.Errorf("decode cached rates %s: %w", key, err)
	}
	return rates, true, nil
}

// Set caches a rate table
func (c *RateCache) Set(ctx context.Context, key string, rates map[string]decimal.Decimal) error {
	raw, err := json.Marshal(rates)
	if err != nil {
		return fmt.Errorf("encode rates %s: %w", key, err)
	}
	return c.store.Set(ctx, rateKeyPrefix+key, raw, c.ttl)
}
