// Package cache provides TTL key-value stores backed by Redis or process
// memory, and the typed caches built on them.
package cache

import (
	"context"
	"time"
)

// Store is a TTL key-value store
type Store interface {
	// Get returns the value for key; ok is false when absent or expired
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value under key for ttl. A zero ttl never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX stores value only if key is absent. It reports whether it stored.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// Exists reports whether key is present
	Exists(ctx context.Context, key string) (bool, error)
	// Close releases resources
	Close() error
}
