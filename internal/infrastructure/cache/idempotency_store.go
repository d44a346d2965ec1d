package cache

import (
	"context"
	"time"

	"github.com/lexdesk/backend/internal/domain/shared"
)

const idempotencyKeyPrefix = "event:idempotency:"

// IdempotencyStore records handled event IDs in a Store
type IdempotencyStore struct {
	store Store
}

// NewIdempotencyStore creates an idempotency store on top of store
func NewIdempotencyStore(store Store) *IdempotencyStore {
	return &IdempotencyStore{store: store}
}

// MarkProcessed marks an event as processed with a TTL.
// Returns true if the event was newly marked, false if it was already processed.
func (s *IdempotencyStore) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	return s.store.SetNX(ctx, idempotencyKeyPrefix+eventID, []byte("1"), ttl)
}

// IsProcessed checks if an event has already been processed
func (s *IdempotencyStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	return s.store.Exists(ctx, idempotencyKeyPrefix+eventID)
}

// Ensure IdempotencyStore implements shared.IdempotencyStore
var _ shared.IdempotencyStore = (*IdempotencyStore)(nil)
