package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives MemoryStore expiry without sleeping
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestMemoryStore(t *testing.T) (*MemoryStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(time.Hour)
	s.now = clock.Now
	t.Cleanup(func() { _ = s.Close() })
	return s, clock
}

func TestMemoryStore_GetSet(t *testing.T) {
	s, clock := newTestMemoryStore(t)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	value := []byte("83.25")
	require.NoError(t, s.Set(ctx, "usd", value, time.Minute))
	value[0] = 'X'

	got, ok, err := s.Get(ctx, "usd")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "83.25", string(got), "stored value is a copy")

	clock.Advance(time.Minute)
	_, ok, err = s.Get(ctx, "usd")
	require.NoError(t, err)
	assert.False(t, ok, "entry expires at its TTL")

	require.NoError(t, s.Set(ctx, "forever", []byte("1"), 0))
	clock.Advance(1000 * time.Hour)
	exists, err := s.Exists(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMemoryStore_SetNX(t *testing.T) {
	s, clock := newTestMemoryStore(t)
	ctx := context.Background()

	stored, err := s.SetNX(ctx, "event-1", []byte("1"), time.Hour)
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = s.SetNX(ctx, "event-1", []byte("1"), time.Hour)
	require.NoError(t, err)
	assert.False(t, stored, "live key is not overwritten")

	clock.Advance(time.Hour)
	stored, err = s.SetNX(ctx, "event-1", []byte("1"), time.Hour)
	require.NoError(t, err)
	assert.True(t, stored, "expired key can be claimed again")
}

func TestMemoryStore_Cleanup(t *testing.T) {
	s, clock := newTestMemoryStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "short-1", []byte("a"), time.Second))
	require.NoError(t, s.Set(ctx, "short-2", []byte("b"), time.Second))
	require.NoError(t, s.Set(ctx, "long", []byte("c"), time.Hour))
	assert.Equal(t, 3, s.Size())

	clock.Advance(2 * time.Second)
	s.cleanup()

	assert.Equal(t, 1, s.Size())
	exists, err := s.Exists(ctx, "long")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMemoryStore_ConcurrentSetNX(t *testing.T) {
	s, _ := newTestMemoryStore(t)
	ctx := context.Background()
	const workers = 100

	results := make(chan bool, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stored, err := s.SetNX(ctx, "concurrent", []byte("1"), time.Hour)
			results <- err == nil && stored
		}()
	}
	wg.Wait()
	close(results)

	claimed := 0
	for ok := range results {
		if ok {
			claimed++
		}
	}
	assert.Equal(t, 1, claimed, "exactly one goroutine claims the key")
}

func TestMemoryStore_Close(t *testing.T) {
	s := NewMemoryStore(0)
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close(), "closing twice is safe")
}
