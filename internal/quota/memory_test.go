package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Increment(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()

	count, err := store.Increment(ctx, "faucet:ip:10.0.0.1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = store.Increment(ctx, "faucet:ip:10.0.0.1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// Different key gets its own counter
	count, err = store.Increment(ctx, "faucet:ip:10.0.0.2", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMemoryStore_TTLFixedAtCreation(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	now := time.Unix(1000, 0)
	store.now = func() time.Time { return now }

	ctx := context.Background()

	_, err := store.Increment(ctx, "key", 10*time.Second)
	require.NoError(t, err)

	// Repeated increments before expiry must not extend the window
	now = now.Add(9 * time.Second)
	count, err := store.Increment(ctx, "key", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// 11s after creation the original window has elapsed, even though the
	// last increment was only 2s ago
	now = now.Add(2 * time.Second)
	count, err = store.Increment(ctx, "key", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "counter should restart after the creation-anchored TTL elapses")
}

func TestMemoryStore_ConcurrentIncrements(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()
	const n = 100

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Increment(ctx, "shared", time.Minute)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	count, err := store.Increment(ctx, "shared", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(n+1), count, "no increments may be lost under concurrency")
}

func TestMemoryStore_EvictExpired(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	now := time.Unix(1000, 0)
	store.now = func() time.Time { return now }

	ctx := context.Background()
	_, err := store.Increment(ctx, "stale", time.Second)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	store.evictExpired()

	store.mu.Lock()
	_, exists := store.entries["stale"]
	store.mu.Unlock()
	assert.False(t, exists)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Increment(ctx, "key", time.Minute)
	assert.Error(t, err)
}

func TestMemoryStore_CloseIdempotent(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
}
