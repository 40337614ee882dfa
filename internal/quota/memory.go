package quota

import (
	"context"
	"sync"
	"time"
)

// entry is a single fixed-window counter.
type entry struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore is an in-memory Store for development and testing. A background
// goroutine periodically evicts expired counters so the map stays bounded.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	done    chan struct{}
	closed  bool

	now func() time.Time // overridable in tests
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory quota store and starts its eviction
// goroutine.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{
		entries: make(map[string]*entry),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go m.cleanup(time.Minute)
	return m
}

// Increment increments the counter for key, creating it with the given ttl if
// absent or expired. Expired entries restart at 1; the ttl of a live entry is
// never extended.
func (m *MemoryStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.entries[key]
	if !ok || !e.expiresAt.After(now) {
		e = &entry{expiresAt: now.Add(ttl)}
		m.entries[key] = e
	}
	e.count++
	return e.count, nil
}

// Ping always succeeds for the in-memory store.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close stops the eviction goroutine.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

func (m *MemoryStore) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictExpired()
		}
	}
}

func (m *MemoryStore) evictExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for key, e := range m.entries {
		if !e.expiresAt.After(now) {
			delete(m.entries, key)
		}
	}
}
