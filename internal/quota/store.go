// Package quota provides the TTL-based counter store backing faucet rate
// limits. Counters are fixed-window: the expiry is set when a key is first
// incremented and is never refreshed by later increments, so a window always
// measures from first touch.
package quota

import (
	"context"
	"time"
)

// Store is the counter store contract. Implementations must be safe for
// arbitrary concurrent callers incrementing the same key: the increment and
// the conditional first-touch expiry must be a single atomic step.
type Store interface {
	// Increment atomically increments the counter for key and returns the
	// post-increment count. If the key did not exist, its expiry is set to
	// ttl from now in the same atomic step.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
