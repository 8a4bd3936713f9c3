package cache

import (
	"context"
	"time"
)

// Store is the uniform key-value surface the invalidator broadcasts over.
// Values are opaque byte slices. Expired entries read as absent; Delete is
// idempotent, so removing a missing key is never an error.
type Store interface {
	// Name identifies the store in logs and metrics.
	Name() string

	// Get returns the value stored under key; the bool reports presence.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key. A non-positive ttl falls back to the
	// store's default expiry policy.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the given keys and returns how many were present.
	Delete(ctx context.Context, keys ...string) (int, error)

	// Keys returns a snapshot of the live keys.
	Keys(ctx context.Context) ([]string, error)

	// Len returns the number of live entries.
	Len(ctx context.Context) (int, error)

	// Flush drops every entry.
	Flush(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}
