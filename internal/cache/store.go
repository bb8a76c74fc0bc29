package cache

import (
	"context"
	"time"
)

// Store is the shared cache interface. It backs the optional fast path
// for the current-key-id pointer; correctness never depends on it.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
}
