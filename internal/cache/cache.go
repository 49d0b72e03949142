package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss indicates the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Store is a key/value store with expiry. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close()
}

// GetOrCompute returns the cached payload for key, or invokes compute,
// stores the result with ttl and returns it. Backend failures degrade to a
// plain recompute; compute errors are never cached. Concurrent misses may
// compute twice, the last writer wins.
func GetOrCompute(ctx context.Context, store Store, key string, ttl time.Duration, compute func(context.Context) ([]byte, error)) ([]byte, error) {
	if store != nil {
		if cached, err := store.Get(ctx, key); err == nil {
			return cached, nil
		}
	}
	payload, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	if store != nil {
		_ = store.SetEx(ctx, key, payload, ttl)
	}
	return payload, nil
}
