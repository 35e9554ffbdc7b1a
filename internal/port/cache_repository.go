package port

import (
	"context"
	"time"
)

type CacheRepository interface {
	// AcquireLock takes an exclusive lock on key, returns the release token and false if already held
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)

	// ReleaseLock drops the lock only if token still owns it
	ReleaseLock(ctx context.Context, key, token string) error

	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)
	// ClearIdempotency forgets a key so the same request can be retried
	ClearIdempotency(ctx context.Context, key string) error
}
