package port

import (
	"context"
	"time"
)

// BatchLock guards a batch working set against concurrent duplicate triggers.
// Acquire returns a release token when the lock was taken, and ok=false when
// another run already holds it.
type BatchLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}
