package redis

import (
	"context"
	"time"

	"github.com/forkline/reconciliation/internal/application/port"
	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
)

// luaReleaseIfMatch deletes the lock only when its value still matches our
// token, so a run that outlived its TTL cannot release a newer run's lock.
const luaReleaseIfMatch = `
local lockKey = KEYS[1]
local token = ARGV[1]
if redis.call('GET', lockKey) == token then
  return redis.call('DEL', lockKey)
end
return 0
`

// BatchLock is the redis-backed duplicate-trigger guard for batch runs.
type BatchLock struct {
	rdb *rd.Client
}

// NewBatchLock creates a batch lock over an existing redis client.
func NewBatchLock(rdb *rd.Client) *BatchLock {
	return &BatchLock{rdb: rdb}
}

// Acquire takes the working set lock with SET NX. ok=false means another run
// holds it.
func (l *BatchLock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Release frees the lock if the token still matches.
func (l *BatchLock) Release(ctx context.Context, key, token string) error {
	_, err := l.rdb.Eval(ctx, luaReleaseIfMatch, []string{key}, token).Int()
	return err
}

var _ port.BatchLock = (*BatchLock)(nil)
