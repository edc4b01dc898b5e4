package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/outcomefi/vaultsync/internal/domain"
)

// Lock keys live in their own namespace so operators can inspect or clear
// them without touching cached markets.
const lockPrefix = "vaultsync:lock:"

// releaseTimeout bounds the release call, which runs on a background context
// so a cancelled request can still give its lock back.
const releaseTimeout = 5 * time.Second

// releaseScript deletes the lock key only while it still holds the caller's
// token. A lock that expired and was reacquired elsewhere carries the new
// holder's token and survives the old holder's release.
const releaseScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager implements domain.LockManager with SETNX plus the token-checked
// Lua release. The replay engine takes one lock per market so recomputes of
// the same market never interleave.
type LockManager struct {
	rdb     *redis.Client
	release *redis.Script
}

// NewLockManager creates a LockManager on the shared client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		rdb:     c.rdb,
		release: redis.NewScript(releaseScript),
	}
}

// Acquire takes the lock for key with the given TTL and returns an idempotent
// release function. A lock held elsewhere yields domain.ErrLockHeld.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	k := lockPrefix + key

	ok, err := lm.rdb.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			relCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			_ = lm.release.Run(relCtx, lm.rdb, []string{k}, token).Err()
		})
	}, nil
}

var _ domain.LockManager = (*LockManager)(nil)
