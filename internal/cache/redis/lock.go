package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"solana-trade-engine/internal/domain"
)

// DefaultLockTTL bounds how long a crashed holder can block a key.
const DefaultLockTTL = 2 * time.Minute

// unlockLua deletes a lock key only if its value matches the caller's token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager serializes work on a key across processes using SETNX with a
// TTL and a Lua-based conditional unlock.
type LockManager struct {
	rdb      *redis.Client
	unlockSc *redis.Script
	ttl      time.Duration
	wait     time.Duration
}

// NewLockManager creates a LockManager. Locks expire after ttl if never released.
func NewLockManager(c *Client, ttl time.Duration) *LockManager {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &LockManager{
		rdb:      c.rdb,
		unlockSc: redis.NewScript(unlockLua),
		ttl:      ttl,
		wait:     50 * time.Millisecond,
	}
}

func lockKey(key string) string {
	return "lock:" + key
}

// TryAcquire attempts to obtain the lock once. It returns domain.ErrLockHeld if
// another holder has it. The returned unlock function is safe to call more than once.
func (lm *LockManager) TryAcquire(ctx context.Context, key string) (func(), error) {
	token := uuid.New().String()
	lk := lockKey(key)

	ok, err := lm.rdb.SetNX(ctx, lk, token, lm.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	released := false
	unlock := func() {
		if released {
			return
		}
		released = true

		// The caller's context may already be cancelled.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = lm.unlockSc.Run(unlockCtx, lm.rdb, []string{lk}, token).Err()
	}
	return unlock, nil
}

// Lock blocks until the lock on key is obtained or ctx is done.
func (lm *LockManager) Lock(ctx context.Context, key string) (func(), error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = lm.wait
	b.MaxInterval = time.Second

	return backoff.Retry(ctx, func() (func(), error) {
		unlock, err := lm.TryAcquire(ctx, key)
		if err != nil && !errors.Is(err, domain.ErrLockHeld) {
			return nil, backoff.Permanent(err)
		}
		return unlock, err
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(2*lm.ttl))
}
