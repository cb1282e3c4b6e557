package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wingertjp/polymarket/internal/domain"
)

// unlockLua deletes a lock key only if its value matches the caller's token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// extendLua refreshes the TTL of a lock still held by the caller's token.
const extendLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// LockManager implements domain.LockManager using SET NX with a TTL and a
// Lua-based conditional unlock.
type LockManager struct {
	rdb      *redis.Client
	unlockSc *redis.Script
	extendSc *redis.Script
	logger   *slog.Logger
}

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client, logger *slog.Logger) *LockManager {
	return &LockManager{
		rdb:      c.rdb,
		unlockSc: redis.NewScript(unlockLua),
		extendSc: redis.NewScript(extendLua),
		logger:   logger.With("component", "app"),
	}
}

// LockKey returns the key guarding key.
func LockKey(key string) string {
	return Key("lock:" + key)
}

// Acquire attempts to obtain a lock for key with the given TTL. On success it
// returns an unlock function that is safe to call more than once.
//
// It returns domain.ErrLockHeld if the lock is already held by another party.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token, err := lm.acquire(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return lm.unlocker(LockKey(key), token, nil), nil
}

// Hold acquires key and keeps extending it every ttl/3 until ctx is done or
// the returned unlock is called. A lost lock is logged; the caller keeps
// running since the holder is expected to be the only instance.
func (lm *LockManager) Hold(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token, err := lm.acquire(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	lk := LockKey(key)
	stop := make(chan struct{})
	go func() {
		t := time.NewTicker(ttl / 3)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				n, err := lm.extendSc.Run(ctx, lm.rdb, []string{lk}, token, ttl.Milliseconds()).Int64()
				if err != nil && ctx.Err() == nil {
					lm.logger.Warn("lock refresh failed", "key", lk, "error", err)
				} else if err == nil && n == 0 {
					lm.logger.Error("lock lost", "key", lk)
					return
				}
			}
		}
	}()
	return lm.unlocker(lk, token, stop), nil
}

func (lm *LockManager) acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := lm.rdb.SetNX(ctx, LockKey(key), token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return "", fmt.Errorf("redis: %s: %w", key, domain.ErrLockHeld)
	}
	return token, nil
}

func (lm *LockManager) unlocker(lk, token string, stop chan struct{}) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			if stop != nil {
				close(stop)
			}
			// The caller's context may already be cancelled.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = lm.unlockSc.Run(ctx, lm.rdb, []string{lk}, token).Err()
		})
	}
}

// Compile-time interface check.
var _ domain.LockManager = (*LockManager)(nil)
