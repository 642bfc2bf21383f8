package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockNotAcquired is returned when a lock is still held by someone else after waiting
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld is returned when releasing a lock that expired or changed owner
	ErrLockNotHeld = errors.New("lock not held")
)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// AssetLocker serialises work on one asset across processes with SET NX locks
type AssetLocker struct {
	client    *Client
	keyPrefix string
}

// NewAssetLocker creates a new locker
func NewAssetLocker(client *Client, keyPrefix string) *AssetLocker {
	if keyPrefix == "" {
		keyPrefix = "dam-sync:lock:"
	}
	return &AssetLocker{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Acquire takes the lock for key, retrying with capped exponential backoff for up to wait.
// The returned release func only deletes the key while this holder still owns it.
func (l *AssetLocker) Acquire(ctx context.Context, key string, ttl time.Duration, wait time.Duration) (func(context.Context), error) {
	lockKey := l.keyPrefix + key
	lockValue := uuid.New().String()
	deadline := time.Now().Add(wait)
	backoff := 10 * time.Millisecond

	for {
		ok, err := l.client.rdb.SetNX(ctx, lockKey, lockValue, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			l.client.logger.Debug().Str("key", lockKey).Msg("Acquired lock")
			return func(releaseCtx context.Context) {
				if err := l.release(releaseCtx, lockKey, lockValue); err != nil {
					l.client.logger.Warn().Err(err).Str("key", lockKey).Msg("Failed to release lock")
				}
			}, nil
		}

		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%s: %w", key, ErrLockNotAcquired)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > 500*time.Millisecond {
				backoff = 500 * time.Millisecond
			}
		}
	}
}

func (l *AssetLocker) release(ctx context.Context, lockKey, lockValue string) error {
	result, err := releaseScript.Run(ctx, l.client.rdb, []string{lockKey}, lockValue).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	l.client.logger.Debug().Str("key", lockKey).Msg("Released lock")
	return nil
}
