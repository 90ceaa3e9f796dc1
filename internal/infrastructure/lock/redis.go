package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/autopecas/sigesync/internal/domain"
	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// RedisLocker serialises sync passes across server instances sharing a redis
type RedisLocker struct {
	client *redislock.Client
}

// NewRedisLocker creates a locker on top of a redis client
func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb)}
}

// Acquire obtains key for ttl without waiting; a held key yields ErrSyncInProgress.
// The lock is refreshed every ttl/3 until released.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	lk, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, domain.ErrSyncInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("obtain sync lock: %w", err)
	}

	stop := keepAlive(ttl, func(ctx context.Context) error {
		return lk.Refresh(ctx, ttl, nil)
	})

	return func(ctx context.Context) error {
		stop()
		err := lk.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			// expired while the pass ran
			return nil
		}
		return err
	}, nil
}
