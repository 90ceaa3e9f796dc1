package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/autopecas/sigesync/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, "sigesync:"), mr
}

func TestRedisCache_SetAndGet(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "balance:9001", map[string]interface{}{"found": true, "quantity": 42}, time.Minute))

	assert.True(t, mr.Exists("sigesync:balance:9001"), "keys are prefixed")
	got, err := c.Get(ctx, "balance:9001")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"found": true, "quantity": float64(42)}, got)
}

func TestRedisCache_TTL(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 5*time.Minute))
	assert.Equal(t, 5*time.Minute, mr.TTL("sigesync:k"))

	mr.FastForward(5 * time.Minute)
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestRedisCache_ExistsAndDelete(t *testing.T) {
	c, _ := newTestRedisCache(t)
	ctx := context.Background()

	exists, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, c.Set(ctx, "k", 1, time.Minute))
	exists, err = c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestRedisCache_Unavailable(t *testing.T) {
	c, mr := newTestRedisCache(t)
	mr.Close()

	_, err := c.Get(context.Background(), "k")
	assert.ErrorIs(t, err, domain.ErrCacheUnavailable)
	assert.ErrorIs(t, c.Set(context.Background(), "k", 1, time.Minute), domain.ErrCacheUnavailable)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	client.Close()

	_, err = NewRedisClient(context.Background(), "not a url")
	assert.Error(t, err)
}
