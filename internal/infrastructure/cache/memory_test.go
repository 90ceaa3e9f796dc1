package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/autopecas/sigesync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests expire entries without sleeping
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestMemoryCache() (*MemoryCache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewMemoryCache(0)
	c.now = clock.Now
	return c, clock
}

func TestMemoryCache_SetAndGet(t *testing.T) {
	c, _ := newTestMemoryCache()
	ctx := context.Background()

	tests := []struct {
		name  string
		key   string
		value interface{}
		want  interface{}
	}{
		{"string", "k1", "value", "value"},
		{"number decodes as float64", "k2", 42, float64(42)},
		{"struct decodes as map", "k3", struct {
			Found bool   `json:"found"`
			Error string `json:"error"`
		}{true, ""}, map[string]interface{}{"found": true, "error": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, c.Set(ctx, tt.key, tt.value, time.Minute))
			got, err := c.Get(ctx, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c, clock := newTestMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "balance:1", "x", 5*time.Minute))

	clock.Advance(4 * time.Minute)
	exists, err := c.Exists(ctx, "balance:1")
	require.NoError(t, err)
	assert.True(t, exists)

	clock.Advance(time.Minute)
	_, err = c.Get(ctx, "balance:1")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
	exists, _ = c.Exists(ctx, "balance:1")
	assert.False(t, exists)

	assert.Equal(t, 1, c.Size(), "expired entries stay until swept")
	c.removeExpired()
	assert.Equal(t, 0, c.Size())
}

func TestMemoryCache_Miss(t *testing.T) {
	c, _ := newTestMemoryCache()
	_, err := c.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestMemoryCache_DeleteAndClear(t *testing.T) {
	c, _ := newTestMemoryCache()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), i, time.Minute))
	}
	assert.Equal(t, 5, c.Size())

	require.NoError(t, c.Delete(ctx, "k0"))
	_, err := c.Get(ctx, "k0")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
	assert.Equal(t, 4, c.Size())

	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestMemoryCache_UnencodableValue(t *testing.T) {
	c, _ := newTestMemoryCache()
	err := c.Set(context.Background(), "bad", make(chan int), time.Minute)
	assert.Error(t, err)
}

func TestMemoryCache_SweeperStops(t *testing.T) {
	c := NewMemoryCache(time.Millisecond)
	require.NoError(t, c.Set(context.Background(), "k", "v", time.Nanosecond))

	assert.Eventually(t, func() bool { return c.Size() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "close is idempotent")
}

func TestMemoryCache_Concurrent(t *testing.T) {
	c, _ := newTestMemoryCache()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", id)
			assert.NoError(t, c.Set(ctx, key, id, time.Minute))
			_, err := c.Get(ctx, key)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, c.Size())
}
