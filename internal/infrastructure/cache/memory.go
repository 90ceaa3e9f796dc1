package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/autopecas/sigesync/internal/domain"
)

// entry is a cached JSON document with its expiry
type entry struct {
	value     interface{}
	expiresAt time.Time
}

// MemoryCache is a process-local balance cache with TTL support
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string]entry
	now  func() time.Time

	stop chan struct{}
	once sync.Once
}

// NewMemoryCache creates an in-memory cache that sweeps expired entries every interval.
// A non-positive interval disables the sweeper; expired entries are then only hidden.
func NewMemoryCache(interval time.Duration) *MemoryCache {
	c := &MemoryCache{
		data: make(map[string]entry),
		now:  time.Now,
		stop: make(chan struct{}),
	}
	if interval > 0 {
		go c.sweep(interval)
	}
	return c
}

// Get returns the value stored under key, decoded the same way the redis cache decodes it
func (c *MemoryCache) Get(ctx context.Context, key string) (interface{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.data[key]
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, domain.ErrCacheMiss
	}
	return e.value, nil
}

// Set stores value under key for ttl. The value goes through JSON once so callers get
// the same shape back from every backend.
func (c *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	var decoded interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = entry{value: decoded, expiresAt: c.now().Add(ttl)}
	return nil
}

// Delete removes a key
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// Exists reports whether a live entry is stored under key
func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.data[key]
	return ok && c.now().Before(e.expiresAt), nil
}

// Size returns the number of stored entries, expired ones included until swept
func (c *MemoryCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Clear drops every entry
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]entry)
}

// Close stops the sweeper
func (c *MemoryCache) Close() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}

func (c *MemoryCache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *MemoryCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, e := range c.data {
		if !now.Before(e.expiresAt) {
			delete(c.data, key)
		}
	}
}
