package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache is the in-process fallback used when Redis is not configured.
// Entries are not shared between API instances.
type MemoryCache struct {
	store *gocache.Cache
	now   func() time.Time
}

// NewMemoryCache creates an in-memory cache that sweeps expired entries on
// the given cleanup interval.
func NewMemoryCache(cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{
		store: gocache.New(gocache.NoExpiration, cleanupInterval),
		now:   time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, found := c.store.Get(key)
	if !found {
		return nil, false, nil
	}
	data, ok := v.([]byte)
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	c.store.Set(key, stored, ttl)
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		c.store.Delete(k)
	}
	return nil
}

func (c *MemoryCache) Increment(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if err := c.store.Add(key, int64(1), window); err == nil {
		return 1, window, nil
	}

	count, err := c.store.IncrementInt64(key, 1)
	if err != nil {
		// Expired between Add and IncrementInt64.
		c.store.Set(key, int64(1), window)
		return 1, window, nil
	}

	_, expiresAt, found := c.store.GetWithExpiration(key)
	if !found || expiresAt.IsZero() {
		return count, window, nil
	}
	return count, expiresAt.Sub(c.now()), nil
}

func (c *MemoryCache) Backend() string { return "memory" }

func (c *MemoryCache) Close() error {
	c.store.Flush()
	return nil
}

var _ Cache = (*MemoryCache)(nil)
