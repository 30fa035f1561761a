// Package cache provides the short-TTL key/value store used for search
// results, listing responses, and rate-limit counters. Redis is used when
// configured; otherwise an in-process store keeps the same semantics.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Cache is the key/value contract shared by the Redis and in-memory backends.
type Cache interface {
	// Get returns the stored value and true, or nil and false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// Increment adds one to the counter at key, starting a new window of the
	// given length when the counter does not exist. It returns the new count
	// and the time left in the current window.
	Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	// Backend names the implementation ("redis" or "memory").
	Backend() string
	// Close releases backend resources.
	Close() error
}

// GetJSON reads key and decodes it into dst. Returns false on a miss.
func GetJSON(ctx context.Context, c Cache, key string, dst any) (bool, error) {
	data, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes value and stores it under key for ttl.
func SetJSON(ctx context.Context, c Cache, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.Set(ctx, key, data, ttl)
}
