// Package cache is the in-process response store backed by go-cache.
package cache

import (
	"context"
	"fmt"
	"path"
	"sort"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultCleanupInterval is how often expired entries are evicted
const DefaultCleanupInterval = time.Minute

// Cache stores byte values with a per-key TTL. Expired entries are never
// returned, even before the janitor evicts them.
type Cache struct {
	items *gocache.Cache
}

// New creates an empty cache whose janitor runs every cleanupInterval
func New(cleanupInterval time.Duration) *Cache {
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	return &Cache{items: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

// Get returns the value stored under key, if present and unexpired
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.items.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, false, fmt.Errorf("cache entry %s holds %T", key, v)
	}
	return b, true, nil
}

// SetWithTTL stores value under key. A non-positive ttl never expires.
func (c *Cache) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	c.items.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

// KeysMatching lists the live keys matching a glob pattern (*, ?, [...]),
// in lexical order.
func (c *Cache) KeysMatching(_ context.Context, pattern string) ([]string, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid key pattern %q: %w", pattern, err)
	}

	var keys []string
	for key := range c.items.Items() {
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// DeleteMany removes keys; unknown keys are ignored
func (c *Cache) DeleteMany(_ context.Context, keys ...string) error {
	for _, key := range keys {
		c.items.Delete(key)
	}
	return nil
}

// Len returns the number of stored entries, including expired ones not yet evicted
func (c *Cache) Len() int {
	return c.items.ItemCount()
}

// Clear removes all items from the cache
func (c *Cache) Clear() {
	c.items.Flush()
}
