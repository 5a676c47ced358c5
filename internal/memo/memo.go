// Package memo provides the single-flight plus TTL/LRU memoization layer
// spec §4.2 requires in front of expensive, externally-idempotent lookups
// (checksum resolution, price quotes): concurrent callers for the same key
// collapse onto one in-flight computation, and the result is cached for a
// bounded time and bounded cardinality afterward.
package memo

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is the memoization lifetime applied when callers don't
// override it.
const DefaultTTL = time.Hour

// Cache memoizes Fetch's result per key: concurrent calls for an
// uncached key share one underlying computation, and the winning value is
// retained for TTL before the next call refetches it.
type Cache[K comparable, V any] struct {
	group singleflight.Group
	lru   *lru.LRU[K, V]
}

// New builds a Cache holding at most size entries, each valid for ttl.
func New[K comparable, V any](size int, ttl time.Duration) *Cache[K, V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[K, V]{lru: lru.NewLRU[K, V](size, nil, ttl)}
}

// Get returns the cached value for key, or calls fetch exactly once across
// any number of concurrent callers racing on the same key, caching and
// returning its result.
func (c *Cache[K, V]) Get(ctx context.Context, key K, sfKey string, fetch func(context.Context) (V, error)) (V, error) {
	if v, ok := c.lru.Get(key); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(sfKey, func() (interface{}, error) {
		if v, ok := c.lru.Get(key); ok {
			return v, nil
		}
		result, err := fetch(ctx)
		if err != nil {
			return result, err
		}
		c.lru.Add(key, result)
		return result, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Invalidate drops a single cached entry, e.g. after a write that
// supersedes it.
func (c *Cache[K, V]) Invalidate(key K) {
	c.lru.Remove(key)
}

// Len reports the number of entries currently cached.
func (c *Cache[K, V]) Len() int {
	return c.lru.Len()
}
