package health

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// resultCache memoizes expensive computations per key with a TTL, using
// single-flight so concurrent status requests share one recomputation per
// key instead of duplicating probe work.
type resultCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	group   singleflight.Group
	now     func() time.Time
}

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

func newResultCache(now func() time.Time) *resultCache {
	if now == nil {
		now = time.Now
	}
	return &resultCache{
		entries: make(map[string]cacheEntry),
		now:     now,
	}
}

// get returns the cached value for key if still fresh, otherwise computes
// it. Only one concurrent caller per key computes; the rest share the
// result. A compute error is returned without poisoning the cache, so the
// next request retries.
func (c *resultCache) get(key string, ttl time.Duration, compute func() (any, error)) (any, error) {
	if value, ok := c.lookup(key); ok {
		return value, nil
	}

	value, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check inside the flight: a caller that lost the race to an
		// in-progress computation sees its fresh result here.
		if value, ok := c.lookup(key); ok {
			return value, nil
		}
		value, err := compute()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = cacheEntry{value: value, expiresAt: c.now().Add(ttl)}
		c.mu.Unlock()
		return value, nil
	})
	return value, err
}

func (c *resultCache) lookup(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

// invalidate drops one key. Used after acknowledgements so the next status
// request reflects the mutation immediately instead of after the TTL.
func (c *resultCache) invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}
