package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"library-indexer/internal/metrics"
)

// LRU is a fixed-size least-recently-used cache. Get and Add promote a key;
// Peek and Contains do not.
type LRU[K comparable, V any] struct {
	name  string
	inner *lru.Cache[K, V]
}

// New creates an LRU holding at most size entries.
func New[K comparable, V any](name string, size int) (*LRU[K, V], error) {
	c := &LRU[K, V]{name: name}
	inner, err := lru.NewWithEvict[K, V](size, func(K, V) {
		metrics.CacheEntries.WithLabelValues(name).Dec()
	})
	if err != nil {
		return nil, err
	}
	c.inner = inner
	metrics.CacheEntries.WithLabelValues(name).Set(0)
	return c, nil
}

// Name returns the cache name.
func (c *LRU[K, V]) Name() string { return c.name }

// Get returns the value for key and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	v, ok := c.inner.Get(key)
	if ok {
		metrics.CacheRequestsTotal.WithLabelValues(c.name, "hit").Inc()
	} else {
		metrics.CacheRequestsTotal.WithLabelValues(c.name, "miss").Inc()
	}
	return v, ok
}

// Peek returns the value for key without touching its recency.
func (c *LRU[K, V]) Peek(key K) (V, bool) {
	return c.inner.Peek(key)
}

// Contains reports whether key is cached without touching its recency.
func (c *LRU[K, V]) Contains(key K) bool {
	return c.inner.Contains(key)
}

// Add stores value under key, evicting the least recently used entry when
// full. It reports whether an eviction happened.
func (c *LRU[K, V]) Add(key K, value V) bool {
	existed := c.inner.Contains(key)
	evicted := c.inner.Add(key, value)
	if !existed {
		metrics.CacheEntries.WithLabelValues(c.name).Inc()
	}
	return evicted
}

// Remove deletes key.
func (c *LRU[K, V]) Remove(key K) bool {
	return c.inner.Remove(key)
}

// RemoveWhere deletes every key for which match returns true and returns the
// number removed.
func (c *LRU[K, V]) RemoveWhere(match func(K) bool) int {
	n := 0
	for _, k := range c.inner.Keys() {
		if match(k) && c.inner.Remove(k) {
			n++
		}
	}
	return n
}

// Keys returns the keys from oldest to newest.
func (c *LRU[K, V]) Keys() []K {
	return c.inner.Keys()
}

// Len returns the number of cached entries.
func (c *LRU[K, V]) Len() int {
	return c.inner.Len()
}

// Clear drops every entry.
func (c *LRU[K, V]) Clear() {
	c.inner.Purge()
	metrics.CacheEntries.WithLabelValues(c.name).Set(0)
}
