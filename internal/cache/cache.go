// Package cache keeps prepared corpus files in memory, keyed by file name
// and validated by a content hash.
package cache

import (
	"encoding/hex"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/blake3"
)

// Cache is a bounded LRU of values whose validity is tied to the content
// hash they were computed from. A disabled cache never stores anything.
type Cache[V any] struct {
	entries *lru.Cache[string, entry[V]]
	enabled bool
	size    int

	hits   atomic.Int64
	misses atomic.Int64
}

type entry[V any] struct {
	hash      string
	timestamp time.Time
	value     V
}

// New creates a cache holding at most maxEntries values. A non-positive
// maxEntries disables the cache.
func New[V any](maxEntries int) (*Cache[V], error) {
	if maxEntries <= 0 {
		return &Cache[V]{enabled: false}, nil
	}

	entries, err := lru.New[string, entry[V]](maxEntries)
	if err != nil {
		return nil, err
	}

	return &Cache[V]{
		entries: entries,
		enabled: true,
		size:    maxEntries,
	}, nil
}

// HashBytes computes a BLAKE3 hash of bytes and returns it as a hex string.
func HashBytes(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// HashString computes a BLAKE3 hash of s.
func HashString(s string) string {
	return HashBytes([]byte(s))
}

// Get retrieves a cached value regardless of its hash.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	if !c.enabled {
		return zero, false
	}

	e, ok := c.entries.Get(key)
	if !ok {
		c.misses.Add(1)
		return zero, false
	}
	c.hits.Add(1)
	return e.value, true
}

// GetWithHash retrieves a cached value only if the hash matches. A stale
// entry is evicted.
func (c *Cache[V]) GetWithHash(key, hash string) (V, bool) {
	var zero V
	if !c.enabled {
		return zero, false
	}

	e, ok := c.entries.Get(key)
	if !ok {
		c.misses.Add(1)
		return zero, false
	}
	if e.hash != hash {
		c.entries.Remove(key)
		c.misses.Add(1)
		return zero, false
	}
	c.hits.Add(1)
	return e.value, true
}

// Set stores a value without a hash.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithHash(key, "", value)
}

// SetWithHash stores a value together with the hash it was computed from.
func (c *Cache[V]) SetWithHash(key, hash string, value V) {
	if !c.enabled {
		return
	}
	c.entries.Add(key, entry[V]{hash: hash, timestamp: time.Now(), value: value})
}

// Invalidate removes a cache entry.
func (c *Cache[V]) Invalidate(key string) {
	if !c.enabled {
		return
	}
	c.entries.Remove(key)
}

// Clear removes all cache entries.
func (c *Cache[V]) Clear() {
	if !c.enabled {
		return
	}
	c.entries.Purge()
}

// Stats holds cache statistics.
type Stats struct {
	Enabled  bool  `json:"enabled"`
	Entries  int   `json:"entries"`
	Capacity int   `json:"capacity"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
}

// GetStats returns statistics about the cache.
func (c *Cache[V]) GetStats() Stats {
	if !c.enabled {
		return Stats{}
	}
	return Stats{
		Enabled:  true,
		Entries:  c.entries.Len(),
		Capacity: c.size,
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
	}
}
