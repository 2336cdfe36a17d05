package loader

import (
	"sync"
	"sync/atomic"
)

// ResultMapping holds one batched aggregation result: normalized parent key
// to aggregated value.
type ResultMapping map[string]interface{}

type cacheEntry struct {
	once    sync.Once
	mapping ResultMapping
	err     error
}

// resultCache memoizes batched results per descriptor key. Each entry is
// computed at most once; concurrent callers for the same key share the
// single computation, while distinct keys never block each other. A failed
// computation stays failed for that key only.
type resultCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry

	hits   atomic.Int64
	misses atomic.Int64
}

func newResultCache() *resultCache {
	return &resultCache{entries: make(map[string]*cacheEntry)}
}

func (c *resultCache) getOrCompute(key string, compute func() (ResultMapping, error)) (ResultMapping, bool, error) {
	c.mu.Lock()
	entry, hit := c.entries[key]
	if !hit {
		entry = &cacheEntry{}
		c.entries[key] = entry
	}
	c.mu.Unlock()

	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}

	entry.once.Do(func() {
		entry.mapping, entry.err = compute()
	})
	return entry.mapping, hit, entry.err
}

func (c *resultCache) Hits() int64   { return c.hits.Load() }
func (c *resultCache) Misses() int64 { return c.misses.Load() }
