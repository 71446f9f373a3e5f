package rag

import (
	"encoding/json"
	"sync"
	"time"
)

const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	results   []SearchResult
	createdAt time.Time
}

// RetrievalCache memoizes search results per (query, options) for a fixed TTL.
// Entries are stored and returned as copies so no reader sees a partial set.
type RetrievalCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

func NewRetrievalCache(ttl time.Duration, now func() time.Time) *RetrievalCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if now == nil {
		now = time.Now
	}
	return &RetrievalCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]cacheEntry),
	}
}

// CacheKey serializes the query and options deterministically.
func CacheKey(query string, opts SearchOptions) string {
	raw, _ := json.Marshal(opts)
	return query + ":" + string(raw)
}

func (c *RetrievalCache) Get(key string) ([]SearchResult, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().Sub(entry.createdAt) >= c.ttl {
		return nil, false
	}
	return cloneResults(entry.results), true
}

// Set stores results, including an empty set, and sweeps expired entries.
func (c *RetrievalCache) Set(key string, results []SearchResult) {
	entry := cacheEntry{results: cloneResults(results), createdAt: c.now()}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry
	c.sweepLocked()
}

// Sweep drops expired entries and reports how many were removed.
func (c *RetrievalCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked()
}

func (c *RetrievalCache) sweepLocked() int {
	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if now.Sub(entry.createdAt) >= c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *RetrievalCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

func (c *RetrievalCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func cloneResults(in []SearchResult) []SearchResult {
	out := make([]SearchResult, len(in))
	copy(out, in)
	return out
}
