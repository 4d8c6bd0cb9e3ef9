package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	response  string
	createdAt time.Time
}

type memoryCache struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemory builds the default in-process cache. Expired entries are removed
// lazily on lookup; inserts that push the cache past maxEntries evict the
// entry with the oldest creation time before returning.
func NewMemory(ttl time.Duration, maxEntries int) ResponseCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return &memoryCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    make(map[string]memoryEntry),
	}
}

func (c *memoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return "", false, nil
	}
	if c.now().Sub(entry.createdAt) >= c.ttl {
		delete(c.entries, key)
		return "", false, nil
	}
	return entry.response, true, nil
}

func (c *memoryCache) Put(_ context.Context, key, response string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{response: response, createdAt: c.now()}
	if len(c.entries) > c.maxEntries {
		c.evictOldestLocked()
	}
	return nil
}

// evictOldestLocked drops the single entry with the smallest creation time.
// Not true LRU: reads never refresh timestamps.
func (c *memoryCache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for key, entry := range c.entries {
		if first || entry.createdAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.createdAt
			first = false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *memoryCache) Size(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(len(c.entries)), nil
}

func (c *memoryCache) Close(context.Context) error {
	return nil
}
