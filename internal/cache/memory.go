package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// memoryEntry wraps an Entry with its LRU bookkeeping.
type memoryEntry struct {
	key     string
	entry   *Entry
	element *list.Element
}

// MemoryCache is an in-process LRU cache with TTL expiry. Eviction is
// access-count aware: among the least recently used entries, the one with
// the fewest hits goes first.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	lru     *list.List // front = most recently used
	config  *Config

	hits   int64
	misses int64
}

// NewMemoryCache creates a new in-memory cache.
func NewMemoryCache(cfg *Config) *MemoryCache {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &MemoryCache{
		entries: make(map[string]*memoryEntry),
		lru:     list.New(),
		config:  cfg,
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (*Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	me, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false, nil
	}

	if c.config.TTL > 0 && time.Since(me.entry.CreatedAt) > c.config.TTL {
		c.removeLocked(me)
		c.misses++
		return nil, false, nil
	}

	me.entry.AccessCount++
	c.lru.MoveToFront(me.element)
	c.hits++
	return me.entry, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, output map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if me, ok := c.entries[key]; ok {
		me.entry.Output = output
		me.entry.CreatedAt = time.Now().UTC()
		c.lru.MoveToFront(me.element)
		return nil
	}

	me := &memoryEntry{
		key: key,
		entry: &Entry{
			Output:    output,
			CreatedAt: time.Now().UTC(),
		},
	}
	me.element = c.lru.PushFront(me)
	c.entries[key] = me

	if c.config.MaxEntries > 0 {
		for len(c.entries) > c.config.MaxEntries {
			c.evictLocked()
		}
	}
	return nil
}

// evictLocked drops one entry. It scans a small window from the LRU end and
// picks the entry with the lowest access count, so a frequently reused
// result survives a burst of one-off keys.
func (c *MemoryCache) evictLocked() {
	const window = 5

	victim := c.lru.Back()
	if victim == nil {
		return
	}
	best := victim.Value.(*memoryEntry)
	scanned := 1
	for el := victim.Prev(); el != nil && scanned < window; el = el.Prev() {
		me := el.Value.(*memoryEntry)
		if me.entry.AccessCount < best.entry.AccessCount {
			best = me
		}
		scanned++
	}
	c.removeLocked(best)
}

func (c *MemoryCache) removeLocked(me *memoryEntry) {
	c.lru.Remove(me.element)
	delete(c.entries, me.key)
}

func (c *MemoryCache) Stats(ctx context.Context) (map[string]interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]interface{}{
		"adapter": "memory",
		"entries": len(c.entries),
		"hits":    c.hits,
		"misses":  c.misses,
	}, nil
}

func (c *MemoryCache) Close() error { return nil }

var _ Cache = (*MemoryCache)(nil)
