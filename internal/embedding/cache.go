package embedding

import (
	"container/list"
	"sync"
	"time"
)

const (
	// DefaultCacheCapacity bounds the number of cached vectors.
	DefaultCacheCapacity = 10000

	// DefaultCacheTTL gates how long a cached vector stays valid.
	DefaultCacheTTL = time.Hour
)

type cacheEntry struct {
	key        string
	vector     []float32
	insertedAt time.Time
}

// Cache maps content hashes to embeddings with a capacity bound and a TTL
// gate. Eviction removes the least-recently-inserted entry. Safe for
// concurrent readers and writers.
type Cache struct {
	mu       sync.RWMutex
	capacity int
	ttl      time.Duration
	entries  map[string]*list.Element
	order    *list.List // front = oldest insertion

	hits   uint64
	misses uint64

	now func() time.Time
}

// NewCache creates a cache. Non-positive capacity or TTL fall back to the
// defaults.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// Get returns the cached vector for text if present and younger than the
// TTL. Expired entries count as misses but are left for eviction to reap.
func (c *Cache) Get(text string) ([]float32, bool) {
	key := ContentHash(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if c.now().Sub(entry.insertedAt) >= c.ttl {
		c.misses++
		return nil, false
	}
	c.hits++
	return entry.vector, true
}

// Put stores a vector for text, evicting the oldest insertion when the
// cache is at capacity. Re-putting an existing key refreshes its age.
func (c *Cache) Put(text string, vector []float32) {
	key := ContentHash(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.vector = vector
		entry.insertedAt = c.now()
		c.order.MoveToBack(elem)
		return
	}

	for len(c.entries) >= c.capacity {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}

	elem := c.order.PushBack(&cacheEntry{key: key, vector: vector, insertedAt: c.now()})
	c.entries[key] = elem
}

// Stats reports cumulative hit/miss counters and the current size.
func (c *Cache) Stats() (hits, misses uint64, size int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses, len(c.entries)
}
