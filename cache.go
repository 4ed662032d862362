package ncfs

import (
	"container/list"
	"sync"
)

// lruCache is a thread-safe LRU cache of resolved nodes keyed by path.
//
// Nodes never change while the source is mounted, so entries do not
// expire; they are only evicted when the cache grows beyond maxSize.
//
// This implementation uses a doubly-linked list for O(1) LRU operations
// and a map for O(1) lookups.
type lruCache struct {
	mu        sync.Mutex
	maxSize   int
	items     map[string]*list.Element
	lruList   *list.List
	hits      uint64
	misses    uint64
	evictions uint64
}

// lruEntry represents a single cache entry
type lruEntry struct {
	key  string
	node *Node
}

// newLRUCache creates a new LRU cache with the specified maximum size.
// If maxSize is 0, the cache is disabled and every Get misses.
func newLRUCache(maxSize int) *lruCache {
	return &lruCache{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		lruList: list.New(),
	}
}

// Get retrieves a node from the cache.
func (c *lruCache) Get(key string) (*Node, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.items[key]
	if !exists {
		c.misses++
		return nil, false
	}

	// Move to front (most recently used)
	c.lruList.MoveToFront(elem)
	c.hits++
	return elem.Value.(*lruEntry).node, true
}

// Put adds or replaces a node in the cache.
func (c *lruCache) Put(key string, node *Node) {
	if c.maxSize <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		elem.Value.(*lruEntry).node = node
		c.lruList.MoveToFront(elem)
		return
	}

	elem := c.lruList.PushFront(&lruEntry{key: key, node: node})
	c.items[key] = elem

	if c.lruList.Len() > c.maxSize {
		c.evictOldest()
	}
}

// Clear removes all entries from the cache.
func (c *lruCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.lruList = list.New()
}

// Len returns the current number of entries in the cache.
func (c *lruCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lruList.Len()
}

// Stats returns cache statistics.
func (c *lruCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return CacheStats{
		Size:      c.lruList.Len(),
		MaxSize:   c.maxSize,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		HitRate:   hitRate,
	}
}

// evictOldest removes the least recently used entry (assumes lock is held)
func (c *lruCache) evictOldest() {
	elem := c.lruList.Back()
	if elem == nil {
		return
	}

	c.remove(elem.Value.(*lruEntry).key, elem)
	c.evictions++
}

// remove deletes an entry from the cache (assumes lock is held)
func (c *lruCache) remove(key string, elem *list.Element) {
	c.lruList.Remove(elem)
	delete(c.items, key)
}

// CacheStats contains cache performance statistics
type CacheStats struct {
	Size      int     // Current number of entries
	MaxSize   int     // Maximum number of entries
	Hits      uint64  // Number of cache hits
	Misses    uint64  // Number of cache misses
	Evictions uint64  // Number of evictions
	HitRate   float64 // Hit rate (hits / (hits + misses))
}
