package queryparse

import (
	"container/list"
	"sync"

	"github.com/3leaps/subwatch/pkg/query"
)

// cacheEntry is the value stored per cache slot: a successfully parsed
// node, or a parse error, whichever Parse produced for that input string.
type cacheEntry struct {
	key  string
	node query.Node
	err  error
}

// Cache is a bounded, least-recently-used cache of parsed queries, keyed
// by the exact input string. Subscription text is re-parsed against every
// incoming submission, so caching the parse result (not just success, but
// the InvalidQuery failure too) avoids redoing the same parse thousands of
// times. No third-party LRU is part of the example pack's dependency set,
// so this is a small hand-rolled container/list + map implementation
// rather than a hand-rolled dependency substitute for a richer cache.
type Cache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List
}

// NewCache builds a Cache holding at most capacity parsed entries.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Parse returns the cached parse result for queryStr, computing and
// caching it on a miss.
func (c *Cache) Parse(queryStr string) (query.Node, error) {
	c.mu.Lock()
	if el, ok := c.items[queryStr]; ok {
		c.order.MoveToFront(el)
		entry := el.Value.(*cacheEntry)
		c.mu.Unlock()
		return entry.node, entry.err
	}
	c.mu.Unlock()

	node, err := Parse(queryStr)

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[queryStr]; ok {
		c.order.MoveToFront(el)
		return node, err
	}
	el := c.order.PushFront(&cacheEntry{key: queryStr, node: node, err: err})
	c.items[queryStr] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}
	return node, err
}

// Len reports the number of entries currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
