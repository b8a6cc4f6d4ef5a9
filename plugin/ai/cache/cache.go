// Package cache provides a small TTL-bounded LRU used to memoize
// embedding lookups, so repeated queries skip the embedding round trip.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Cache is the lookup contract the embedding layer consumes.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
}

// LRUCache is a fixed-capacity LRU with per-entry expiry. Safe for
// concurrent use.
type LRUCache struct {
	capacity int
	ttl      time.Duration

	mu    sync.Mutex
	items map[string]*entry
	order *list.List
}

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
	element   *list.Element
}

// NewLRUCache creates a cache holding at most capacity entries, each
// expiring ttl after its last write.
func NewLRUCache(capacity int, ttl time.Duration) *LRUCache {
	if capacity <= 0 {
		capacity = 1000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &LRUCache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*entry),
		order:    list.New(),
	}
}

func (c *LRUCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		c.remove(e)
		return nil, false
	}
	c.order.MoveToFront(e.element)
	return e.value, true
}

func (c *LRUCache) Set(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		e.value = value
		e.expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(e.element)
		return
	}
	for len(c.items) >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.remove(oldest.Value.(*entry))
	}
	e := &entry{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	}
	e.element = c.order.PushFront(e)
	c.items[key] = e
}

// Size returns the number of live entries, counting expired ones not yet
// evicted by a Get.
func (c *LRUCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// remove must be called with the lock held.
func (c *LRUCache) remove(e *entry) {
	c.order.Remove(e.element)
	delete(c.items, e.key)
}
