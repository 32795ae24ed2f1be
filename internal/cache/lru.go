package cache

import (
	"container/list"
	"sync"
	"time"
)

// EvictReason tells an eviction callback why an entry left the cache.
type EvictReason int

const (
	Expired EvictReason = iota
	Capacity
	Deleted
	Purged
)

func (r EvictReason) String() string {
	switch r {
	case Expired:
		return "expired"
	case Capacity:
		return "capacity"
	case Deleted:
		return "deleted"
	case Purged:
		return "purged"
	}
	return "unknown"
}

// Option configures an LRUCache.
type Option[T any] func(*LRUCache[T])

// WithOnEvict registers fn to run for every entry removed from the cache.
// fn is called without the cache lock held, so it may use the cache.
func WithOnEvict[T any](fn func(key string, value T, reason EvictReason)) Option[T] {
	return func(c *LRUCache[T]) { c.onEvict = fn }
}

// WithSlidingTTL makes every successful Get push the expiry forward.
func WithSlidingTTL[T any]() Option[T] {
	return func(c *LRUCache[T]) { c.sliding = true }
}

// LRU cache with TTL and size-based eviction
type LRUCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	sliding bool
	onEvict func(key string, value T, reason EvictReason)
	now     func() time.Time
	items   map[string]*list.Element
	lru     *list.List
}

type cacheItem[T any] struct {
	key       string
	data      T
	expiresAt time.Time
}

type eviction[T any] struct {
	key    string
	data   T
	reason EvictReason
}

// NewLRUCache creates a new LRU cache with TTL
func NewLRUCache[T any](maxSize int, ttl time.Duration, opts ...Option[T]) *LRUCache[T] {
	c := &LRUCache[T]{
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get retrieves a value from the cache
func (c *LRUCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	var zero T
	elem, exists := c.items[key]
	if !exists {
		c.mu.Unlock()
		return zero, false
	}

	item := elem.Value.(*cacheItem[T])
	now := c.now()
	if now.After(item.expiresAt) {
		ev := c.removeElement(elem, Expired)
		c.mu.Unlock()
		c.notify(ev)
		return zero, false
	}

	if c.sliding {
		item.expiresAt = now.Add(c.ttl)
	}
	c.lru.MoveToFront(elem)
	c.mu.Unlock()
	return item.data, true
}

// Set stores a value in the cache. Replacing an existing key does not
// trigger the eviction callback.
func (c *LRUCache[T]) Set(key string, data T) {
	c.mu.Lock()
	item := &cacheItem[T]{
		key:       key,
		data:      data,
		expiresAt: c.now().Add(c.ttl),
	}

	if elem, exists := c.items[key]; exists {
		elem.Value = item
		c.lru.MoveToFront(elem)
		c.mu.Unlock()
		return
	}

	elem := c.lru.PushFront(item)
	c.items[key] = elem

	var evicted []eviction[T]
	for c.maxSize > 0 && c.lru.Len() > c.maxSize {
		evicted = append(evicted, c.removeElement(c.lru.Back(), Capacity))
	}
	c.mu.Unlock()
	c.notify(evicted...)
}

// Delete removes a key from the cache
func (c *LRUCache[T]) Delete(key string) {
	c.mu.Lock()
	elem, exists := c.items[key]
	if !exists {
		c.mu.Unlock()
		return
	}
	ev := c.removeElement(elem, Deleted)
	c.mu.Unlock()
	c.notify(ev)
}

// Purge removes every entry.
func (c *LRUCache[T]) Purge() int {
	c.mu.Lock()
	var evicted []eviction[T]
	for elem := c.lru.Front(); elem != nil; elem = c.lru.Front() {
		evicted = append(evicted, c.removeElement(elem, Purged))
	}
	c.mu.Unlock()
	c.notify(evicted...)
	return len(evicted)
}

func (c *LRUCache[T]) removeElement(elem *list.Element, reason EvictReason) eviction[T] {
	item := elem.Value.(*cacheItem[T])
	delete(c.items, item.key)
	c.lru.Remove(elem)
	return eviction[T]{key: item.key, data: item.data, reason: reason}
}

func (c *LRUCache[T]) notify(evicted ...eviction[T]) {
	if c.onEvict == nil {
		return
	}
	for _, ev := range evicted {
		c.onEvict(ev.key, ev.data, ev.reason)
	}
}

// CleanExpired removes all expired entries and returns count of removed items
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	now := c.now()
	var toRemove []*list.Element
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		if now.After(elem.Value.(*cacheItem[T]).expiresAt) {
			toRemove = append(toRemove, elem)
		}
	}

	evicted := make([]eviction[T], 0, len(toRemove))
	for _, elem := range toRemove {
		evicted = append(evicted, c.removeElement(elem, Expired))
	}
	c.mu.Unlock()
	c.notify(evicted...)
	return len(evicted)
}

// Size returns the current number of items in the cache
func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
