package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Cache is an in-memory LRU cache with per-entry TTL, safe for concurrent use.
type Cache[V any] struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	order    *list.List // MRU at front, LRU at back
	maxItems int        // 0 = unlimited
	ttl      time.Duration
	now      func() time.Time
}

type entry[V any] struct {
	key string
	val V
	exp time.Time // zero = no expiry
}

// New creates a cache. ttl <= 0 disables expiry, maxItems <= 0 disables the
// size bound.
func New[V any](maxItems int, ttl time.Duration) *Cache[V] {
	if maxItems < 0 {
		maxItems = 0
	}
	return &Cache[V]{
		items:    make(map[string]*list.Element),
		order:    list.New(),
		maxItems: maxItems,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns the value and whether it exists and has not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*entry[V])
	if !e.exp.IsZero() && c.now().After(e.exp) {
		c.removeElement(el)
		return zero, false
	}
	c.order.MoveToFront(el)
	return e.val, true
}

func (c *Cache[V]) Set(key string, v V) {
	if c == nil {
		return
	}
	var exp time.Time
	if c.ttl > 0 {
		exp = c.now().Add(c.ttl)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[V])
		e.val, e.exp = v, exp
		c.order.MoveToFront(el)
		return
	}
	c.items[key] = c.order.PushFront(&entry[V]{key: key, val: v, exp: exp})
	for c.maxItems > 0 && c.order.Len() > c.maxItems {
		c.removeElement(c.order.Back())
	}
}

func (c *Cache[V]) Delete(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

func (c *Cache[V]) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Prune drops expired entries and returns how many were removed.
func (c *Cache[V]) Prune() int {
	if c == nil {
		return 0
	}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if e := el.Value.(*entry[V]); !e.exp.IsZero() && now.After(e.exp) {
			c.removeElement(el)
			removed++
		}
		el = prev
	}
	return removed
}

// removeElement unlinks el; caller must hold c.mu.
func (c *Cache[V]) removeElement(el *list.Element) {
	if el == nil {
		return
	}
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry[V]).key)
}

// ContentKey derives a stable key from a namespace and raw content.
func ContentKey(namespace string, content []byte) string {
	sum := sha256.Sum256(content)
	return namespace + ":" + hex.EncodeToString(sum[:])
}
