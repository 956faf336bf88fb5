// Package cache provides a bounded TTL cache for names fetched from remote
// services. Entries expire, the capacity is fixed, and related updates can
// invalidate explicitly — nothing here grows without bound.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Clock interface for testing time-dependent behavior.
type Clock interface {
	Now() time.Time
}

// realClock implements Clock using the system time.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

const (
	defaultCapacity = 512
	defaultTTL      = 10 * time.Minute
)

type entry struct {
	key       string
	value     string
	expiresAt time.Time
}

// Cache is a capacity-bounded string cache with per-entry TTL.
// Eviction is least-recently-used; a Get refreshes recency but never TTL.
type Cache struct {
	capacity int
	ttl      time.Duration
	clock    Clock

	mu    sync.Mutex
	order *list.List // front = most recently used
	items map[string]*list.Element
}

// New creates a cache. Non-positive capacity or TTL fall back to defaults.
func New(capacity int, ttl time.Duration, clock Clock) *Cache {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if clock == nil {
		clock = realClock{}
	}
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		clock:    clock,
		order:    list.New(),
		items:    make(map[string]*list.Element, capacity),
	}
}

func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return "", false
	}
	e := elem.Value.(*entry)
	if c.clock.Now().After(e.expiresAt) {
		c.order.Remove(elem)
		delete(c.items, key)
		return "", false
	}
	c.order.MoveToFront(elem)
	return e.value, true
}

func (c *Cache) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.clock.Now().Add(c.ttl)
	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry)
		e.value = value
		e.expiresAt = expiresAt
		c.order.MoveToFront(elem)
		return
	}

	for len(c.items) >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*entry).key)
	}

	c.items[key] = c.order.PushFront(&entry{key: key, value: value, expiresAt: expiresAt})
}

// Invalidate drops a single key, e.g. after the remote entity was updated.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.Remove(elem)
		delete(c.items, key)
	}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
