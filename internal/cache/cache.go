package cache

import (
	"sync"
	"time"
)

// Cache is a concurrency-safe key/value store with per-entry expiry.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	Delete(key K)
	Len() int
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

type ttlCache[K comparable, V any] struct {
	mu      sync.RWMutex
	items   map[K]entry[V]
	now     func() time.Time
	maxSize int
}

// Option tunes a TTL cache.
type Option func(*options)

type options struct {
	now     func() time.Time
	maxSize int
}

// WithNow overrides the time source used for expiry.
func WithNow(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithMaxSize bounds the cache; inserting into a full cache evicts expired
// entries first and then an arbitrary one.
func WithMaxSize(n int) Option {
	return func(o *options) { o.maxSize = n }
}

func NewTTLCache[K comparable, V any](opts ...Option) Cache[K, V] {
	o := options{now: time.Now, maxSize: 10000}
	for _, opt := range opts {
		opt(&o)
	}
	return &ttlCache[K, V]{
		items:   make(map[K]entry[V]),
		now:     o.now,
		maxSize: o.maxSize,
	}
}

func (c *ttlCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.items[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return zero, false
	}
	return e.value, true
}

// Set stores value; a non-positive ttl never expires.
func (c *ttlCache[K, V]) Set(key K, value V, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[key]; !exists && c.maxSize > 0 && len(c.items) >= c.maxSize {
		c.evictLocked()
	}
	c.items[key] = entry[V]{value: value, expiresAt: expiresAt}
}

func (c *ttlCache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

func (c *ttlCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *ttlCache[K, V]) evictLocked() {
	now := c.now()
	for k, e := range c.items {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			delete(c.items, k)
		}
	}
	if len(c.items) < c.maxSize {
		return
	}
	for k := range c.items {
		delete(c.items, k)
		return
	}
}
