package cache

import (
	"context"
	"sync"
	"time"
)

// Item represents a cached item with expiration
type Item struct {
	Value      interface{}
	Expiration int64
	stored     int64
}

// Expired reports whether the item is past its deadline at now
func (item Item) Expired(now int64) bool {
	return item.Expiration != 0 && now > item.Expiration
}

// Options configures a Cache
type Options struct {
	// TTL is the default lifetime; zero keeps items until evicted
	TTL time.Duration
	// PurgeWindow is how often expired items are swept; zero disables sweeping
	PurgeWindow time.Duration
	// MaxItems bounds the cache; zero is unbounded
	MaxItems int
}

// Cache is a thread-safe in-memory cache with expiration
type Cache struct {
	items     map[string]Item
	mu        sync.RWMutex
	opts      Options
	onEvicted func(string, interface{})
	now       func() time.Time
}

// New creates a cache. When PurgeWindow is set, expired items are swept
// until ctx is cancelled.
func New(ctx context.Context, opts Options) *Cache {
	c := &Cache{
		items: make(map[string]Item),
		opts:  opts,
		now:   time.Now,
	}

	if opts.PurgeWindow > 0 {
		go c.sweep(ctx)
	}

	return c
}

// Set adds an item with the default TTL
func (c *Cache) Set(key string, value interface{}) {
	c.SetWithExpiration(key, value, c.opts.TTL)
}

// SetWithExpiration adds an item that expires after d
func (c *Cache) SetWithExpiration(key string, value interface{}, d time.Duration) {
	now := c.now()
	var exp int64
	if d > 0 {
		exp = now.Add(d).UnixNano()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && c.opts.MaxItems > 0 && len(c.items) >= c.opts.MaxItems {
		c.evictOldest()
	}

	c.items[key] = Item{Value: value, Expiration: exp, stored: now.UnixNano()}
}

// Update atomically replaces the value under key with fn(old, found).
// The item gets a fresh TTL.
func (c *Cache) Update(key string, fn func(old interface{}, found bool) interface{}) interface{} {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if found && item.Expired(now.UnixNano()) {
		found = false
	}
	var old interface{}
	if found {
		old = item.Value
	} else if c.opts.MaxItems > 0 && len(c.items) >= c.opts.MaxItems {
		c.evictOldest()
	}

	next := fn(old, found)
	var exp int64
	if c.opts.TTL > 0 {
		exp = now.Add(c.opts.TTL).UnixNano()
	}
	c.items[key] = Item{Value: next, Expiration: exp, stored: now.UnixNano()}
	return next
}

// Get retrieves an unexpired item
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, found := c.items[key]
	if !found || item.Expired(c.now().UnixNano()) {
		return nil, false
	}
	return item.Value, true
}

// Delete removes an item from the cache
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item, found := c.items[key]; found && c.onEvicted != nil {
		c.onEvicted(key, item.Value)
	}
	delete(c.items, key)
}

// Count returns the number of items, expired ones included
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// SetOnEvicted sets the callback run when an item is evicted or expires
func (c *Cache) SetOnEvicted(f func(string, interface{})) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvicted = f
}

func (c *Cache) sweep(ctx context.Context) {
	ticker := time.NewTicker(c.opts.PurgeWindow)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.deleteExpired()
		}
	}
}

func (c *Cache) deleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UnixNano()
	for k, v := range c.items {
		if v.Expired(now) {
			if c.onEvicted != nil {
				c.onEvicted(k, v.Value)
			}
			delete(c.items, k)
		}
	}
}

// evictOldest drops the least recently stored item. Caller holds mu.
func (c *Cache) evictOldest() {
	var oldestKey string
	var oldest int64
	first := true
	for k, v := range c.items {
		if first || v.stored < oldest {
			oldestKey, oldest, first = k, v.stored, false
		}
	}
	if first {
		return
	}
	if c.onEvicted != nil {
		c.onEvicted(oldestKey, c.items[oldestKey].Value)
	}
	delete(c.items, oldestKey)
}
