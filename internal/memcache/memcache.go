// Package memcache implements an in-memory cache for byte values with expiry.
package memcache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type item struct {
	value     []byte
	expiresAt time.Time
}

func (i item) isExpired(now time.Time) bool {
	return !i.expiresAt.IsZero() && !now.Before(i.expiresAt)
}

// Cache is an in-memory cache. It is safe for concurrent use.
type Cache struct {
	mu    sync.Mutex
	items map[string]item
	now   func() time.Time
}

// New creates a new cache and returns it.
func New() *Cache {
	c := &Cache{
		items: make(map[string]item),
		now:   time.Now,
	}
	return c
}

// Get returns the value of an item, which exists and is not expired.
// It also reports whether the item was found.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.items[key]
	if !ok || i.isExpired(c.now()) {
		return nil, false
	}
	return i.value, true
}

// Set stores an item in the cache and overwrites an existing item with the same key.
// An item with timeout = 0 never expires.
func (c *Cache) Set(key string, value []byte, timeout time.Duration) {
	var at time.Time
	if timeout > 0 {
		at = c.now().Add(timeout)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = item{value: value, expiresAt: at}
}

// Delete deletes an item.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Len returns the number of items, including expired items not yet removed.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// CleanUp removes all expired items and returns how many were removed.
func (c *Cache) CleanUp() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	var n int
	for k, i := range c.items {
		if i.isExpired(now) {
			delete(c.items, k)
			n++
		}
	}
	return n
}

// StartCleanUp removes expired items in the background at every interval until ctx is canceled.
func (c *Cache) StartCleanUp(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.CleanUp(); n > 0 {
					slog.Debug("cache clean-up completed", "removed", n)
				}
			}
		}
	}()
}
