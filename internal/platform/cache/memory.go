package cache

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	value      string
	expiration time.Time
}

// MemoryCache implements an in-process cache with TTL support.
// Expired entries are dropped lazily on read and swept by a janitor.
type MemoryCache struct {
	mu      sync.RWMutex
	items   map[string]memoryItem
	maxSize int
	stopCh  chan struct{}
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 1000
	}

	c := &MemoryCache{
		items:   make(map[string]memoryItem),
		maxSize: maxSize,
		stopCh:  make(chan struct{}),
	}

	go c.janitor()

	return c
}

// Get retrieves a value from cache
func (c *MemoryCache) Get(_ context.Context, key string) (string, error) {
	c.mu.RLock()
	item, exists := c.items[key]
	c.mu.RUnlock()

	if !exists {
		return "", ErrNotFound
	}

	if time.Now().After(item.expiration) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		return "", ErrNotFound
	}

	return item.value, nil
}

// Set stores a value in cache with TTL
func (c *MemoryCache) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxSize {
		c.evictExpiredOrOldest()
	}

	c.items[key] = memoryItem{
		value:      value,
		expiration: time.Now().Add(ttl),
	}
	return nil
}

// Delete removes a key from cache
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
	return nil
}

// Close stops the janitor
func (c *MemoryCache) Close() error {
	close(c.stopCh)
	return nil
}

// evictExpiredOrOldest frees one slot (caller must hold lock). Prefers an
// already-expired entry; otherwise drops the entry closest to expiration.
func (c *MemoryCache) evictExpiredOrOldest() {
	now := time.Now()
	var oldestKey string
	var oldestExp time.Time

	for key, item := range c.items {
		if now.After(item.expiration) {
			delete(c.items, key)
			return
		}
		if oldestKey == "" || item.expiration.Before(oldestExp) {
			oldestKey = key
			oldestExp = item.expiration
		}
	}

	if oldestKey != "" {
		delete(c.items, oldestKey)
	}
}

func (c *MemoryCache) janitor() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopCh:
			return
		}
	}
}

func (c *MemoryCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, item := range c.items {
		if now.After(item.expiration) {
			delete(c.items, key)
		}
	}
}

// Len returns the current number of entries
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
