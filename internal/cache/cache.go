// Package cache provides the time-bounded result cache for license
// verification, update checks, and endpoint failure throttling. Keys are a
// closed set so a typo cannot silently create a dead cache slot.
package cache

import (
	"sync"
	"time"
)

// Key identifies a cache slot
type Key string

const (
	// KeyLicenseCheck caches the most recent verification record
	KeyLicenseCheck Key = "license_check"
	// KeyUpdateCheck caches the most recent update-check outcome
	KeyUpdateCheck Key = "update_check"
)

// failurePrefix namespaces the negative cache for failed endpoints
const failurePrefix = "api_failure:"

// FailureKey returns the negative-cache key for an endpoint
func FailureKey(endpoint string) Key {
	return Key(failurePrefix + endpoint)
}

// Entry represents a cached value with its expiry
type Entry struct {
	Value     interface{}
	CachedAt  time.Time
	ExpiresAt time.Time
}

// Cache is a TTL cache guarded by a mutex, with a background sweep for
// expired entries. A present, unexpired entry always short-circuits the
// remote call for that key.
type Cache struct {
	entries   map[Key]Entry
	mutex     sync.RWMutex
	hitCount  int64
	missCount int64
	stopChan  chan struct{}
	stopOnce  sync.Once
}

// New creates a cache and starts its cleanup goroutine
func New() *Cache {
	c := &Cache{
		entries:  make(map[Key]Entry),
		stopChan: make(chan struct{}),
	}

	go c.cleanup()

	return c
}

// Get retrieves an unexpired value from the cache
func (c *Cache) Get(key Key) (interface{}, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, exists := c.entries[key]
	if !exists || time.Now().After(entry.ExpiresAt) {
		c.missCount++
		return nil, false
	}

	c.hitCount++
	return entry.Value, true
}

// Put stores a value with the given TTL. A non-positive TTL is a no-op.
func (c *Cache) Put(key Key, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := time.Now()
	c.entries[key] = Entry{
		Value:     value,
		CachedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}

// Invalidate removes the given keys from the cache
func (c *Cache) Invalidate(keys ...Key) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for _, key := range keys {
		delete(c.entries, key)
	}
}

// InvalidateAll clears every entry, including failure marks
func (c *Cache) InvalidateAll() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries = make(map[Key]Entry)
}

// Stats returns hit/miss counters and the current entry count
func (c *Cache) Stats() map[string]interface{} {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	totalRequests := c.hitCount + c.missCount
	hitRatio := float64(0)
	if totalRequests > 0 {
		hitRatio = float64(c.hitCount) / float64(totalRequests)
	}

	return map[string]interface{}{
		"entries":    len(c.entries),
		"hit_count":  c.hitCount,
		"miss_count": c.missCount,
		"hit_ratio":  hitRatio,
	}
}

// Stop gracefully stops the cache cleanup goroutine
func (c *Cache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
}

func (c *Cache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mutex.Lock()
			now := time.Now()
			for key, entry := range c.entries {
				if now.After(entry.ExpiresAt) {
					delete(c.entries, key)
				}
			}
			c.mutex.Unlock()
		case <-c.stopChan:
			return
		}
	}
}

// GetAs retrieves a cached value asserted to type T. A present entry of the
// wrong type counts as a miss.
func GetAs[T any](c *Cache, key Key) (T, bool) {
	var zero T
	value, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := value.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
