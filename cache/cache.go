// Package cache keeps recently fetched threads in memory so repeated
// requests for the same thread skip the browser.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/use-agent/threadgrab/models"
)

// entry holds a cached thread with its creation timestamp.
type entry struct {
	thread    *models.ThreadResult
	createdAt time.Time
}

// Cache is a simple in-memory cache for thread results.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time

	stop chan struct{}
	once sync.Once
}

// New creates a new Cache with the given maximum number of entries.
// A background goroutine runs every 5 minutes to evict entries older than
// ttl (1 hour when ttl <= 0). Call Close to stop it.
func New(maxEntries int, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
		stop:       make(chan struct{}),
	}

	go c.cleanupLoop(5 * time.Minute)
	return c
}

// Key generates a cache key from the thread URL and the author-only flag.
func Key(url string, authorOnly bool) string {
	h := sha256.New()
	h.Write([]byte(url))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.FormatBool(authorOnly)))
	return hex.EncodeToString(h.Sum(nil))
}

// Get retrieves a cached thread if it exists and is younger than maxAge.
// maxAge is in milliseconds. If maxAge <= 0, no cache lookup is performed.
// Returns the thread and whether it was a cache hit.
func (c *Cache) Get(key string, maxAgeMs int) (*models.ThreadResult, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	maxAge := time.Duration(maxAgeMs) * time.Millisecond
	if c.now().Sub(e.createdAt) > maxAge {
		return nil, false
	}

	return e.thread, true
}

// Set stores a thread in the cache. Partial results are never cached. If
// the cache is at capacity, a random entry is evicted to make room.
func (c *Cache) Set(key string, t *models.ThreadResult) {
	if t == nil || t.Partial || c.maxEntries <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Evict one random entry if at capacity (map iteration is random in Go).
	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = &entry{
		thread:    t,
		createdAt: c.now(),
	}
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Close stops the cleanup goroutine.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Cache) evictExpired() {
	cutoff := c.now().Add(-c.ttl)
	c.mu.Lock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
	c.mu.Unlock()
}

// cleanupLoop evicts expired entries every interval until Close.
func (c *Cache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}
