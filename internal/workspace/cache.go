package workspace

import (
	"sync"
	"time"
)

// CacheEntry represents one cached analysis snapshot.
type CacheEntry struct {
	Data      interface{}
	Timestamp time.Time
	TTL       time.Duration
}

// AnalysisCache caches per-module analysis snapshots with a TTL. Entries are
// keyed by module id; the watcher invalidates keys when module files change.
type AnalysisCache struct {
	mu              sync.RWMutex
	entries         map[string]*CacheEntry
	defaultTTL      time.Duration
	maxEntries      int
	hits            int64
	misses          int64
	evictions       int64
	invalidations   int64
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewAnalysisCache creates a new analysis cache and starts its expiry
// cleanup goroutine. Call Stop when the cache is no longer needed.
func NewAnalysisCache(defaultTTL time.Duration, maxEntries int) *AnalysisCache {
	if defaultTTL <= 0 {
		defaultTTL = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 64
	}

	cache := &AnalysisCache{
		entries:         make(map[string]*CacheEntry),
		defaultTTL:      defaultTTL,
		maxEntries:      maxEntries,
		cleanupInterval: 30 * time.Second,
		stopCleanup:     make(chan struct{}),
	}

	go cache.cleanupRoutine()

	return cache
}

// Get retrieves a cached snapshot if present and not expired.
func (c *AnalysisCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		c.misses++
		return nil, false
	}

	if time.Since(entry.Timestamp) > entry.TTL {
		c.misses++
		return nil, false
	}

	c.hits++
	return entry.Data, true
}

// Set caches a snapshot under the given key. A zero ttl uses the default.
func (c *AnalysisCache) Set(key string, data interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}

	if ttl == 0 {
		ttl = c.defaultTTL
	}

	c.entries[key] = &CacheEntry{
		Data:      data,
		Timestamp: time.Now(),
		TTL:       ttl,
	}
}

// Invalidate removes a single key, typically in response to a file change.
func (c *AnalysisCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		delete(c.entries, key)
		c.invalidations++
	}
}

// Clear removes all entries.
func (c *AnalysisCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*CacheEntry)
}

// CacheStats reports cache effectiveness counters.
type CacheStats struct {
	Entries       int   `json:"entries"`
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Evictions     int64 `json:"evictions"`
	Invalidations int64 `json:"invalidations"`
}

// Stats returns a snapshot of the cache counters.
func (c *AnalysisCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return CacheStats{
		Entries:       len(c.entries),
		Hits:          c.hits,
		Misses:        c.misses,
		Evictions:     c.evictions,
		Invalidations: c.invalidations,
	}
}

// Stop terminates the cleanup goroutine. Safe to call more than once.
func (c *AnalysisCache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCleanup)
	})
}

// evictOldest removes the entry with the oldest timestamp. Caller must hold
// the write lock.
func (c *AnalysisCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.entries {
		if oldestKey == "" || entry.Timestamp.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.Timestamp
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.evictions++
	}
}

func (c *AnalysisCache) cleanupRoutine() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *AnalysisCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.entries {
		if now.Sub(entry.Timestamp) > entry.TTL {
			delete(c.entries, key)
			c.evictions++
		}
	}
}
