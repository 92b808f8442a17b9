package workspace

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheGetSet(t *testing.T) {
	cache := NewAnalysisCache(time.Minute, 8)
	defer cache.Stop()

	_, ok := cache.Get("auth")
	assert.False(t, ok)

	cache.Set("auth", "snapshot", 0)
	data, ok := cache.Get("auth")
	assert.True(t, ok)
	assert.Equal(t, "snapshot", data)

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
}

func TestCacheExpiry(t *testing.T) {
	cache := NewAnalysisCache(time.Minute, 8)
	defer cache.Stop()

	cache.Set("auth", "snapshot", 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	_, ok := cache.Get("auth")
	assert.False(t, ok, "expired entry must not be served")
}

func TestCacheInvalidate(t *testing.T) {
	cache := NewAnalysisCache(time.Minute, 8)
	defer cache.Stop()

	cache.Set("auth", "snapshot", 0)
	cache.Invalidate("auth")
	_, ok := cache.Get("auth")
	assert.False(t, ok)
	assert.Equal(t, int64(1), cache.Stats().Invalidations)

	// Invalidating an absent key is a no-op, not a counted invalidation.
	cache.Invalidate("missing")
	assert.Equal(t, int64(1), cache.Stats().Invalidations)
}

func TestCacheEviction(t *testing.T) {
	cache := NewAnalysisCache(time.Minute, 3)
	defer cache.Stop()

	for i := 0; i < 3; i++ {
		cache.Set(fmt.Sprintf("module-%d", i), i, 0)
		time.Sleep(time.Millisecond)
	}
	cache.Set("module-3", 3, 0)

	stats := cache.Stats()
	assert.Equal(t, 3, stats.Entries)
	assert.Equal(t, int64(1), stats.Evictions)

	// The oldest entry was the one evicted.
	_, ok := cache.Get("module-0")
	assert.False(t, ok)
	_, ok = cache.Get("module-3")
	assert.True(t, ok)
}

func TestCacheClear(t *testing.T) {
	cache := NewAnalysisCache(time.Minute, 8)
	defer cache.Stop()

	cache.Set("a", 1, 0)
	cache.Set("b", 2, 0)
	cache.Clear()
	assert.Equal(t, 0, cache.Stats().Entries)
}

func TestCacheStopIdempotent(t *testing.T) {
	cache := NewAnalysisCache(time.Minute, 8)
	cache.Stop()
	cache.Stop()
}
