package openai

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKey(t *testing.T) {
	key := CacheKey("hello")

	assert.True(t, strings.HasPrefix(key, "emb:v1:"))
	assert.Len(t, key, len("emb:v1:")+64)
	assert.Equal(t, key, CacheKey("hello"))
	assert.NotEqual(t, key, CacheKey("Hello"))
}

func TestMemoryCache_GetSet(t *testing.T) {
	cache := NewMemoryCache()

	_, ok := cache.Get("missing")
	assert.False(t, ok)

	cache.Set("k1", []float32{0.1, 0.2})
	emb, ok := cache.Get("k1")
	require.True(t, ok)
	assert.Equal(t, []float32{0.1, 0.2}, emb)
}

func TestMemoryCache_Stats(t *testing.T) {
	cache := NewMemoryCache()

	cache.Get("a")
	cache.Set("a", []float32{1})
	cache.Get("a")
	cache.Get("b")

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	cache := NewMemoryCache()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := CacheKey(strings.Repeat("x", n%5))
			cache.Set(key, []float32{float32(n)})
			cache.Get(key)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, cache.Stats().Size)
}
