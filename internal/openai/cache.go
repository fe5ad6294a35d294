package openai

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// EmbeddingCache stores embeddings keyed by a content hash of the input text.
// Implementations must be safe for concurrent readers; a lost write race on a
// cache miss is tolerated (duplicate generation is wasteful, not incorrect).
type EmbeddingCache interface {
	Get(key string) ([]float32, bool)
	Set(key string, embedding []float32)
}

// CacheKey derives the cache key for a text.
func CacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:v1:" + hex.EncodeToString(sum[:])
}

// MemoryCache is an in-process EmbeddingCache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]float32

	hits   int64
	misses int64
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]float32)}
}

func (c *MemoryCache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	emb, ok := c.entries[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return emb, ok
}

func (c *MemoryCache) Set(key string, embedding []float32) {
	c.mu.Lock()
	c.entries[key] = embedding
	c.mu.Unlock()
}

// CacheStats reports cache effectiveness counters.
type CacheStats struct {
	Hits   int64
	Misses int64
	Size   int
}

// Stats returns a snapshot of the cache counters.
func (c *MemoryCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{Hits: c.hits, Misses: c.misses, Size: len(c.entries)}
}
