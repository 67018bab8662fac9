package dedup

import (
	"context"
	"sync"
)

// Embedder turns text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingCache memoizes embeddings by key. Concurrent requests for the
// same key share a single Embed call. Failures are not cached.
type EmbeddingCache struct {
	embedder Embedder

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	done chan struct{}
	vec  []float32
	err  error
}

// NewEmbeddingCache returns an empty cache backed by embedder.
func NewEmbeddingCache(embedder Embedder) *EmbeddingCache {
	return &EmbeddingCache{embedder: embedder, entries: make(map[string]*cacheEntry)}
}

// Get returns the embedding for key, computing it from text on a miss.
func (c *EmbeddingCache) Get(ctx context.Context, key, text string) ([]float32, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.mu.Unlock()
		select {
		case <-e.done:
			return e.vec, e.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	e := &cacheEntry{done: make(chan struct{})}
	c.entries[key] = e
	c.mu.Unlock()

	e.vec, e.err = c.embedder.Embed(ctx, text)
	if e.err != nil {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
	}
	close(e.done)
	return e.vec, e.err
}

// Put stores a known embedding, e.g. one loaded from storage.
func (c *EmbeddingCache) Put(key string, vec []float32) {
	e := &cacheEntry{done: make(chan struct{}), vec: vec}
	close(e.done)
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// Len returns the number of cached or in-flight keys.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
