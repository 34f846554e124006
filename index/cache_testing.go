package index

import (
	"context"
	"errors"
	"sync"
)

// Compile-time interface compliance checks
var _ Cache = NoopCache{}
var _ Cache = (*MemoryCache)(nil)
var _ Cache = (*FailingCache)(nil)

// NoopCache discards all writes and always misses.
type NoopCache struct{}

// Get always returns a cache miss.
func (NoopCache) Get(ctx context.Context, key string) (*Project, bool, error) {
	return nil, false, nil
}

// Put discards the project and returns success.
func (NoopCache) Put(ctx context.Context, key string, p *Project) error {
	return nil
}

// MemoryCache is a thread-safe in-memory cache that counts its traffic,
// for tests that assert how often an index was consulted.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]*Project
	hits  int
	puts  int
}

// NewMemoryCache creates a new in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]*Project)}
}

// Get retrieves a cached project.
func (c *MemoryCache) Get(ctx context.Context, key string) (*Project, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	c.hits++
	return p.Clone(), true, nil
}

// Put stores a project.
func (c *MemoryCache) Put(ctx context.Context, key string, p *Project) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = p.Clone()
	c.puts++
	return nil
}

// Clear removes all entries from the cache.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*Project)
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Hits returns how many Get calls were served from the cache.
func (c *MemoryCache) Hits() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits
}

// FailingCache always returns errors.
// Useful for testing that cache failures never fail a lookup.
type FailingCache struct {
	GetErr error
	PutErr error
}

// NewFailingCache creates a cache that fails with the given errors.
func NewFailingCache(getErr, putErr error) *FailingCache {
	if getErr == nil {
		getErr = errors.New("cache get failed")
	}
	if putErr == nil {
		putErr = errors.New("cache put failed")
	}
	return &FailingCache{GetErr: getErr, PutErr: putErr}
}

// Get always returns an error.
func (c *FailingCache) Get(ctx context.Context, key string) (*Project, bool, error) {
	return nil, false, c.GetErr
}

// Put always returns an error.
func (c *FailingCache) Put(ctx context.Context, key string, p *Project) error {
	return c.PutErr
}
