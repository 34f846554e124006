package index

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache defaults.
const (
	DefaultCacheSize = 256
	DefaultCacheTTL  = 10 * time.Minute
)

// Cache stores parsed project pages keyed by index and project name.
//
// Implementations must be safe for concurrent use. Callers clone what
// they get back before mutating it, so implementations may share values.
type Cache interface {
	// Get returns the cached project. A miss is (nil, false, nil).
	Get(ctx context.Context, key string) (*Project, bool, error)
	// Put stores a project.
	Put(ctx context.Context, key string, p *Project) error
}

// LRUCache is a size-bounded cache whose entries expire after a TTL.
type LRUCache struct {
	lru *expirable.LRU[string, *Project]
}

var _ Cache = (*LRUCache)(nil)

// NewLRUCache creates an LRU cache. Non-positive arguments select the
// defaults.
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &LRUCache{lru: expirable.NewLRU[string, *Project](size, nil, ttl)}
}

// Get returns a cached project page.
func (c *LRUCache) Get(_ context.Context, key string) (*Project, bool, error) {
	p, ok := c.lru.Get(key)
	return p, ok, nil
}

// Put stores a project page.
func (c *LRUCache) Put(_ context.Context, key string, p *Project) error {
	c.lru.Add(key, p)
	return nil
}

// Purge drops every entry.
func (c *LRUCache) Purge() {
	c.lru.Purge()
}

// Len returns the number of live entries.
func (c *LRUCache) Len() int {
	return c.lru.Len()
}
