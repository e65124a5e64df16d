// Package cache holds read-through query results keyed by string, with
// explicit key and prefix invalidation. Each invalidation bumps a version
// so callers can tell whether a value they computed is already stale.
package cache

import (
	"strings"
	"sync"

	"github.com/golang/groupcache/lru"
)

type Stats struct {
	Hits    uint64
	Misses  uint64
	Version uint64
	Entries int
}

type QueryCache struct {
	mu      sync.Mutex
	lru     *lru.Cache
	keys    map[string]struct{}
	version uint64
	hits    uint64
	misses  uint64

	// OnLookup, when set, is called after every Get with the hit result.
	OnLookup func(hit bool)
}

func New(maxEntries int) *QueryCache {
	c := &QueryCache{
		lru:  lru.New(maxEntries),
		keys: make(map[string]struct{}),
	}
	c.lru.OnEvicted = func(key lru.Key, _ interface{}) {
		delete(c.keys, key.(string))
	}
	return c
}

func (c *QueryCache) Get(key string) (any, bool) {
	c.mu.Lock()
	v, ok := c.lru.Get(key)
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	hook := c.OnLookup
	c.mu.Unlock()

	if hook != nil {
		hook(ok)
	}
	return v, ok
}

// Version returns the current invalidation version.
func (c *QueryCache) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Set stores value under key unless an invalidation happened after version
// was read, in which case the value is dropped and false is returned.
func (c *QueryCache) Set(key string, value any, version uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if version != c.version {
		return false
	}
	c.lru.Add(key, value)
	c.keys[key] = struct{}{}
	return true
}

func (c *QueryCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
	delete(c.keys, key)
	c.version++
}

// InvalidatePrefix drops every key equal to prefix or starting with prefix+"/".
func (c *QueryCache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.keys {
		if key == prefix || strings.HasPrefix(key, prefix+"/") {
			c.lru.Remove(key)
			delete(c.keys, key)
		}
	}
	c.version++
}

func (c *QueryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Clear()
	c.keys = make(map[string]struct{})
	c.version++
}

func (c *QueryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Version: c.version, Entries: c.lru.Len()}
}

// Key joins parts with "/" so prefix invalidation lines up with segments.
func Key(parts ...string) string {
	return strings.Join(parts, "/")
}
