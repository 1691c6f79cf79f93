// Package querycache keeps decoded responses of read operations keyed by the
// canonical request hash. Entries expire after a TTL and the cache is bounded
// by entry count with least-recently-used eviction.
package querycache

import (
	"sort"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"

	"github.com/TheColorRed/hasura-query-builder/internal/gqlrequest"
)

const (
	DefaultTTL        = 5 * time.Minute
	DefaultMaxEntries = 1024
)

// Config sizes a Cache. Zero values use the defaults.
type Config struct {
	TTL        time.Duration `mapstructure:"ttl" yaml:"ttl"`
	MaxEntries int           `mapstructure:"max_entries" yaml:"max_entries"`
}

type entry struct {
	value     any
	expiresAt time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	mu   sync.Mutex
	ttl  time.Duration
	lru  *lru.Cache
	keys map[string]struct{}
	now  func() time.Time
}

// New creates a cache from cfg.
func New(cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	c := &Cache{
		ttl:  cfg.TTL,
		lru:  lru.New(cfg.MaxEntries),
		keys: make(map[string]struct{}),
		now:  time.Now,
	}
	c.lru.OnEvicted = func(key lru.Key, _ any) {
		delete(c.keys, key.(string))
	}
	return c
}

// Key derives the cache key of a request. Formatting differences in query do
// not change the key.
func Key(query, operationName string, variables map[string]any) (string, error) {
	return gqlrequest.RequestKey(query, operationName, variables)
}

// Get returns the live value stored under key.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

func (c *Cache) getLocked(key string) (any, bool) {
	raw, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	e := raw.(entry)
	if !c.now().Before(e.expiresAt) {
		c.lru.Remove(key)
		return nil, false
	}
	return e.value, true
}

// GetOrDefault returns the value under key or def when it is missing or
// expired.
func (c *Cache) GetOrDefault(key string, def any) any {
	if v, ok := c.Get(key); ok {
		return v
	}
	return def
}

// Set stores value under key with the cache TTL.
func (c *Cache) Set(key string, value any) {
	c.SetTTL(key, value, c.ttl)
}

// SetTTL stores value under key with an explicit ttl.
func (c *Cache) SetTTL(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, entry{value: value, expiresAt: c.now().Add(ttl)})
	c.keys[key] = struct{}{}
}

// Has reports whether a live entry exists under key.
func (c *Cache) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Delete removes key. Missing keys are ignored.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Keys lists live keys in sorted order. Expired entries found along the way
// are dropped.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	candidates := make([]string, 0, len(c.keys))
	for k := range c.keys {
		candidates = append(candidates, k)
	}
	out := candidates[:0]
	for _, k := range candidates {
		if _, ok := c.getLocked(k); ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Clear()
	c.keys = make(map[string]struct{})
}

// Len counts stored entries, including expired ones not yet collected.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
