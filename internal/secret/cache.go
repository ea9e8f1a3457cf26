package secret

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CacheConfig configures the TTL+LRU caching layer.
type CacheConfig struct {
	TTL      time.Duration
	Capacity int
}

// DefaultCacheConfig returns the spec's documented defaults (§4.7: TTL 60s,
// LRU-by-last-access capacity 256).
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 60 * time.Second, Capacity: 256}
}

type cacheEntry struct {
	value   Value
	expires time.Time
}

type waiter struct {
	done  chan struct{}
	value Value
	err   error
}

// CachingProvider wraps a Provider with TTL expiry, LRU-by-last-access
// eviction, and single-flight coalescing of concurrent identical lookups.
type CachingProvider struct {
	inner Provider
	ttl   time.Duration

	mu       sync.Mutex
	lru      *lru.Cache[string, cacheEntry]
	inflight map[string]*waiter
}

// NewCachingProvider wraps inner with the given cache configuration.
func NewCachingProvider(inner Provider, cfg CacheConfig) *CachingProvider {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = 256
	}
	c, _ := lru.New[string, cacheEntry](capacity)
	return &CachingProvider{inner: inner, ttl: cfg.TTL, lru: c, inflight: map[string]*waiter{}}
}

func (c *CachingProvider) Get(ctx context.Context, ref Ref) (Value, error) {
	key := ref.Key()

	c.mu.Lock()
	if entry, ok := c.lru.Get(key); ok && time.Now().Before(entry.expires) {
		c.mu.Unlock()
		return entry.value, nil
	}
	if w, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		<-w.done
		return w.value, w.err
	}
	w := &waiter{done: make(chan struct{})}
	c.inflight[key] = w
	c.mu.Unlock()

	v, err := c.inner.Get(ctx, ref)

	c.mu.Lock()
	if err == nil {
		c.lru.Add(key, cacheEntry{value: v, expires: time.Now().Add(c.ttl)})
	}
	delete(c.inflight, key)
	w.value, w.err = v, err
	c.mu.Unlock()
	close(w.done)

	return v, err
}
