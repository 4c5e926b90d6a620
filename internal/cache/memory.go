package cache

import (
	"context"
	"sync"
	"time"
)

const sweepInterval = 5 * time.Minute

type entry struct {
	body      []byte
	expiresAt time.Time
}

// MemoryCache holds completion responses in process memory with per-entry
// TTL. It backs CACHE_MODE=memory, where replicas do not need to share hits;
// multi-replica deployments use the Redis-backed ExactCache instead.
//
// Safe for concurrent use. Expired entries are dropped lazily on read and
// swept periodically so an idle key cannot pin its response body forever.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry

	done chan struct{}
}

// NewMemoryCache starts the sweep goroutine, which runs until ctx is
// canceled or Close is called.
func NewMemoryCache(ctx context.Context) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]entry),
		done:    make(chan struct{}),
	}
	go c.sweep(ctx)
	return c
}

// Get returns the cached response body for key, or false on a miss or an
// expired entry.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return e.body, true
}

// Set stores body under key for ttl. A non-positive ttl falls back to one
// hour, matching the gateway's default cache TTL.
func (c *MemoryCache) Set(_ context.Context, key string, body []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Hour
	}
	c.mu.Lock()
	c.entries[key] = entry{body: body, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// Delete removes key. Deleting an absent key is a no-op.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Len counts held entries, including expired ones not yet swept.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the sweep goroutine.
func (c *MemoryCache) Close() {
	close(c.done)
}

func (c *MemoryCache) sweep(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.evictExpired()
		case <-ctx.Done():
			return
		case <-c.done:
			return
		}
	}
}

func (c *MemoryCache) evictExpired() {
	now := time.Now()
	c.mu.Lock()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}
