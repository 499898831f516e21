package embedding

import (
	"sync"
	"time"
)

type cacheEntry struct {
	expiry time.Time
	vector []float32
}

// vectorCache keeps embeddings by input text until they expire.
type vectorCache struct {
	entries map[string]cacheEntry
	stopCh  chan struct{}
	ttl     time.Duration
	once    sync.Once
	mu      sync.RWMutex
}

// newVectorCache creates a cache; a negative ttl disables caching.
func newVectorCache(ttl time.Duration) *vectorCache {
	if ttl == 0 {
		ttl = time.Hour
	}

	cache := &vectorCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}
	if ttl > 0 {
		go cache.cleanup(max(ttl/2, time.Second))
	}
	return cache
}

func (c *vectorCache) get(key string) ([]float32, bool) {
	if c.ttl < 0 {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expiry) {
		return nil, false
	}
	return entry.vector, true
}

func (c *vectorCache) set(key string, vector []float32) {
	if c.ttl < 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{vector: vector, expiry: time.Now().Add(c.ttl)}
}

func (c *vectorCache) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, entry := range c.entries {
				if now.After(entry.expiry) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

func (c *vectorCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (c *vectorCache) Close() {
	c.once.Do(func() { close(c.stopCh) })
}
