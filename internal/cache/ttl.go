// Package cache provides the in-process caching primitives shared by the
// conversation manager, relevance scorer, and retrieval pipeline.
package cache

import (
	"sync"
	"time"
)

// DefaultSweepInterval is how often the background sweeper evicts expired
// entries when none is configured.
const DefaultSweepInterval = 5 * time.Minute

// TTL is a time-limited key/value cache. Writes replace whole entries by
// key; readers never observe partially updated values. A background sweeper
// evicts idle entries so unused keys do not accumulate.
type TTL[V any] struct {
	mu      sync.Mutex
	entries map[string]ttlEntry[V]
	ttl     time.Duration

	stopOnce sync.Once
	stop     chan struct{}
}

type ttlEntry[V any] struct {
	value    V
	lastUsed int64 // unix millis
}

// NewTTL creates a TTL cache and starts its sweeper. A non-positive ttl
// disables expiry. Call Stop when the cache is no longer needed.
func NewTTL[V any](ttl, sweepInterval time.Duration) *TTL[V] {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	c := &TTL[V]{
		entries: make(map[string]ttlEntry[V]),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	if ttl > 0 {
		go c.sweepLoop(sweepInterval)
	}
	return c
}

// Get returns the cached value and refreshes its idle timer.
func (c *TTL[V]) Get(key string) (V, bool) {
	return c.GetAt(key, time.Now())
}

// GetAt is Get with an explicit clock, for tests.
func (c *TTL[V]) GetAt(key string, now time.Time) (V, bool) {
	var zero V
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	nowUnix := now.UnixMilli()
	if c.ttl > 0 && nowUnix-entry.lastUsed >= c.ttl.Milliseconds() {
		delete(c.entries, key)
		return zero, false
	}
	entry.lastUsed = nowUnix
	c.entries[key] = entry
	return entry.value, true
}

// Set stores a value, replacing any existing entry for the key.
func (c *TTL[V]) Set(key string, value V) {
	c.SetAt(key, value, time.Now())
}

// SetAt is Set with an explicit clock, for tests.
func (c *TTL[V]) SetAt(key string, value V, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = ttlEntry[V]{value: value, lastUsed: now.UnixMilli()}
}

// Delete removes a key.
func (c *TTL[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes all entries.
func (c *TTL[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]ttlEntry[V])
}

// Len returns the number of live entries.
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Keys returns all current keys.
func (c *TTL[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

// SweepAt evicts entries idle past the TTL as of now. The background loop
// calls this; tests can call it directly.
func (c *TTL[V]) SweepAt(now time.Time) int {
	if c.ttl <= 0 {
		return 0
	}
	cutoff := now.UnixMilli() - c.ttl.Milliseconds()

	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := 0
	for key, entry := range c.entries {
		if entry.lastUsed < cutoff {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}

// Stop terminates the background sweeper.
func (c *TTL[V]) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *TTL[V]) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.SweepAt(now)
		}
	}
}
