// Package cache provides a generic in-memory TTL cache.
//
// The chat server uses it to remember topic authorization answers, so a
// client re-joining the same conversation channel does not cost a
// participant lookup every time.
//
// What does TTL mean here?
// Every entry carries an expiry time, set when it is written. Once that
// time has passed the entry is unreadable and Get reports a miss, even if
// the entry is still in the map. The map itself is pruned by a periodic
// sweep, so a key that is never read again does not live forever.
//
// Concurrency:
// A sync.RWMutex guards the map. Readers run in parallel; a writer blocks
// everyone until it is done.
package cache

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache is a generic in-memory cache whose entries expire after ttl.
//
//	c := cache.New[string, bool](30*time.Second, time.Minute, nil)
//	c.Set("conv:user", true)
//	ok, found := c.Get("conv:user")
type TTLCache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
	ttl     time.Duration
	clk     clock.Clock

	stopCleanup chan struct{}
	closeOnce   sync.Once
}

// New creates a cache and starts its sweep goroutine. A nil clk means the
// wall clock. Call Close when the cache is no longer used.
//
// Why is cleanupInterval separate from ttl?
// Get already refuses expired entries, so correctness never depends on
// the sweep. The sweep only returns memory. Keep cleanupInterval at or
// above ttl; sweeping more often than entries can expire is wasted work.
func New[K comparable, V any](ttl, cleanupInterval time.Duration, clk clock.Clock) *TTLCache[K, V] {
	if clk == nil {
		clk = clock.New()
	}
	c := &TTLCache[K, V]{
		entries:     make(map[K]entry[V]),
		ttl:         ttl,
		clk:         clk,
		stopCleanup: make(chan struct{}),
	}

	ticker := clk.Ticker(cleanupInterval)
	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.evictExpired()
			case <-c.stopCleanup:
				return
			}
		}
	}()

	return c
}

// Get returns the value for key if present and not expired.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.clk.Now().After(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry[V]{
		value:     value,
		expiresAt: c.clk.Now().Add(c.ttl),
	}
}

func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// DeleteFunc removes every key matching predicate.
func (c *TTLCache[K, V]) DeleteFunc(predicate func(key K) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if predicate(key) {
			delete(c.entries, key)
		}
	}
}

func (c *TTLCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]entry[V])
}

// Len counts entries, expired ones included until the next sweep.
func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Close stops the sweep goroutine. Safe to call more than once.
func (c *TTLCache[K, V]) Close() {
	c.closeOnce.Do(func() { close(c.stopCleanup) })
}

func (c *TTLCache[K, V]) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}
