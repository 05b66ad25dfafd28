package cache

import (
	"context"
	"sync"
	"time"

	"detective_game/internal/metrics"
)

// Collections cached by the game service.
const (
	Players  = "players"
	Bots     = "bots"
	Sessions = "sessions"
	Matches  = "matches"
)

type entry struct {
	data     any
	loadedAt time.Time
	version  int64
}

// Cache keeps short-lived snapshots of whole collections. An entry is only
// served while it is younger than the TTL and was loaded under the current
// state version.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

// SetClock replaces the clock used for entry age.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *Cache) get(collection string, version int64) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[collection]
	if !ok || e.version != version || c.now().Sub(e.loadedAt) >= c.ttl {
		return nil, false
	}
	return e.data, true
}

func (c *Cache) put(collection string, version int64, data any) {
	c.mu.Lock()
	c.entries[collection] = entry{data: data, loadedAt: c.now(), version: version}
	c.mu.Unlock()
}

// Invalidate drops one collection.
func (c *Cache) Invalidate(collection string) {
	c.mu.Lock()
	delete(c.entries, collection)
	c.mu.Unlock()
}

// InvalidateAll drops everything, used when the state version moves.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Load returns the cached collection or calls load and caches its result.
// Errors are not cached.
func Load[T any](ctx context.Context, c *Cache, collection string, version int64, load func(context.Context) (T, error)) (T, error) {
	if c != nil && c.ttl > 0 {
		if v, ok := c.get(collection, version); ok {
			if data, ok := v.(T); ok {
				metrics.CacheLookups.WithLabelValues(collection, "hit").Inc()
				return data, nil
			}
		}
		metrics.CacheLookups.WithLabelValues(collection, "miss").Inc()
	}
	data, err := load(ctx)
	if err != nil {
		return data, err
	}
	if c != nil && c.ttl > 0 {
		c.put(collection, version, data)
	}
	return data, nil
}
