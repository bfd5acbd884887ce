// Package entitycache holds the authoritative, session-scoped copy of every
// entity the sync engine has seen.
//
// Every write is tagged with the generation that was current when the work
// producing it started. Bumping the generation empties the cache and causes
// any later write carrying an older tag to be dropped, so results that arrive
// after a session reset can never resurface.
package entitycache

import (
	"context"
	"fmt"
	"sync"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"github.com/maypok86/otter/v2"
	"github.com/maypok86/otter/v2/stats"
	"go.uber.org/zap"
)

type Entry[E any] struct {
	Entity     E
	Generation uint64
}

type Cache[E any] struct {
	mu         sync.RWMutex
	generation uint64
	entries    *otter.Cache[string, Entry[E]]
	// order holds ids by first insertion and survives detail upgrades.
	order []string
}

func New[E any]() (*Cache[E], error) {
	entries, err := otter.New(&otter.Options[string, Entry[E]]{
		InitialCapacity: 256,
		StatsRecorder:   stats.NewCounter(),
	})
	if err != nil {
		return nil, fmt.Errorf("entitycache: %w", err)
	}
	return &Cache[E]{entries: entries}, nil
}

func (c *Cache[E]) Get(id string) (E, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries.GetIfPresent(id)
	if !ok {
		var zero E
		return zero, false
	}
	return e.Entity, true
}

// Put stores entity under id if generation is current. Stale writes are
// silently dropped and reported as false.
func (c *Cache[E]) Put(id string, entity E, generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		return false
	}
	if _, found := c.entries.GetIfPresent(id); !found {
		c.order = append(c.order, id)
	}
	c.entries.Set(id, Entry[E]{Entity: entity, Generation: generation})
	return true
}

// PutIf is Put guarded by replace: an existing entry is overwritten only when
// replace(existing) reports true. The check and the write happen under one
// lock, so a concurrent Put cannot land between them.
func (c *Cache[E]) PutIf(id string, entity E, generation uint64, replace func(existing E) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		return false
	}
	existing, found := c.entries.GetIfPresent(id)
	if found && !replace(existing.Entity) {
		return false
	}
	if !found {
		c.order = append(c.order, id)
	}
	c.entries.Set(id, Entry[E]{Entity: entity, Generation: generation})
	return true
}

func (c *Cache[E]) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// BumpGeneration starts a new generation, empties the cache and returns the
// new generation.
func (c *Cache[E]) BumpGeneration(ctx context.Context) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.entries.Stats()
	ctxzap.Extract(ctx).Debug(
		"entity cache reset",
		zap.Uint64("previous_generation", c.generation),
		zap.Uint64("hits", s.Hits),
		zap.Uint64("misses", s.Misses),
		zap.Int("entries", len(c.order)),
	)

	c.generation++
	c.entries.InvalidateAll()
	c.order = nil
	return c.generation
}

// All returns the cached entities in first-seen order.
func (c *Cache[E]) All() []E {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]E, 0, len(c.order))
	for _, id := range c.order {
		if e, ok := c.entries.GetIfPresent(id); ok {
			out = append(out, e.Entity)
		}
	}
	return out
}

// Lookup resolves ids against the cache under one read lock, skipping ids
// that are not cached.
func (c *Cache[E]) Lookup(ids []string) []E {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]E, 0, len(ids))
	for _, id := range ids {
		if e, ok := c.entries.GetIfPresent(id); ok {
			out = append(out, e.Entity)
		}
	}
	return out
}

func (c *Cache[E]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}
