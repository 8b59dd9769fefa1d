package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/wytcherly/foreman/pkg/core"
)

type perceived struct {
	entity   core.PerceivedEntity
	lastSeen time.Time
	visible  bool
}

// PerceptionCache keeps the latest perception snapshot from the host plus
// every entity seen since the last reset. Reads return copies.
type PerceptionCache struct {
	mu      sync.RWMutex
	entries map[string]*perceived
	order   []string
	now     func() time.Time
}

// NewPerceptionCache creates an empty cache.
func NewPerceptionCache() *PerceptionCache {
	return &PerceptionCache{
		entries: make(map[string]*perceived),
		now:     time.Now,
	}
}

func entityKey(e core.PerceivedEntity) string {
	if e.ID != "" {
		return e.ID
	}
	return e.Name
}

// Update replaces the currently-visible set. Entities absent from visible stay
// known but are marked not visible.
func (c *PerceptionCache) Update(visible []core.PerceivedEntity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, p := range c.entries {
		p.visible = false
	}
	for _, e := range visible {
		key := entityKey(e)
		if key == "" {
			continue
		}
		e.Tags = append([]string(nil), e.Tags...)
		p, ok := c.entries[key]
		if !ok {
			p = &perceived{}
			c.entries[key] = p
			c.order = append(c.order, key)
		}
		p.entity = e
		p.lastSeen = now
		p.visible = true
	}
}

// CurrentlyPerceived returns the entities in the latest snapshot.
func (c *PerceptionCache) CurrentlyPerceived() []core.PerceivedEntity {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]core.PerceivedEntity, 0, len(c.order))
	for _, key := range c.order {
		p := c.entries[key]
		if p.visible {
			out = append(out, c.exportLocked(p))
		}
	}
	return out
}

// KnownPerceived returns every entity seen since the last reset, including
// those no longer visible, with the time since each was last seen.
func (c *PerceptionCache) KnownPerceived() []core.PerceivedEntity {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]core.PerceivedEntity, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, c.exportLocked(c.entries[key]))
	}
	return out
}

// Lookup returns a known entity by ID or name.
func (c *PerceptionCache) Lookup(key string) (core.PerceivedEntity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.entries[key]
	if !ok {
		return core.PerceivedEntity{}, false
	}
	return c.exportLocked(p), true
}

// FindByTag searches the visible entities first and falls back to every
// known entity.
func (c *PerceptionCache) FindByTag(tag string) (core.PerceivedEntity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, visibleOnly := range []bool{true, false} {
		for _, key := range c.order {
			p := c.entries[key]
			if visibleOnly && !p.visible {
				continue
			}
			if p.entity.HasTag(tag) || strings.EqualFold(p.entity.Name, tag) {
				return c.exportLocked(p), true
			}
		}
	}
	return core.PerceivedEntity{}, false
}

// Remove forgets an entity, e.g. when the host destroys it.
func (c *PerceptionCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of known entities.
func (c *PerceptionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Reset clears all entries.
func (c *PerceptionCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*perceived)
	c.order = nil
}

func (c *PerceptionCache) exportLocked(p *perceived) core.PerceivedEntity {
	e := p.entity
	e.Tags = append([]string(nil), p.entity.Tags...)
	e.Visible = p.visible
	e.SinceLastSeen = c.now().Sub(p.lastSeen)
	return e
}
