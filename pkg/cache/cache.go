// Package cache implements the index-addressed prefetch cache.
//
// The cache maps (source name, navigation index) to decoded data. It is not a
// general LRU: retention is "current index only", because navigation is a
// one-dimensional walk. Background prefetch tasks fill it, the foreground
// display step consumes it, and every navigation step prunes it.
package cache

import (
	"sync"

	"datainspect/internal/models"
)

// Entry is one decoded file: the array and its optional geometry.
// Keeping both halves in one value means they are always added and removed together.
type Entry struct {
	Data      *models.Array
	Transform *models.Transform
}

// PrefetchCache is a mutex-guarded store of decoded entries.
// The zero value is not usable; create one with New.
type PrefetchCache struct {
	mu      sync.Mutex
	entries map[models.Key]Entry

	// active is the set of source names entries may be stored for.
	// nil until the first Prune, meaning every name is accepted.
	active map[string]struct{}
}

// New creates an empty cache
func New() *PrefetchCache {
	return &PrefetchCache{
		entries: make(map[models.Key]Entry),
	}
}

// Take removes and returns the entry for key. Ownership moves to the caller,
// so the same buffer is never held by both the cache and the display.
func (c *PrefetchCache) Take(key models.Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	return e, ok
}

// Put stores e under key if the key is absent and its source is active.
// A decode that lost the race to another writer is discarded; the stored
// entry is authoritative. It reports whether e was stored.
func (c *PrefetchCache) Put(key models.Key, e Entry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		if _, ok := c.active[key.Source]; !ok {
			return false
		}
	}
	if _, ok := c.entries[key]; ok {
		return false
	}
	c.entries[key] = e
	return true
}

// Has reports whether an entry is stored for key
func (c *PrefetchCache) Has(key models.Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[key]
	return ok
}

// Prune keeps only entries at index keep whose source is in active, and
// records active so later Puts for other sources are dropped.
func (c *PrefetchCache) Prune(keep int, active []string) {
	set := make(map[string]struct{}, len(active))
	for _, name := range active {
		set[name] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.active = set
	for key := range c.entries {
		if _, ok := set[key.Source]; !ok || key.Index != keep {
			delete(c.entries, key)
		}
	}
}

// DropSource removes every entry of the named source, used when a source is
// reconfigured and its decoded files may no longer match its paths.
func (c *PrefetchCache) DropSource(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if key.Source == name {
			delete(c.entries, key)
		}
	}
}

// Len returns the number of stored entries
func (c *PrefetchCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Keys returns the stored keys ordered by source, then index
func (c *PrefetchCache) Keys() []models.Key {
	c.mu.Lock()
	keys := make([]models.Key, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	c.mu.Unlock()

	models.SortKeys(keys)
	return keys
}

// SizeBytes approximates the memory held by stored arrays
func (c *PrefetchCache) SizeBytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	for _, e := range c.entries {
		total += e.Data.SizeBytes()
	}
	return total
}
