package domain

import (
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const (
	// DefaultCacheTTL is how long a fetched page stays reusable.
	DefaultCacheTTL = 30 * time.Second
	// DefaultCacheCapacity is the number of pages kept per controller.
	DefaultCacheCapacity = 20
)

// CacheEntry is one fetched page.
type CacheEntry[R any] struct {
	Rows       []R
	Total      int
	InsertedAt time.Time
}

// PageCache holds recently fetched pages keyed by FetchKey.
//
// Entries expire lazily on lookup once older than the TTL. When full, the
// oldest inserted entry is evicted; lookups do not refresh recency. A
// negative TTL disables the cache entirely.
type PageCache[R any] struct {
	mu         sync.Mutex
	ttl        time.Duration
	clock      func() time.Time
	entries    *simplelru.LRU[FetchKey, CacheEntry[R]]
	generation uint64
}

// NewPageCache builds a cache. Zero ttl or capacity use the defaults.
func NewPageCache[R any](ttl time.Duration, capacity int, clock func() time.Time) *PageCache[R] {
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	if clock == nil {
		clock = time.Now
	}
	// NewLRU only fails for non-positive sizes.
	entries, _ := simplelru.NewLRU[FetchKey, CacheEntry[R]](capacity, nil)
	return &PageCache[R]{
		ttl:     ttl,
		clock:   clock,
		entries: entries,
	}
}

// Enabled reports whether the cache stores anything.
func (c *PageCache[R]) Enabled() bool {
	return c != nil && c.ttl > 0
}

// Get returns the entry for key when present and younger than the TTL.
func (c *PageCache[R]) Get(key FetchKey) (CacheEntry[R], bool) {
	if !c.Enabled() {
		return CacheEntry[R]{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries.Peek(key)
	if !ok {
		return CacheEntry[R]{}, false
	}
	age := c.clock().Sub(entry.InsertedAt)
	if age < 0 || age >= c.ttl {
		c.entries.Remove(key)
		return CacheEntry[R]{}, false
	}
	entry.Rows = slices.Clone(entry.Rows)
	return entry, true
}

// Put stores entry under key as the newest insertion.
func (c *PageCache[R]) Put(key FetchKey, entry CacheEntry[R]) {
	if !c.Enabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(key, entry)
}

// PutIfGeneration stores entry only when no Clear happened since generation
// was read. It reports whether the entry was stored.
func (c *PageCache[R]) PutIfGeneration(generation uint64, key FetchKey, entry CacheEntry[R]) bool {
	if !c.Enabled() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return false
	}
	c.putLocked(key, entry)
	return true
}

func (c *PageCache[R]) putLocked(key FetchKey, entry CacheEntry[R]) {
	if entry.InsertedAt.IsZero() {
		entry.InsertedAt = c.clock()
	}
	entry.Rows = slices.Clone(entry.Rows)
	// Re-adding an existing key must move it to the newest position.
	c.entries.Remove(key)
	c.entries.Add(key, entry)
}

// Clear drops every entry and starts a new generation.
func (c *PageCache[R]) Clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
	c.generation++
}

// Generation returns the number of Clear calls so far.
func (c *PageCache[R]) Generation() uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Len returns the number of stored entries, expired ones included.
func (c *PageCache[R]) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}
