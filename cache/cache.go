// Package cache implements a bounded key/value store that evicts the least
// recently updated or read entry and notifies listeners.
package cache

import (
	"slices"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Listener observes a cache event. It runs on the goroutine that caused the
// event, after the cache lock has been released.
type Listener[K comparable, V any] func(key K, value V)

// Handle identifies a registered listener.
type Handle uint64

type event[K comparable, V any] struct {
	listeners []Listener[K, V]
	key       K
	value     V
}

type Cache[K comparable, V any] struct {
	capacity int

	mu      sync.Mutex
	lru     *simplelru.LRU[K, V]
	evicted []event[K, V] // collected by the lru callback while mu is held
	next    Handle
	updated map[Handle]Listener[K, V]
	removed map[Handle]Listener[K, V]
}

// New returns a cache holding at most capacity entries. A capacity below one is treated as one.
func New[K comparable, V any](capacity int) *Cache[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	c := &Cache[K, V]{
		capacity: capacity,
		updated:  make(map[Handle]Listener[K, V]),
		removed:  make(map[Handle]Listener[K, V]),
	}
	// only fails for a non-positive size
	c.lru, _ = simplelru.NewLRU[K, V](capacity, c.onEvict)
	return c
}

func (c *Cache[K, V]) onEvict(key K, value V) {
	c.evicted = append(c.evicted, event[K, V]{listeners: snapshot(c.removed), key: key, value: value})
}

// takeEvicted returns the removals collected since the last call. Callers hold c.mu.
func (c *Cache[K, V]) takeEvicted() []event[K, V] {
	events := c.evicted
	c.evicted = nil
	return events
}

func (c *Cache[K, V]) Capacity() int { return c.capacity }

// OnUpdated registers a listener for inserts and updates.
func (c *Cache[K, V]) OnUpdated(l Listener[K, V]) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	c.updated[c.next] = l
	return c.next
}

// OnRemoved registers a listener for evictions and explicit removals.
func (c *Cache[K, V]) OnRemoved(l Listener[K, V]) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	c.removed[c.next] = l
	return c.next
}

// RemoveListener unregisters a listener. Unknown handles are ignored.
func (c *Cache[K, V]) RemoveListener(h Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.updated, h)
	delete(c.removed, h)
}

func snapshot[K comparable, V any](m map[Handle]Listener[K, V]) []Listener[K, V] {
	if len(m) == 0 {
		return nil
	}
	out := make([]Listener[K, V], 0, len(m))
	for _, l := range m {
		out = append(out, l)
	}
	return out
}

func fire[K comparable, V any](events []event[K, V]) {
	for _, ev := range events {
		for _, l := range ev.listeners {
			l(ev.key, ev.value)
		}
	}
}

// Put inserts or replaces the value for key and makes it the most recent
// entry. If the cache overflows, the least recent entry is evicted.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	events := c.putLocked(key, value)
	c.mu.Unlock()
	fire(events)
}

func (c *Cache[K, V]) putLocked(key K, value V) []event[K, V] {
	c.lru.Add(key, value)
	events := []event[K, V]{{listeners: snapshot(c.updated), key: key, value: value}}
	return append(events, c.takeEvicted()...)
}

// Get returns the value for key and marks it most recent.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(key)
}

// Peek returns the value for key without touching recency.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Peek(key)
}

// LoadOrStore returns the existing value for key if present. Otherwise it
// stores value, exactly like Put. loaded reports whether the value existed.
func (c *Cache[K, V]) LoadOrStore(key K, value V) (actual V, loaded bool) {
	c.mu.Lock()
	if v, ok := c.lru.Get(key); ok {
		c.mu.Unlock()
		return v, true
	}
	events := c.putLocked(key, value)
	c.mu.Unlock()
	fire(events)
	return value, false
}

// Remove deletes key and notifies the removal listeners.
func (c *Cache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	ok := c.lru.Remove(key)
	events := c.takeEvicted()
	c.mu.Unlock()
	fire(events)
	return ok
}

func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Entry is one key/value pair returned by Entries.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// Entries lists the current contents from most to least recent.
func (c *Cache[K, V]) Entries() []Entry[K, V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := c.lru.Keys() // oldest first
	out := make([]Entry[K, V], 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		v, _ := c.lru.Peek(keys[i])
		out = append(out, Entry[K, V]{Key: keys[i], Value: v})
	}
	return out
}

// Values lists the current values from most to least recent.
func (c *Cache[K, V]) Values() []V {
	c.mu.Lock()
	defer c.mu.Unlock()
	vals := c.lru.Values() // oldest first
	slices.Reverse(vals)
	return vals
}
