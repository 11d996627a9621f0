package cache

import (
	"sync"
	"testing"
)

type recorder struct {
	mu   sync.Mutex
	keys []string
}

func (r *recorder) record(key string, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

func TestCacheEvictsOldestOnOverflow(t *testing.T) {
	c := New[string, int](2)
	removed := &recorder{}
	c.OnRemoved(removed.record)

	c.Put("A", 1)
	c.Put("B", 2)
	c.Put("C", 3)

	if _, ok := c.Get("A"); ok {
		t.Fatalf("A should have been evicted")
	}
	if v, ok := c.Get("B"); !ok || v != 2 {
		t.Fatalf("B missing: %v %v", v, ok)
	}
	if v, ok := c.Get("C"); !ok || v != 3 {
		t.Fatalf("C missing: %v %v", v, ok)
	}
	if got := removed.get(); len(got) != 1 || got[0] != "A" {
		t.Fatalf("unexpected removals: %v", got)
	}
}

func TestCacheGetRefreshesRecency(t *testing.T) {
	c := New[string, int](2)
	removed := &recorder{}
	c.OnRemoved(removed.record)

	c.Put("A", 1)
	c.Put("B", 2)
	c.Get("A")
	c.Put("C", 3)

	if got := removed.get(); len(got) != 1 || got[0] != "B" {
		t.Fatalf("unexpected removals: %v", got)
	}
	if c.Len() != 2 {
		t.Fatalf("unexpected len: %d", c.Len())
	}
}

func TestCacheOneRemovalPerOverflowInsert(t *testing.T) {
	c := New[string, int](3)
	removed := &recorder{}
	c.OnRemoved(removed.record)

	keys := []string{"a", "b", "c", "d", "e", "f", "g"}
	for i, k := range keys {
		c.Put(k, i)
		want := 0
		if i >= 3 {
			want = i - 2
		}
		if got := len(removed.get()); got != want {
			t.Fatalf("after %d inserts: %d removals, want %d", i+1, got, want)
		}
	}
	if got := removed.get(); got[0] != "a" || got[3] != "d" {
		t.Fatalf("unexpected eviction order: %v", got)
	}
}

func TestCacheUpdateDoesNotEvict(t *testing.T) {
	c := New[string, int](2)
	updated := &recorder{}
	removed := &recorder{}
	c.OnUpdated(updated.record)
	c.OnRemoved(removed.record)

	c.Put("A", 1)
	c.Put("B", 2)
	c.Put("A", 10)
	c.Put("C", 3)

	if v, _ := c.Get("A"); v != 10 {
		t.Fatalf("A not updated: %d", v)
	}
	if got := removed.get(); len(got) != 1 || got[0] != "B" {
		t.Fatalf("unexpected removals: %v", got)
	}
	if got := updated.get(); len(got) != 4 {
		t.Fatalf("unexpected updates: %v", got)
	}
}

func TestCacheRemoveListener(t *testing.T) {
	c := New[string, int](1)
	removed := &recorder{}
	h := c.OnRemoved(removed.record)

	c.Put("A", 1)
	c.Put("B", 2)
	c.RemoveListener(h)
	c.Put("C", 3)

	if got := removed.get(); len(got) != 1 || got[0] != "A" {
		t.Fatalf("unexpected removals: %v", got)
	}
}

func TestCacheLoadOrStore(t *testing.T) {
	c := New[string, int](2)
	updated := &recorder{}
	c.OnUpdated(updated.record)

	v, loaded := c.LoadOrStore("A", 1)
	if loaded || v != 1 {
		t.Fatalf("unexpected first store: %v %v", v, loaded)
	}
	v, loaded = c.LoadOrStore("A", 2)
	if !loaded || v != 1 {
		t.Fatalf("unexpected second load: %v %v", v, loaded)
	}
	if got := updated.get(); len(got) != 1 {
		t.Fatalf("load must not notify: %v", got)
	}
}

func TestCacheEntriesAndRemove(t *testing.T) {
	c := New[string, int](3)
	removed := &recorder{}
	c.OnRemoved(removed.record)

	c.Put("A", 1)
	c.Put("B", 2)
	c.Put("C", 3)

	entries := c.Entries()
	if len(entries) != 3 || entries[0].Key != "C" || entries[2].Key != "A" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if !c.Remove("B") || c.Remove("B") {
		t.Fatalf("remove should succeed once")
	}
	if got := removed.get(); len(got) != 1 || got[0] != "B" {
		t.Fatalf("unexpected removals: %v", got)
	}
}

func TestCacheListenerMayUseCache(t *testing.T) {
	c := New[string, int](1)
	done := make(chan int, 1)
	c.OnRemoved(func(key string, _ int) {
		done <- c.Len()
	})
	c.Put("A", 1)
	c.Put("B", 2)
	if n := <-done; n != 1 {
		t.Fatalf("unexpected len inside listener: %d", n)
	}
}

func TestCacheConcurrentUse(t *testing.T) {
	const workers, perWorker = 8, 2000
	c := New[int, int](8)
	var mu sync.Mutex
	removed := map[int]int{}
	c.OnRemoved(func(k, _ int) {
		mu.Lock()
		removed[k]++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				k := base + i
				if i%2 == 0 {
					c.Put(k, i)
				} else if _, loaded := c.LoadOrStore(k, i); loaded {
					t.Errorf("key %d loaded before it was stored", k)
				}
				c.Get(base + i/2)
			}
		}(w * perWorker)
	}
	wg.Wait()

	if c.Len() != c.Capacity() {
		t.Fatalf("unexpected len %d", c.Len())
	}
	mu.Lock()
	defer mu.Unlock()
	total := 0
	for k, n := range removed {
		if n != 1 {
			t.Fatalf("key %d removed %d times", k, n)
		}
		total++
	}
	if total+c.Len() != workers*perWorker {
		t.Fatalf("%d removals and %d live entries for %d inserts", total, c.Len(), workers*perWorker)
	}
	for _, e := range c.Entries() {
		if removed[e.Key] != 0 {
			t.Fatalf("live key %d was reported removed", e.Key)
		}
	}
}
