package cache

import (
	"errors"
	"testing"
)

func TestCachePutGet(t *testing.T) {
	c := New[int, string](2, nil)
	if err := c.Put(1, "a"); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(2, "b"); err != nil {
		t.Fatal(err)
	}
	if v, ok := c.Get(1); !ok || v != "a" {
		t.Fatalf("got %q, %v", v, ok)
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []int
	c := New[int, string](2, func(k int, v string) error {
		evicted = append(evicted, k)
		return nil
	})

	c.Put(1, "a")
	c.Put(2, "b")
	c.Get(1) // 1 is now MRU, 2 is LRU
	if err := c.Put(3, "c"); err != nil {
		t.Fatal(err)
	}

	if len(evicted) != 1 || evicted[0] != 2 {
		t.Fatalf("expected eviction of key 2, got %v", evicted)
	}
	if _, ok := c.Get(2); ok {
		t.Fatal("key 2 should have been evicted")
	}
	if _, ok := c.Get(1); !ok {
		t.Fatal("key 1 should still be cached")
	}
}

func TestCachePutExistingKeyUpdatesWithoutEviction(t *testing.T) {
	evictions := 0
	c := New[int, string](1, func(k int, v string) error {
		evictions++
		return nil
	})
	c.Put(1, "a")
	c.Put(1, "b")
	if evictions != 0 {
		t.Fatalf("expected no eviction, got %d", evictions)
	}
	if v, _ := c.Get(1); v != "b" {
		t.Fatalf("got %q", v)
	}
}

func TestCacheEvictionFailureLeavesCacheUnchanged(t *testing.T) {
	failErr := errors.New("flush failed")
	c := New[int, string](1, func(k int, v string) error {
		return failErr
	})
	c.Put(1, "a")
	if err := c.Put(2, "b"); !errors.Is(err, failErr) {
		t.Fatalf("expected flush error, got %v", err)
	}
	if v, ok := c.Get(1); !ok || v != "a" {
		t.Fatal("original entry should survive a failed eviction")
	}
	if _, ok := c.Get(2); ok {
		t.Fatal("key 2 should not have been inserted")
	}
}

func TestCacheRemoveSkipsEvictCallback(t *testing.T) {
	called := false
	c := New[int, string](2, func(k int, v string) error {
		called = true
		return nil
	})
	c.Put(1, "a")
	c.Remove(1)
	if called {
		t.Fatal("Remove must not invoke the evict callback")
	}
	if _, ok := c.Get(1); ok {
		t.Fatal("key 1 should be gone")
	}
}

func TestCacheClearDrainsAllEntries(t *testing.T) {
	var order []int
	c := New[int, string](3, func(k int, v string) error {
		order = append(order, k)
		return nil
	})
	c.Put(1, "a")
	c.Put(2, "b")
	c.Put(3, "c")
	if err := c.Clear(); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, len=%d", c.Len())
	}
	if len(order) != 3 {
		t.Fatalf("expected 3 evictions, got %d", len(order))
	}
}
