package translator

import (
	"fmt"
	"testing"
)

func TestLRUCache_HitReturnsStoredText(t *testing.T) {
	c := newLRUCache(4)
	c.Put("k1", "v1")

	got, ok := c.Get("k1")
	if !ok || got != "v1" {
		t.Fatalf("expected hit with v1, got %q/%v", got, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatal("unexpected hit for missing key")
	}
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := newLRUCache(3)
	c.Put("a", "1")
	c.Put("b", "2")
	c.Put("c", "3")

	// Touch a so b becomes the least recently used.
	c.Get("a")
	c.Put("d", "4")

	if _, ok := c.Get("b"); ok {
		t.Error("expected b evicted (least recently used)")
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("expected %s retained", key)
		}
	}
}

func TestLRUCache_UpdateMovesToFront(t *testing.T) {
	c := newLRUCache(2)
	c.Put("a", "1")
	c.Put("b", "2")
	c.Put("a", "updated")
	c.Put("c", "3") // should evict b, not a

	if got, ok := c.Get("a"); !ok || got != "updated" {
		t.Errorf("expected updated a, got %q/%v", got, ok)
	}
	if _, ok := c.Get("b"); ok {
		t.Error("expected b evicted")
	}
}

func TestLRUCache_BoundedAtCapacity(t *testing.T) {
	c := newLRUCache(10)
	for i := 0; i < 50; i++ {
		c.Put(fmt.Sprintf("k%d", i), "v")
	}
	if c.Len() != 10 {
		t.Errorf("expected capacity 10, got %d", c.Len())
	}
}
