package cache

import (
	"testing"
	"time"
)

func TestTTLExpiry(t *testing.T) {
	c := NewTTL[string](5*time.Minute, time.Hour)
	defer c.Stop()

	now := time.Now()
	c.SetAt("k", "v", now)

	if got, ok := c.GetAt("k", now.Add(4*time.Minute)); !ok || got != "v" {
		t.Fatalf("GetAt(4m) = %q, %v; want v, true", got, ok)
	}

	// The read above refreshed the idle timer, so expiry counts from 4m.
	if _, ok := c.GetAt("k", now.Add(8*time.Minute)); !ok {
		t.Fatal("entry expired despite recent access")
	}
	if _, ok := c.GetAt("k", now.Add(20*time.Minute)); ok {
		t.Fatal("entry survived past TTL")
	}
}

func TestTTLSweep(t *testing.T) {
	c := NewTTL[int](5*time.Minute, time.Hour)
	defer c.Stop()

	now := time.Now()
	c.SetAt("old", 1, now)
	c.SetAt("fresh", 2, now.Add(4*time.Minute))

	evicted := c.SweepAt(now.Add(6 * time.Minute))
	if evicted != 1 {
		t.Errorf("SweepAt evicted %d, want 1", evicted)
	}
	if _, ok := c.GetAt("fresh", now.Add(6*time.Minute)); !ok {
		t.Error("fresh entry swept")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestTTLReplaceByKey(t *testing.T) {
	c := NewTTL[[]int](0, time.Hour)
	defer c.Stop()

	c.Set("k", []int{1})
	c.Set("k", []int{2, 3})

	got, ok := c.Get("k")
	if !ok || len(got) != 2 {
		t.Errorf("Get() = %v, %v; want [2 3], true", got, ok)
	}
}

func TestLRUEviction(t *testing.T) {
	c := NewLRU[int](2)
	c.Set("a", 1)
	c.Set("b", 2)

	// Touch a so b becomes the eviction candidate.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a missing before eviction")
	}

	c.Set("c", 3)
	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should have survived")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("c should be present")
	}
}

func TestLRUUpdateExisting(t *testing.T) {
	c := NewLRU[string](2)
	c.Set("a", "one")
	c.Set("a", "two")

	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
	if got, _ := c.Get("a"); got != "two" {
		t.Errorf("Get(a) = %q, want two", got)
	}
}

func TestKeyLocksTryLock(t *testing.T) {
	locks := NewKeyLocks()

	locks.Lock("conv-1")
	if locks.TryLock("conv-1") {
		t.Error("TryLock succeeded on a held key")
	}
	locks.Unlock("conv-1")

	if !locks.TryLock("conv-1") {
		t.Error("TryLock failed on a free key")
	}
	locks.Unlock("conv-1")
}
