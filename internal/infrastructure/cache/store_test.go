package cache

import (
	"testing"
	"time"
)

func TestStoreGetReturnsLiveEntry(t *testing.T) {
	store, err := NewStore[string](8)
	if err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}

	store.Set("k", "v", time.Minute)
	got, ok := store.Get("k")
	if !ok {
		t.Fatalf("expected hit for live entry")
	}
	if got != "v" {
		t.Fatalf("expected value v, got %q", got)
	}
}

func TestStoreZeroTTLMissesImmediately(t *testing.T) {
	store, err := NewStore[string](8)
	if err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}

	store.Set("k", "v", 0)
	if _, ok := store.Get("k"); ok {
		t.Fatalf("expected ttl=0 entry to miss on next get")
	}
}

func TestStoreExpiredEntryIsAbsent(t *testing.T) {
	store, err := NewStore[string](8)
	if err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}
	current := time.Unix(1000, 0)
	store.now = func() time.Time { return current }

	store.Set("k", "v", 30*time.Second)
	current = current.Add(31 * time.Second)

	if _, ok := store.Get("k"); ok {
		t.Fatalf("expected expired entry to miss")
	}
	if store.Len() != 0 {
		t.Fatalf("expected lazy removal on read, len = %d", store.Len())
	}
}

func TestStoreOverwriteRefreshesEntry(t *testing.T) {
	store, err := NewStore[string](8)
	if err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}
	current := time.Unix(1000, 0)
	store.now = func() time.Time { return current }

	store.Set("k", "old", 10*time.Second)
	current = current.Add(5 * time.Second)
	store.Set("k", "new", 10*time.Second)
	current = current.Add(8 * time.Second)

	got, ok := store.Get("k")
	if !ok {
		t.Fatalf("expected refreshed entry to still be live")
	}
	if got != "new" {
		t.Fatalf("expected overwrite to win, got %q", got)
	}
}

func TestStoreGetBatchSplitsHitsAndMisses(t *testing.T) {
	store, err := NewStore[int](8)
	if err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}

	store.Set("a", 1, time.Minute)
	store.Set("c", 3, time.Minute)

	found, missing := store.GetBatch([]string{"a", "b", "c", "d"})
	if len(found) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(found))
	}
	if found["a"] != 1 || found["c"] != 3 {
		t.Fatalf("unexpected hit values: %v", found)
	}
	if len(missing) != 2 || missing[0] != "b" || missing[1] != "d" {
		t.Fatalf("expected misses [b d] in input order, got %v", missing)
	}
}

func TestStoreSweepDropsOnlyExpired(t *testing.T) {
	store, err := NewStore[string](8)
	if err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}
	current := time.Unix(1000, 0)
	store.now = func() time.Time { return current }

	store.Set("stale", "v", 10*time.Second)
	store.Set("live", "v", time.Hour)
	current = current.Add(time.Minute)

	store.Sweep()
	if store.Len() != 1 {
		t.Fatalf("expected sweep to keep a single entry, len = %d", store.Len())
	}
	if _, ok := store.Get("live"); !ok {
		t.Fatalf("expected live entry to survive sweep")
	}
}

func TestStoreEvictsBeyondCapacity(t *testing.T) {
	store, err := NewStore[int](2)
	if err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}

	store.Set("a", 1, time.Minute)
	store.Set("b", 2, time.Minute)
	store.Set("c", 3, time.Minute)

	if store.Len() != 2 {
		t.Fatalf("expected lru to bound entries at 2, len = %d", store.Len())
	}
	if _, ok := store.Get("a"); ok {
		t.Fatalf("expected oldest entry to be evicted")
	}
}
