package kv

import (
	"context"
	"testing"
)

func TestMemoryGetSetDel(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected absent key, got ok=%v err=%v", ok, err)
	}

	if err := store.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	value, ok, err := store.Get(ctx, "k")
	if err != nil || !ok || value != "v1" {
		t.Fatalf("get after set: value=%q ok=%v err=%v", value, ok, err)
	}

	if err := store.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	value, _, _ = store.Get(ctx, "k")
	if value != "v2" {
		t.Fatalf("expected overwrite, got %q", value)
	}

	if err := store.Del(ctx, "k"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatal("expected key gone after del")
	}
	if err := store.Del(ctx, "k"); err != nil {
		t.Fatalf("deleting absent key should not error: %v", err)
	}
}

func TestMemorySnapshotIsCopy(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	_ = store.Set(ctx, "a", "1")

	snap := store.Snapshot()
	snap["a"] = "mutated"

	value, _, _ := store.Get(ctx, "a")
	if value != "1" {
		t.Fatal("snapshot mutation leaked into store")
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 key, got %d", store.Len())
	}
}
