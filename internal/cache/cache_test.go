package cache

import (
	"context"
	"testing"
	"time"
)

func TestKey_IndependentOfMapOrder(t *testing.T) {
	cfgA := map[string]interface{}{"lr": 0.01, "batch_size": 32, "optimizer": "adam"}
	cfgB := map[string]interface{}{"optimizer": "adam", "batch_size": 32, "lr": 0.01}

	deps := map[string]map[string]interface{}{
		"preprocess": {"rows": 1000, "path": "/data/train.parquet"},
	}

	k1 := Key("train", cfgA, deps, "v1")
	k2 := Key("train", cfgB, deps, "v1")
	if k1 != k2 {
		t.Errorf("key differs across map orderings: %s vs %s", k1, k2)
	}
}

func TestKey_SensitiveToInputs(t *testing.T) {
	cfg := map[string]interface{}{"lr": 0.01}
	deps := map[string]map[string]interface{}{"prep": {"rows": 10}}

	base := Key("train", cfg, deps, "v1")

	if Key("validate", cfg, deps, "v1") == base {
		t.Error("key ignores job type")
	}
	if Key("train", map[string]interface{}{"lr": 0.1}, deps, "v1") == base {
		t.Error("key ignores config")
	}
	if Key("train", cfg, map[string]map[string]interface{}{"prep": {"rows": 11}}, "v1") == base {
		t.Error("key ignores dependency outputs")
	}
	if Key("train", cfg, deps, "v2") == base {
		t.Error("key ignores handler version")
	}
}

func TestMemoryCache_GetSet(t *testing.T) {
	c := NewMemoryCache(nil)
	ctx := context.Background()

	if _, ok, _ := c.Get(ctx, "missing"); ok {
		t.Fatal("unexpected hit on empty cache")
	}

	if err := c.Set(ctx, "k1", map[string]interface{}{"accuracy": 0.95}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	entry, ok, err := c.Get(ctx, "k1")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if entry.Output["accuracy"] != 0.95 {
		t.Errorf("wrong output: %v", entry.Output)
	}
	if entry.AccessCount != 1 {
		t.Errorf("expected access count 1, got %d", entry.AccessCount)
	}
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	c := NewMemoryCache(&Config{TTL: 10 * time.Millisecond})
	ctx := context.Background()

	c.Set(ctx, "k1", map[string]interface{}{"v": 1})
	time.Sleep(20 * time.Millisecond)

	if _, ok, _ := c.Get(ctx, "k1"); ok {
		t.Error("entry should have expired")
	}
}

func TestMemoryCache_EvictionPrefersColdEntries(t *testing.T) {
	c := NewMemoryCache(&Config{MaxEntries: 3})
	ctx := context.Background()

	c.Set(ctx, "hot", map[string]interface{}{"v": 1})
	c.Set(ctx, "cold1", map[string]interface{}{"v": 2})
	c.Set(ctx, "cold2", map[string]interface{}{"v": 3})

	// Make "hot" heavily accessed even though it is oldest.
	for i := 0; i < 5; i++ {
		c.Get(ctx, "hot")
	}

	c.Set(ctx, "new", map[string]interface{}{"v": 4})

	if _, ok, _ := c.Get(ctx, "hot"); !ok {
		t.Error("frequently accessed entry was evicted")
	}
	stats, _ := c.Stats(ctx)
	if stats["entries"].(int) != 3 {
		t.Errorf("expected 3 entries after eviction, got %v", stats["entries"])
	}
}
