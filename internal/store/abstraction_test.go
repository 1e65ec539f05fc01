package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"hivebrain/internal/model"
)

// flakyBackend wraps a real backend and fails selected operations.
type flakyBackend struct {
	Backend
	failWrites bool
}

func (f *flakyBackend) StoreMemory(ctx context.Context, m *model.MemoryItem) error {
	if f.failWrites {
		return errors.New("cache write refused")
	}
	return f.Backend.StoreMemory(ctx, m)
}

func newTestAbstraction(t *testing.T) (*Abstraction, *SQLiteBackend, *SQLiteBackend) {
	t.Helper()
	primary := NewSQLiteBackend(":memory:", SQLiteOptions{})
	cache := NewSQLiteBackend(":memory:", SQLiteOptions{})
	a := NewAbstraction(primary, cache)
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a, primary, cache
}

func TestAbstractionWritePath(t *testing.T) {
	a, primary, cache := newTestAbstraction(t)
	ctx := context.Background()

	m := testMemory("m-1", "dev-a", []float32{1, 0}, time.Now())
	if err := a.StoreMemory(ctx, m); err != nil {
		t.Fatalf("StoreMemory failed: %v", err)
	}

	for name, b := range map[string]*SQLiteBackend{"primary": primary, "cache": cache} {
		got, err := b.GetMemoryByID(ctx, "m-1")
		if err != nil || got == nil {
			t.Errorf("%s should hold the memory, got %+v, %v", name, got, err)
		}
	}
}

func TestAbstractionCacheErrorsAreSwallowed(t *testing.T) {
	primary := NewSQLiteBackend(":memory:", SQLiteOptions{})
	cacheReal := NewSQLiteBackend(":memory:", SQLiteOptions{})
	a := NewAbstraction(primary, &flakyBackend{Backend: cacheReal, failWrites: true})
	ctx := context.Background()
	if err := a.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer a.Close()

	m := testMemory("m-1", "dev-a", []float32{1, 0}, time.Now())
	if err := a.StoreMemory(ctx, m); err != nil {
		t.Fatalf("cache failure must not surface: %v", err)
	}
	got, err := primary.GetMemoryByID(ctx, "m-1")
	if err != nil || got == nil {
		t.Errorf("primary write should have happened, got %+v, %v", got, err)
	}
}

func TestAbstractionReadThroughPopulatesCache(t *testing.T) {
	a, primary, cache := newTestAbstraction(t)
	ctx := context.Background()

	// Seed primary directly; the cache starts cold.
	m := testMemory("m-1", "dev-a", []float32{1, 0}, time.Now())
	if err := primary.StoreMemory(ctx, m); err != nil {
		t.Fatal(err)
	}

	results, err := a.RetrieveMemories(ctx, []float32{1, 0}, 5, "")
	if err != nil {
		t.Fatalf("RetrieveMemories failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != "m-1" {
		t.Fatalf("expected primary result, got %+v", results)
	}

	cached, err := cache.GetMemoryByID(ctx, "m-1")
	if err != nil || cached == nil {
		t.Errorf("cache should have been populated, got %+v, %v", cached, err)
	}
}

func TestAbstractionCacheHitSkipsPrimary(t *testing.T) {
	a, primary, cache := newTestAbstraction(t)
	ctx := context.Background()

	// The cache holds a record the primary does not: a cache hit must
	// be returned as-is, proving primary was never consulted.
	m := testMemory("cache-only", "dev-a", []float32{1, 0}, time.Now())
	if err := cache.StoreMemory(ctx, m); err != nil {
		t.Fatal(err)
	}

	results, err := a.RetrieveMemories(ctx, []float32{1, 0}, 5, "")
	if err != nil {
		t.Fatalf("RetrieveMemories failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != "cache-only" {
		t.Errorf("expected the cached record, got %+v", results)
	}

	if got, _ := primary.GetMemoryByID(ctx, "cache-only"); got != nil {
		t.Error("primary should be untouched on a cache hit")
	}
}

func TestAbstractionWithoutCache(t *testing.T) {
	a := NewAbstraction(NewSQLiteBackend(":memory:", SQLiteOptions{}), nil)
	ctx := context.Background()
	if err := a.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer a.Close()

	if err := a.StoreMemory(ctx, testMemory("m-1", "d", []float32{1}, time.Now())); err != nil {
		t.Fatalf("StoreMemory failed: %v", err)
	}
	results, err := a.RetrieveMemories(ctx, []float32{1}, 1, "")
	if err != nil || len(results) != 1 {
		t.Errorf("retrieve without cache failed: %v, %v", results, err)
	}
}
