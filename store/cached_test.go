package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/collabkit/structured-ot/ot"
)

func TestCachedStore_ReadThrough(t *testing.T) {
	backing := NewMemoryStore()
	ctx := context.Background()

	// Pre-populate backing store.
	if err := backing.Create(ctx, "doc1", "hello"); err != nil {
		t.Fatal(err)
	}
	op := ot.Splice(5, 0, " world")
	if err := backing.AppendOperation(ctx, "doc1", op, 1); err != nil {
		t.Fatal(err)
	}

	cs := NewCachedStore(backing, time.Hour) // long interval — no auto flush
	defer cs.Close()

	// Get should load from backing.
	info, err := cs.Get(ctx, "doc1")
	if err != nil {
		t.Fatal(err)
	}
	if info.Value != "hello" || info.Version != 1 {
		t.Errorf("unexpected info: %+v", info)
	}

	ops, err := cs.GetOperations(ctx, "doc1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 1 {
		t.Fatalf("GetOperations returned %d ops, want 1", len(ops))
	}
}

func TestCachedStore_WriteBack(t *testing.T) {
	backing := NewMemoryStore()
	ctx := context.Background()

	cs := NewCachedStore(backing, time.Hour)

	if err := cs.Create(ctx, "doc1", "abc"); err != nil {
		t.Fatal(err)
	}
	if err := cs.AppendOperation(ctx, "doc1", ot.Splice(0, 1, "X"), 1); err != nil {
		t.Fatal(err)
	}
	if err := cs.UpdateValue(ctx, "doc1", "Xbc", 1); err != nil {
		t.Fatal(err)
	}

	// Nothing flushed yet.
	if _, err := backing.Get(ctx, "doc1"); err == nil {
		t.Error("document flushed before interval elapsed")
	}

	// Close performs a final flush.
	cs.Close()

	info, err := backing.Get(ctx, "doc1")
	if err != nil {
		t.Fatal(err)
	}
	if info.Value != "Xbc" || info.Version != 1 {
		t.Errorf("unexpected flushed info: %+v", info)
	}
	ops, err := backing.GetOperations(ctx, "doc1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 1 {
		t.Fatalf("backing has %d ops, want 1", len(ops))
	}
}

func TestCachedStore_PeriodicFlush(t *testing.T) {
	backing := NewMemoryStore()
	ctx := context.Background()

	cs := NewCachedStore(backing, 10*time.Millisecond)
	defer cs.Close()

	if err := cs.Create(ctx, "doc1", "v"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := backing.Get(ctx, "doc1"); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("document never flushed to backing store")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// countingStore wraps a DocumentStore and counts append calls.
type countingStore struct {
	DocumentStore
	mu      sync.Mutex
	appends int
}

func (c *countingStore) AppendOperation(ctx context.Context, id string, op ot.Operation, version int) error {
	c.mu.Lock()
	c.appends++
	c.mu.Unlock()
	return c.DocumentStore.AppendOperation(ctx, id, op, version)
}

func TestCachedStore_CoalescesPendingOps(t *testing.T) {
	backing := &countingStore{DocumentStore: NewMemoryStore()}
	ctx := context.Background()

	cs := NewCachedStore(backing, time.Hour)
	if err := cs.Create(ctx, "doc1", "xyz"); err != nil {
		t.Fatal(err)
	}
	// Two abutting insertions fuse into one splice before the flush.
	if err := cs.AppendOperation(ctx, "doc1", ot.Splice(0, 0, "ab"), 1); err != nil {
		t.Fatal(err)
	}
	if err := cs.AppendOperation(ctx, "doc1", ot.Splice(2, 0, "cd"), 2); err != nil {
		t.Fatal(err)
	}

	// The cache itself still serves the full per-edit history.
	cached, err := cs.GetOperations(ctx, "doc1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(cached) != 2 {
		t.Fatalf("cache has %d records, want 2", len(cached))
	}
	cs.Close()

	if backing.appends != 1 {
		t.Fatalf("backing saw %d appends, want 1 coalesced op", backing.appends)
	}
	recs, err := backing.GetOperations(ctx, "doc1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Version != 2 {
		t.Fatalf("backing records = %+v, want one record at version 2", recs)
	}
	want, _ := ot.Encode(ot.Splice(0, 0, "abcd"))
	have, _ := ot.Encode(recs[0].Op)
	if string(want) != string(have) {
		t.Errorf("coalesced op = %s, want %s", have, want)
	}
}

func TestCachedStore_UnfusiblePendingOpsStaySeparate(t *testing.T) {
	backing := &countingStore{DocumentStore: NewMemoryStore()}
	ctx := context.Background()

	cs := NewCachedStore(backing, time.Hour)
	if err := cs.Create(ctx, "doc1", "abcdef"); err != nil {
		t.Fatal(err)
	}
	// A move never fuses, so both operations reach the backing store.
	if err := cs.AppendOperation(ctx, "doc1", ot.Splice(0, 1, "X"), 1); err != nil {
		t.Fatal(err)
	}
	if err := cs.AppendOperation(ctx, "doc1", ot.Move{Offset: 0, Count: 1, NewOffset: 3}, 2); err != nil {
		t.Fatal(err)
	}
	cs.Close()

	if backing.appends != 2 {
		t.Fatalf("backing saw %d appends, want 2", backing.appends)
	}
	recs, err := backing.GetOperations(ctx, "doc1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Version != 2 {
		t.Fatalf("records past v1 = %+v, want one record at version 2", recs)
	}
}

func TestCachedStore_FlushOnlyNewOps(t *testing.T) {
	backing := NewMemoryStore()
	ctx := context.Background()

	// Pre-existing document with one persisted op.
	if err := backing.Create(ctx, "doc1", "abc"); err != nil {
		t.Fatal(err)
	}
	if err := backing.AppendOperation(ctx, "doc1", ot.Splice(0, 1, "X"), 1); err != nil {
		t.Fatal(err)
	}

	cs := NewCachedStore(backing, time.Hour)

	// Load through the cache, then append one more op.
	if _, err := cs.Get(ctx, "doc1"); err != nil {
		t.Fatal(err)
	}
	if err := cs.AppendOperation(ctx, "doc1", ot.Splice(1, 1, "Y"), 2); err != nil {
		t.Fatal(err)
	}
	cs.Close()

	ops, err := backing.GetOperations(ctx, "doc1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 2 {
		t.Fatalf("backing has %d ops, want 2 (no re-flush of existing ops)", len(ops))
	}
}
