package store

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/collabkit/structured-ot/ot"
)

// cacheEntry is a document held in the write-back cache. pending holds
// operations not yet persisted; adjacent entries are fused through the
// algebra as they are queued, so a burst of small edits reaches the
// backing store as one compact operation carrying the final version.
// flushedValue/flushedVersion remember the last persisted state so the
// flusher can decide structurally (ot.Equal) whether the value needs
// writing at all.
type cacheEntry struct {
	info           DocumentInfo
	history        []OperationRecord
	pending        []OperationRecord
	flushedValue   any
	flushedVersion int
	created        bool // not yet created in the backing store
}

// CachedStore is a write-back DocumentStore: reads load through from the
// backing store into memory, writes land in memory and are flushed in
// the background. Pending operations are coalesced with AtomicCompose
// before they are persisted.
type CachedStore struct {
	backing       DocumentStore
	flushInterval time.Duration

	mu      sync.Mutex
	entries map[string]*cacheEntry

	stop chan struct{}
	done chan struct{}
}

// NewCachedStore creates a CachedStore that flushes dirty documents to
// the backing store every flushInterval.
func NewCachedStore(backing DocumentStore, flushInterval time.Duration) *CachedStore {
	cs := &CachedStore{
		backing:       backing,
		flushInterval: flushInterval,
		entries:       make(map[string]*cacheEntry),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go cs.flushLoop()
	return cs
}

func (cs *CachedStore) Create(_ context.Context, id string, value any) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if _, exists := cs.entries[id]; exists {
		return fmt.Errorf("document %q already exists", id)
	}
	now := time.Now()
	cs.entries[id] = &cacheEntry{
		info: DocumentInfo{
			ID:        id,
			Value:     cloneValue(value),
			CreatedAt: now,
			UpdatedAt: now,
		},
		created: true,
	}
	return nil
}

// entry returns the cached document, loading it from the backing store
// on a miss.
func (cs *CachedStore) entry(ctx context.Context, id string) (*cacheEntry, error) {
	cs.mu.Lock()
	if e, ok := cs.entries[id]; ok {
		cs.mu.Unlock()
		return e, nil
	}
	cs.mu.Unlock()

	info, err := cs.backing.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	recs, err := cs.backing.GetOperations(ctx, id, 0)
	if err != nil {
		return nil, err
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	if e, ok := cs.entries[id]; ok {
		// Lost a racing load; keep the first.
		return e, nil
	}
	e := &cacheEntry{
		info:           *info,
		history:        recs,
		flushedValue:   cloneValue(info.Value),
		flushedVersion: info.Version,
	}
	cs.entries[id] = e
	return e, nil
}

func (cs *CachedStore) Get(ctx context.Context, id string) (*DocumentInfo, error) {
	e, err := cs.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	info := e.info
	info.Value = cloneValue(info.Value)
	return &info, nil
}

func (cs *CachedStore) List(ctx context.Context) ([]DocumentInfo, error) {
	return cs.backing.List(ctx)
}

func (cs *CachedStore) UpdateValue(ctx context.Context, id string, value any, version int) error {
	e, err := cs.entry(ctx, id)
	if err != nil {
		return err
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if version == e.info.Version && ot.Equal(value, e.info.Value) {
		return nil
	}
	e.info.Value = cloneValue(value)
	e.info.Version = version
	e.info.UpdatedAt = time.Now()
	return nil
}

func (cs *CachedStore) AppendOperation(ctx context.Context, id string, op ot.Operation, version int) error {
	e, err := cs.entry(ctx, id)
	if err != nil {
		return err
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if version <= e.info.Version {
		return fmt.Errorf("stale version %d for %q (at %d)", version, id, e.info.Version)
	}
	rec := OperationRecord{Op: op, Version: version}
	e.history = append(e.history, rec)
	e.info.Version = version
	e.info.UpdatedAt = time.Now()

	// Coalesce into the tail of the pending queue when the algebra
	// admits a single-operation fusion.
	if n := len(e.pending); n > 0 {
		if fused, ok := ot.AtomicCompose(e.pending[n-1].Op, op); ok {
			e.pending[n-1] = OperationRecord{Op: fused, Version: version}
			return nil
		}
	}
	e.pending = append(e.pending, rec)
	return nil
}

func (cs *CachedStore) GetOperations(ctx context.Context, id string, fromVersion int) ([]OperationRecord, error) {
	e, err := cs.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if fromVersion < 0 || fromVersion > e.info.Version {
		return nil, fmt.Errorf("invalid version %d for %q (at %d)", fromVersion, id, e.info.Version)
	}
	var recs []OperationRecord
	for _, r := range e.history {
		if r.Version > fromVersion {
			recs = append(recs, r)
		}
	}
	return recs, nil
}

func (cs *CachedStore) flushLoop() {
	ticker := time.NewTicker(cs.flushInterval)
	defer ticker.Stop()
	defer close(cs.done)

	for {
		select {
		case <-ticker.C:
			cs.flush()
		case <-cs.stop:
			cs.flush()
			return
		}
	}
}

// flush persists every dirty document: create first, then the coalesced
// pending operations, then the value when it structurally differs from
// what the backing store last saw.
func (cs *CachedStore) flush() {
	ctx := context.Background()

	cs.mu.Lock()
	ids := make([]string, 0, len(cs.entries))
	for id := range cs.entries {
		ids = append(ids, id)
	}
	cs.mu.Unlock()

	for _, id := range ids {
		cs.mu.Lock()
		e := cs.entries[id]
		if e == nil {
			cs.mu.Unlock()
			continue
		}
		created := e.created
		pending := e.pending
		e.pending = nil
		value := cloneValue(e.info.Value)
		version := e.info.Version
		valueDirty := version != e.flushedVersion || !ot.Equal(value, e.flushedValue)
		cs.mu.Unlock()

		if created {
			if err := cs.backing.Create(ctx, id, value); err != nil {
				log.Printf("cached store: create %q in backing store: %v", id, err)
				cs.requeue(id, pending)
				continue
			}
			cs.mu.Lock()
			if cur := cs.entries[id]; cur != nil {
				cur.created = false
			}
			cs.mu.Unlock()
		}

		flushed := true
		for i, rec := range pending {
			if err := cs.backing.AppendOperation(ctx, id, rec.Op, rec.Version); err != nil {
				log.Printf("cached store: flush op v%d for %q: %v", rec.Version, id, err)
				// Put the rest back — the next cycle retries.
				cs.requeue(id, pending[i:])
				flushed = false
				break
			}
		}
		if !flushed {
			continue
		}

		if valueDirty {
			if err := cs.backing.UpdateValue(ctx, id, value, version); err != nil {
				log.Printf("cached store: flush value for %q: %v", id, err)
				continue
			}
		}

		cs.mu.Lock()
		if cur := cs.entries[id]; cur != nil {
			cur.flushedValue = value
			cur.flushedVersion = version
		}
		cs.mu.Unlock()
	}
}

// requeue puts unflushed operations back at the head of the pending
// queue, ahead of anything that arrived during the flush.
func (cs *CachedStore) requeue(id string, pending []OperationRecord) {
	if len(pending) == 0 {
		return
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	e := cs.entries[id]
	if e == nil {
		return
	}
	e.pending = append(append([]OperationRecord{}, pending...), e.pending...)
}

// Close performs a final flush and waits for the loop to exit.
func (cs *CachedStore) Close() {
	close(cs.stop)
	<-cs.done
}
