package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/collabkit/structured-ot/ot"
)

// MemoryStore is an in-memory implementation of DocumentStore. Every
// value is cloned on the way in and out, and redundant value writes are
// detected structurally with ot.Equal so they don't churn timestamps.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*memDoc
}

type memDoc struct {
	info    DocumentInfo
	history []OperationRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*memDoc)}
}

func (s *MemoryStore) Create(_ context.Context, id string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[id]; exists {
		return fmt.Errorf("document %q already exists", id)
	}
	now := time.Now()
	s.docs[id] = &memDoc{info: DocumentInfo{
		ID:        id,
		Value:     cloneValue(value),
		CreatedAt: now,
		UpdatedAt: now,
	}}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*DocumentInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %q not found", id)
	}
	info := d.info
	info.Value = cloneValue(info.Value)
	return &info, nil
}

func (s *MemoryStore) List(_ context.Context) ([]DocumentInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]DocumentInfo, 0, len(s.docs))
	for _, d := range s.docs {
		info := d.info
		info.Value = cloneValue(info.Value)
		result = append(result, info)
	}
	return result, nil
}

func (s *MemoryStore) UpdateValue(_ context.Context, id string, value any, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("document %q not found", id)
	}
	// Structural dirty check: an identical tree at the same version is
	// not a write.
	if version == d.info.Version && ot.Equal(value, d.info.Value) {
		return nil
	}
	d.info.Value = cloneValue(value)
	d.info.Version = version
	d.info.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) AppendOperation(_ context.Context, id string, op ot.Operation, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("document %q not found", id)
	}
	if version <= d.info.Version {
		return fmt.Errorf("stale version %d for %q (at %d)", version, id, d.info.Version)
	}
	d.history = append(d.history, OperationRecord{Op: op, Version: version})
	d.info.Version = version
	d.info.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) GetOperations(_ context.Context, id string, fromVersion int) ([]OperationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %q not found", id)
	}
	if fromVersion < 0 || fromVersion > d.info.Version {
		return nil, fmt.Errorf("invalid version %d for %q (at %d)", fromVersion, id, d.info.Version)
	}
	var recs []OperationRecord
	for _, r := range d.history {
		if r.Version > fromVersion {
			recs = append(recs, r)
		}
	}
	return recs, nil
}
