package store

import (
	"context"
	"time"

	"github.com/collabkit/structured-ot/ot"
)

// DocumentInfo holds document metadata and the current value.
type DocumentInfo struct {
	ID        string
	Value     any
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OperationRecord pairs a persisted operation with the version the
// document reaches once it is applied. Versions are strictly increasing
// per document but may skip numbers: a writer is free to persist a run
// of edits as one composed operation carrying the final version.
type OperationRecord struct {
	Op      ot.Operation
	Version int
}

// DocumentStore abstracts document persistence. The value is a JSON
// document tree; the operation history is kept alongside it so replicas
// at an older version can catch up. GetOperations returns the records
// with a version greater than fromVersion, in order.
// Implementations: MemoryStore, FirestoreStore, CachedStore.
type DocumentStore interface {
	Create(ctx context.Context, id string, value any) error
	Get(ctx context.Context, id string) (*DocumentInfo, error)
	List(ctx context.Context) ([]DocumentInfo, error)
	UpdateValue(ctx context.Context, id string, value any, version int) error
	AppendOperation(ctx context.Context, id string, op ot.Operation, version int) error
	GetOperations(ctx context.Context, id string, fromVersion int) ([]OperationRecord, error)
}

// cloneValue copies a JSON document tree. Values are aliased mutable
// structures, so anything crossing a store boundary is cloned to keep
// callers and stored state from sharing structure.
func cloneValue(v any) any {
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = cloneValue(e)
		}
		return out
	}
	return v
}
