package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/collabkit/structured-ot/ot"
)

// FirestoreStore is a Firestore-backed implementation of DocumentStore.
// The document value is kept as canonical JSON text so arbitrary trees
// survive Firestore's field typing, and the operation history lives in a
// subcollection keyed by zero-padded version for ordered range reads.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore creates a new FirestoreStore using the given
// Firestore client.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{
		client:     client,
		collection: "documents",
	}
}

func (s *FirestoreStore) docRef(id string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(id)
}

func (s *FirestoreStore) opsCollection(docID string) *firestore.CollectionRef {
	return s.docRef(docID).Collection("operations")
}

func zeroPad(version int) string {
	return fmt.Sprintf("%010d", version)
}

func (s *FirestoreStore) Create(ctx context.Context, id string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value for %q: %w", id, err)
	}
	now := time.Now()
	_, err = s.docRef(id).Create(ctx, map[string]interface{}{
		"value":     string(encoded),
		"version":   0,
		"createdAt": now,
		"updatedAt": now,
	})
	if status.Code(err) == codes.AlreadyExists {
		return fmt.Errorf("document %q already exists", id)
	}
	return err
}

func (s *FirestoreStore) Get(ctx context.Context, id string) (*DocumentInfo, error) {
	snap, err := s.docRef(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("document %q not found", id)
	}
	if err != nil {
		return nil, err
	}
	return snapshotToDocInfo(id, snap)
}

func snapshotToDocInfo(id string, snap *firestore.DocumentSnapshot) (*DocumentInfo, error) {
	data := snap.Data()
	encoded, _ := data["value"].(string)
	version, _ := data["version"].(int64)
	createdAt, _ := data["createdAt"].(time.Time)
	updatedAt, _ := data["updatedAt"].(time.Time)

	var value any
	if encoded != "" {
		if err := json.Unmarshal([]byte(encoded), &value); err != nil {
			return nil, fmt.Errorf("decode value of %q: %w", id, err)
		}
	}
	return &DocumentInfo{
		ID:        id,
		Value:     value,
		Version:   int(version),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

func (s *FirestoreStore) List(ctx context.Context) ([]DocumentInfo, error) {
	iter := s.client.Collection(s.collection).Documents(ctx)
	defer iter.Stop()

	var result []DocumentInfo
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		info, err := snapshotToDocInfo(snap.Ref.ID, snap)
		if err != nil {
			return nil, err
		}
		result = append(result, *info)
	}
	return result, nil
}

func (s *FirestoreStore) UpdateValue(ctx context.Context, id string, value any, version int) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value for %q: %w", id, err)
	}
	_, err = s.docRef(id).Update(ctx, []firestore.Update{
		{Path: "value", Value: string(encoded)},
		{Path: "version", Value: version},
		{Path: "updatedAt", Value: time.Now()},
	})
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("document %q not found", id)
	}
	return err
}

func (s *FirestoreStore) AppendOperation(ctx context.Context, id string, op ot.Operation, version int) error {
	encoded, err := ot.Encode(op)
	if err != nil {
		return fmt.Errorf("encode operation v%d for %q: %w", version, id, err)
	}

	// Keyed by the zero-padded version the operation produces, so a
	// range read over document IDs yields records in version order even
	// when coalesced writes leave gaps in the numbering.
	_, err = s.opsCollection(id).Doc(zeroPad(version)).Set(ctx, map[string]interface{}{
		"op":      string(encoded),
		"version": version,
	})
	return err
}

func (s *FirestoreStore) GetOperations(ctx context.Context, id string, fromVersion int) ([]OperationRecord, error) {
	// Verify document exists.
	_, err := s.docRef(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("document %q not found", id)
	}
	if err != nil {
		return nil, err
	}

	iter := s.opsCollection(id).
		OrderBy(firestore.DocumentID, firestore.Asc).
		StartAt(zeroPad(fromVersion + 1)).
		Documents(ctx)
	defer iter.Stop()

	var recs []OperationRecord
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		rec, err := snapshotToRecord(snap)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func snapshotToRecord(snap *firestore.DocumentSnapshot) (OperationRecord, error) {
	data := snap.Data()
	encoded, ok := data["op"].(string)
	if !ok {
		return OperationRecord{}, fmt.Errorf("invalid op field in operation %s", snap.Ref.ID)
	}
	version, _ := data["version"].(int64)
	op, err := ot.Decode([]byte(encoded))
	if err != nil {
		return OperationRecord{}, fmt.Errorf("operation %s: %w", snap.Ref.ID, err)
	}
	return OperationRecord{Op: op, Version: int(version)}, nil
}
