// Package collab tracks a shared document and rebases incoming
// operations against the history a client has not yet seen.
package collab

import (
	"fmt"

	"github.com/collabkit/structured-ot/ot"
)

// Document represents a collaborative document with its full operation
// history.
type Document struct {
	Initial any
	Value   any
	Version int
	History []ot.Operation
}

// NewDocument creates a new document with the given initial value.
func NewDocument(value any) *Document {
	return &Document{Initial: value, Value: value}
}

// Apply applies an operation to the document, appending its simplified
// form to history. An operation that simplifies to NoOp is dropped: the
// history and version stay unchanged.
func (d *Document) Apply(op ot.Operation) error {
	op = op.Simplify()
	if _, ok := op.(ot.NoOp); ok {
		return nil
	}
	result, err := op.Apply(d.Value)
	if err != nil {
		return fmt.Errorf("apply to document v%d: %w", d.Version, err)
	}
	d.Value = result
	d.Version++
	d.History = append(d.History, op)
	return nil
}

// ValueAt replays the history to reconstruct the document value at the
// given revision.
func (d *Document) ValueAt(revision int) (any, error) {
	if revision < 0 || revision > len(d.History) {
		return nil, fmt.Errorf("invalid revision %d (history len %d)", revision, len(d.History))
	}
	value := d.Initial
	for i := 0; i < revision; i++ {
		var err error
		value, err = d.History[i].Apply(value)
		if err != nil {
			return nil, fmt.Errorf("replay history[%d]: %w", i, err)
		}
	}
	return value, nil
}

// Undo returns the inverse of the most recent operation, or NoOp when the
// history is empty.
func (d *Document) Undo() (ot.Operation, error) {
	if len(d.History) == 0 {
		return ot.NoOp{}, nil
	}
	before, err := d.ValueAt(len(d.History) - 1)
	if err != nil {
		return nil, err
	}
	return d.History[len(d.History)-1].Inverse(before)
}
