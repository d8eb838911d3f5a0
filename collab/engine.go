package collab

import (
	"fmt"

	"github.com/collabkit/structured-ot/ot"
)

// Engine abstracts the collaboration algorithm.
type Engine interface {
	// TransformIncoming rebases a client operation (created at the given
	// revision) against all operations in the history since that
	// revision. The base value is the document state at that revision.
	// Returns the operation rebased to apply at the current state.
	TransformIncoming(op ot.Operation, revision int, history []ot.Operation, base any) (ot.Operation, error)
}

// RebaseEngine rebases the incoming operation sequentially against each
// server operation the client hasn't seen, Jupiter style. With
// Conflictless set it threads the evolving pre-state through each step so
// every pair converges; otherwise a semantic conflict aborts the
// transform.
type RebaseEngine struct {
	Conflictless bool
}

func (e *RebaseEngine) TransformIncoming(op ot.Operation, revision int, history []ot.Operation, base any) (ot.Operation, error) {
	if revision < 0 || revision > len(history) {
		return nil, fmt.Errorf("invalid revision %d (history len %d)", revision, len(history))
	}

	transformed := op
	doc := base
	for i := revision; i < len(history); i++ {
		opt := &ot.RebaseOptions{Conflictless: e.Conflictless, Doc: doc, HasDoc: true}
		next, _, ok := ot.Rebase(transformed, history[i], opt)
		if !ok {
			return nil, fmt.Errorf("conflict against history[%d] %s", i, history[i].Inspect())
		}
		var err error
		doc, err = history[i].Apply(doc)
		if err != nil {
			return nil, fmt.Errorf("replay history[%d]: %w", i, err)
		}
		transformed = next
	}
	return transformed, nil
}
