package collab

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/collabkit/structured-ot/ot"
)

func TestTransformIncoming(t *testing.T) {
	// Server has two ops the client hasn't seen; the client's edit is
	// rebased over both.
	doc := NewDocument("abcdef")
	require.NoError(t, doc.Apply(ot.Splice(0, 1, "")))  // "bcdef"
	require.NoError(t, doc.Apply(ot.Splice(4, 1, "X"))) // "bcdeX"

	engine := &RebaseEngine{Conflictless: true}

	// Client edit made against revision 0: replace "cd" (at 2) with "Y".
	incoming := ot.Splice(2, 2, "Y")
	base, err := doc.ValueAt(0)
	require.NoError(t, err)

	transformed, err := engine.TransformIncoming(incoming, 0, doc.History, base)
	require.NoError(t, err)

	require.NoError(t, doc.Apply(transformed))
	require.Equal(t, "bYeX", doc.Value)
}

func TestTransformIncomingUpToDate(t *testing.T) {
	doc := NewDocument("abc")
	require.NoError(t, doc.Apply(ot.Splice(0, 1, "X")))

	engine := &RebaseEngine{Conflictless: true}
	base, err := doc.ValueAt(1)
	require.NoError(t, err)

	// Nothing to transform against.
	op := ot.Splice(1, 1, "Z")
	transformed, err := engine.TransformIncoming(op, 1, doc.History, base)
	require.NoError(t, err)
	require.True(t, ot.Equal(mustApply(t, transformed, doc.Value), "XZc"))

	_, err = engine.TransformIncoming(op, 9, doc.History, base)
	require.Error(t, err)
}

func TestTransformIncomingConflict(t *testing.T) {
	// Strict engine refuses a semantic conflict; the conflictless engine
	// resolves it.
	doc := NewDocument("abc")
	require.NoError(t, doc.Apply(ot.Splice(0, 3, "zzz")))

	incoming := ot.Splice(0, 3, "yyy")
	base, err := doc.ValueAt(0)
	require.NoError(t, err)

	strict := &RebaseEngine{}
	_, err = strict.TransformIncoming(incoming, 0, doc.History, base)
	require.Error(t, err)

	lenient := &RebaseEngine{Conflictless: true}
	transformed, err := lenient.TransformIncoming(incoming, 0, doc.History, base)
	require.NoError(t, err)
	require.NoError(t, doc.Apply(transformed))
	require.Equal(t, "zzz", doc.Value)
}

func TestTwoClientConvergence(t *testing.T) {
	// Both clients edit revision 0 concurrently; whichever arrives second
	// gets rebased, and both replicas end up identical.
	server := NewDocument("12345")
	engine := &RebaseEngine{Conflictless: true}

	opA := ot.Splice(0, 1, "A")
	opB := ot.Splice(4, 1, "B")

	tA, err := engine.TransformIncoming(opA, 0, server.History, server.Initial)
	require.NoError(t, err)
	require.NoError(t, server.Apply(tA))

	base, err := server.ValueAt(0)
	require.NoError(t, err)
	tB, err := engine.TransformIncoming(opB, 0, server.History, base)
	require.NoError(t, err)
	require.NoError(t, server.Apply(tB))

	require.Equal(t, "A234B", server.Value)
}

func mustApply(t *testing.T, op ot.Operation, doc any) any {
	t.Helper()
	v, err := op.Apply(doc)
	require.NoError(t, err)
	return v
}
