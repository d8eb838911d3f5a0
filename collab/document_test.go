package collab

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/collabkit/structured-ot/ot"
)

func TestDocumentApply(t *testing.T) {
	doc := NewDocument("hello")

	require.NoError(t, doc.Apply(ot.Splice(5, 0, " world")))
	require.Equal(t, "hello world", doc.Value)
	require.Equal(t, 1, doc.Version)
	require.Len(t, doc.History, 1)

	// Identities don't pollute the history.
	require.NoError(t, doc.Apply(ot.NoOp{}))
	require.NoError(t, doc.Apply(ot.Splice(0, 0, "")))
	require.Equal(t, 1, doc.Version)

	// A type mismatch leaves the document untouched.
	require.Error(t, doc.Apply(ot.Math{Operator: ot.MathAdd, Operand: 1}))
	require.Equal(t, "hello world", doc.Value)
	require.Equal(t, 1, doc.Version)
}

func TestDocumentValueAt(t *testing.T) {
	doc := NewDocument("abc")
	require.NoError(t, doc.Apply(ot.Splice(0, 1, "X")))
	require.NoError(t, doc.Apply(ot.Splice(3, 0, "!")))

	v, err := doc.ValueAt(0)
	require.NoError(t, err)
	require.Equal(t, "abc", v)

	v, err = doc.ValueAt(1)
	require.NoError(t, err)
	require.Equal(t, "Xbc", v)

	v, err = doc.ValueAt(2)
	require.NoError(t, err)
	require.Equal(t, "Xbc!", v)

	_, err = doc.ValueAt(5)
	require.Error(t, err)
}

func TestDocumentUndo(t *testing.T) {
	doc := NewDocument([]any{1.0, 2.0})
	require.NoError(t, doc.Apply(ot.ApplyAt(0, ot.Math{Operator: ot.MathAdd, Operand: 10.0})))

	undo, err := doc.Undo()
	require.NoError(t, err)
	require.NoError(t, doc.Apply(undo))
	require.True(t, ot.Equal(doc.Value, []any{1.0, 2.0}), "undo restored %v", doc.Value)

	empty := NewDocument("x")
	undo, err = empty.Undo()
	require.NoError(t, err)
	require.IsType(t, ot.NoOp{}, undo)
}
