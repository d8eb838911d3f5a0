// Package ot implements an algebra of operations over structured JSON-like
// documents: atomic values (numbers, booleans), sequences (strings, arrays)
// and objects. Operations are immutable values supporting apply, simplify,
// inverse, composition and rebase against concurrent operations, with an
// optional conflictless mode that guarantees convergence by deterministic
// tie-breaking.
package ot

// Operation kind tags. The tag doubles as the "_type" field of the
// serialized form.
const (
	KindNoOp     = "values.NOOP"
	KindSet      = "values.SET"
	KindMath     = "values.MATH"
	KindPatch    = "sequences.PATCH"
	KindMove     = "sequences.MOVE"
	KindMap      = "sequences.MAP"
	KindList     = "lists.LIST"
	KindObjApply = "objects.APPLY"
)

// Operation is a transformation of a document value. Implementations are
// immutable; all methods return fresh values and never mutate the receiver
// or the document.
//
// Composition and rebase are not methods: they dispatch on the pair of
// operation kinds and live in Compose/AtomicCompose and Rebase.
type Operation interface {
	// Apply transforms doc. It is pure; a document whose type does not
	// match the operation is a misuse and yields an error.
	Apply(doc any) (any, error)

	// Simplify returns an observationally equivalent operation in
	// canonical form. The canonical identity is NoOp. Simplify never
	// fails.
	Simplify() Operation

	// Inverse returns the operation that undoes the receiver, given the
	// document it was applied to.
	Inverse(doc any) (Operation, error)

	// Kind returns the operation's serialization tag.
	Kind() string

	// Inspect renders a short diagnostic form, e.g. <values.MATH add:1>.
	// The result is never parsed.
	Inspect() string
}

// missingValue is the type of the Missing sentinel.
type missingValue struct{}

// Missing marks an absent object key. The object module feeds it to
// sub-operations when a key does not exist, and removes the key when a
// sub-operation produces it. The value and sequence layers pass it through
// without interpretation.
var Missing any = missingValue{}

// RebaseOptions carries the conflictless context of a rebase. A nil
// options value means strict mode: semantic conflicts are reported rather
// than resolved.
type RebaseOptions struct {
	// Conflictless enables deterministic tie-breaking so that both sides
	// of the diamond always converge.
	Conflictless bool

	// Doc is the shared pre-state of the two concurrent operations.
	// Several conflictless rules (Math against a different Math, the
	// Set-of-post-state fallback) need it; without it those pairs still
	// report conflict.
	Doc    any
	HasDoc bool
}

// ConflictlessWith returns options for a conflictless rebase over the
// given pre-state.
func ConflictlessWith(doc any) *RebaseOptions {
	return &RebaseOptions{Conflictless: true, Doc: doc, HasDoc: true}
}

// Conflictless returns options for a conflictless rebase without a
// pre-state. Pairs that need the document to converge still conflict.
func Conflictless() *RebaseOptions {
	return &RebaseOptions{Conflictless: true}
}

// NoOp is the identity operation.
type NoOp struct{}

func (NoOp) Apply(doc any) (any, error)     { return doc, nil }
func (NoOp) Simplify() Operation            { return NoOp{} }
func (NoOp) Inverse(any) (Operation, error) { return NoOp{}, nil }
func (NoOp) Kind() string                   { return KindNoOp }
func (NoOp) Inspect() string                { return "<values.NOOP>" }

// IsNoOp reports whether op simplifies to the identity.
func IsNoOp(op Operation) bool {
	_, ok := op.Simplify().(NoOp)
	return ok
}

// opEqual reports structural equality of two operations, comparing
// embedded document values under the total order so that int and float64
// representations of the same number agree.
func opEqual(a, b Operation) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case NoOp:
		return true
	case Set:
		return Equal(x.Value, b.(Set).Value)
	case Math:
		y := b.(Math)
		return x.Operator == y.Operator && Equal(x.Operand, y.Operand)
	case Patch:
		y := b.(Patch)
		if len(x.Hunks) != len(y.Hunks) {
			return false
		}
		for i, h := range x.Hunks {
			g := y.Hunks[i]
			if h.Offset != g.Offset || h.Length != g.Length || !opEqual(h.Op, g.Op) {
				return false
			}
		}
		return true
	case Move:
		return x == b.(Move)
	case Map:
		return opEqual(x.Op, b.(Map).Op)
	case List:
		y := b.(List)
		if len(x.Ops) != len(y.Ops) {
			return false
		}
		for i := range x.Ops {
			if !opEqual(x.Ops[i], y.Ops[i]) {
				return false
			}
		}
		return true
	case ObjApply:
		y := b.(ObjApply)
		return x.Key == y.Key && opEqual(x.Op, y.Op)
	}
	return false
}
