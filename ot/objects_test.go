package ot

import "testing"

func TestObjApply(t *testing.T) {
	doc := map[string]any{"a": 1, "b": "x"}

	got, err := ObjApply{Key: "a", Op: Math{MathAdd, 1}}.Apply(doc)
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(got, map[string]any{"a": 2, "b": "x"}) {
		t.Errorf("Apply() = %v", got)
	}
	// The input document is never mutated.
	if !Equal(doc, map[string]any{"a": 1, "b": "x"}) {
		t.Errorf("document mutated: %v", doc)
	}

	// Put creates a key through the Missing sentinel.
	got, err = Put("c", true).Apply(doc)
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(got, map[string]any{"a": 1, "b": "x", "c": true}) {
		t.Errorf("Put() = %v", got)
	}

	// Remove deletes by setting to Missing.
	got, err = Remove("b").Apply(doc)
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(got, map[string]any{"a": 1}) {
		t.Errorf("Remove() = %v", got)
	}

	if _, err := (ObjApply{Key: "a", Op: NoOp{}}).Apply("not an object"); err == nil {
		t.Error("expected error for non-object document")
	}
	// A Math over a missing key is a type error.
	if _, err := (ObjApply{Key: "zz", Op: Math{MathAdd, 1}}).Apply(doc); err == nil {
		t.Error("expected error applying math to a missing key")
	}
}

func TestObjApplyInverse(t *testing.T) {
	doc := map[string]any{"a": 1}
	verifyInverse(t, Put("b", 5), doc)
	verifyInverse(t, Remove("a"), doc)
	verifyInverse(t, ObjApply{Key: "a", Op: Math{MathAdd, 7}}, doc)
	verifyInverse(t, ObjApply{Key: "a", Op: Set{Value: []any{1, 2}}}, doc)
}

func TestObjApplyRebase(t *testing.T) {
	// Different keys commute.
	doc := map[string]any{"a": 1, "b": 2}
	a := ObjApply{Key: "a", Op: Math{MathAdd, 1}}
	b := ObjApply{Key: "b", Op: Math{MathAdd, 5}}
	aP, bP, ok := Rebase(a, b, nil)
	if !ok || !opEqual(aP, a) || !opEqual(bP, b) {
		t.Errorf("different keys: got %v, %v, %v", aP, bP, ok)
	}
	verifyDiamond(t, doc, a, b, nil)

	// Same key: the sub-operations rebase, with the key's value as the
	// shared pre-state.
	a2 := ObjApply{Key: "a", Op: Math{MathAdd, 1}}
	b2 := ObjApply{Key: "a", Op: Math{MathMult, 3}}
	verifyDiamond(t, doc, a2, b2, ConflictlessWith(doc))

	// Same key, conflicting Puts: the total order decides.
	aP, bP, ok = Rebase(Put("k", "y"), Put("k", "z"), Conflictless())
	if !ok || !opEqual(aP, NoOp{}) || !opEqual(bP, Put("k", "z")) {
		t.Errorf("conflicting puts: got %v, %v, %v", aP, bP, ok)
	}
	verifyDiamond(t, map[string]any{}, Put("k", "y"), Put("k", "z"), Conflictless())

	// Concurrent identical removes collapse.
	aP, bP, ok = Rebase(Remove("a"), Remove("a"), nil)
	if !ok || !opEqual(aP, NoOp{}) || !opEqual(bP, NoOp{}) {
		t.Errorf("identical removes: got %v, %v, %v", aP, bP, ok)
	}
}

func TestObjApplyCompose(t *testing.T) {
	// Same-key sub-operations fuse.
	got, ok := AtomicCompose(ObjApply{Key: "a", Op: Math{MathAdd, 1}}, ObjApply{Key: "a", Op: Math{MathAdd, 2}})
	if !ok || !opEqual(got, ObjApply{Key: "a", Op: Math{MathAdd, 3}}) {
		t.Errorf("same-key compose = %v, %v", got, ok)
	}
	// Put then Remove cancels down to a remove of whatever was there.
	got, ok = AtomicCompose(Put("k", 5), Remove("k"))
	if !ok || !opEqual(got, Remove("k")) {
		t.Errorf("put∘remove = %v, %v", got, ok)
	}
	// Different keys do not fuse; Compose falls back to a list.
	if _, ok := AtomicCompose(Put("a", 1), Put("b", 2)); ok {
		t.Error("different keys must not fuse")
	}
	composed := Compose(Put("a", 1), Put("b", 2))
	gotDoc, err := composed.Apply(map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(gotDoc, map[string]any{"a": 1, "b": 2}) {
		t.Errorf("composed puts = %v", gotDoc)
	}
}

func TestMissingPassesThrough(t *testing.T) {
	// The core hands Missing through without interpretation.
	got, err := Set{Value: Missing}.Apply("anything")
	if err != nil {
		t.Fatal(err)
	}
	if _, isMissing := got.(missingValue); !isMissing {
		t.Errorf("Set(Missing) applied = %v, want the sentinel", got)
	}
	// NoOp over Missing keeps it.
	got, err = NoOp{}.Apply(Missing)
	if err != nil {
		t.Fatal(err)
	}
	if _, isMissing := got.(missingValue); !isMissing {
		t.Errorf("NoOp over Missing = %v, want the sentinel", got)
	}
}
