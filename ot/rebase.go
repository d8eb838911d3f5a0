package ot

import (
	"sort"
	"strings"
)

// Rebase solves the OT diamond for two concurrent operations: given that
// a and b were both produced against the same document state, it returns
// aPrime (the variant of a that applies after b) and bPrime (the variant
// of b that applies after a), such that a·bPrime and b·aPrime converge.
//
// ok=false reports a semantic conflict. It is a value, not an error:
// without conflictless mode, disagreeing operations are expected to
// conflict, and the caller decides whether to retry with a conflictless
// context or escalate.
func Rebase(a, b Operation, opt *RebaseOptions) (aPrime, bPrime Operation, ok bool) {
	if opt == nil {
		opt = &RebaseOptions{}
	}
	a, b = a.Simplify(), b.Simplify()

	// NoOp never conflicts, in either role.
	if _, isNoOp := a.(NoOp); isNoOp {
		return a, b, true
	}
	if _, isNoOp := b.(NoOp); isNoOp {
		return a, b, true
	}

	la, aIsList := a.(List)
	lb, bIsList := b.(List)
	if aIsList || bIsList {
		if !aIsList {
			la = List{Ops: []Operation{a}}
		}
		if !bIsList {
			lb = List{Ops: []Operation{b}}
		}
		return rebaseListPair(la, lb, opt)
	}

	if fn, found := rebasePairs[pairKey(a.Kind(), b.Kind())]; found {
		if ra, rb, ok := fn(a, b, opt); ok {
			return ra.Simplify(), rb.Simplify(), true
		}
	} else if fn, found := rebasePairs[pairKey(b.Kind(), a.Kind())]; found {
		// Only one direction of each pair is implemented; the converse
		// swaps the result.
		if rb, ra, ok := fn(b, a, opt); ok {
			return ra.Simplify(), rb.Simplify(), true
		}
	}

	// Conflictless last resort: promote both sides to a Set of their own
	// post-state and let the total order pick the survivor. This is what
	// makes conflictless mode total.
	if opt.Conflictless {
		pa, errA := a.Apply(opt.Doc)
		pb, errB := b.Apply(opt.Doc)
		if errA == nil && errB == nil {
			switch c := Compare(pa, pb); {
			case c == 0:
				return NoOp{}, NoOp{}, true
			case c > 0:
				return Set{Value: pa}, NoOp{}, true
			default:
				return NoOp{}, Set{Value: pb}, true
			}
		}
	}
	return nil, nil, false
}

type rebaseFunc func(a, b Operation, opt *RebaseOptions) (Operation, Operation, bool)

func pairKey(ka, kb string) string { return ka + "|" + kb }

var rebasePairs map[string]rebaseFunc

func init() {
	rebasePairs = map[string]rebaseFunc{
		pairKey(KindSet, KindSet):           rebaseSetSet,
		pairKey(KindSet, KindMath):          rebaseSetMath,
		pairKey(KindMath, KindMath):         rebaseMathMath,
		pairKey(KindPatch, KindPatch):       rebasePatchPatch,
		pairKey(KindPatch, KindMove):        rebasePatchMove,
		pairKey(KindPatch, KindMap):         rebasePatchMap,
		pairKey(KindMove, KindMove):         rebaseMoveMove,
		pairKey(KindMove, KindMap):          rebaseMoveMap,
		pairKey(KindMap, KindMap):           rebaseMapMap,
		pairKey(KindObjApply, KindObjApply): rebaseObjObj,
	}
}

func rebaseSetSet(a, b Operation, opt *RebaseOptions) (Operation, Operation, bool) {
	if Equal(a.(Set).Value, b.(Set).Value) {
		return NoOp{}, NoOp{}, true
	}
	// Unequal values fall through to the conflictless tie-break.
	return nil, nil, false
}

// rebaseSetMath declares Set to come second in the combined effect: a Set
// concurrent with a Math wins outright.
func rebaseSetMath(a, b Operation, _ *RebaseOptions) (Operation, Operation, bool) {
	return a, NoOp{}, true
}

func rebaseMathMath(a, b Operation, opt *RebaseOptions) (Operation, Operation, bool) {
	am, bm := a.(Math), b.(Math)
	if am.Operator == bm.Operator {
		if am.Operator != MathRot || sameRotModulus(am, bm) {
			// Commutative: both sides apply unchanged.
			return a, b, true
		}
	}
	if !opt.Conflictless || !opt.HasDoc {
		return nil, nil, false
	}
	// Impose a total order on (operator, operand); the lower side lifts
	// itself to a Set of the combined post-state so both sites converge.
	c := strings.Compare(am.Operator, bm.Operator)
	if c == 0 {
		c = Compare(am.Operand, bm.Operand)
	}
	if c < 0 {
		mid, err := am.Apply(opt.Doc)
		if err != nil {
			return nil, nil, false
		}
		post, err := bm.Apply(mid)
		if err != nil {
			return nil, nil, false
		}
		return Set{Value: post}, b, true
	}
	mid, err := bm.Apply(opt.Doc)
	if err != nil {
		return nil, nil, false
	}
	post, err := am.Apply(mid)
	if err != nil {
		return nil, nil, false
	}
	return a, Set{Value: post}, true
}

func rebaseMapMap(a, b Operation, opt *RebaseOptions) (Operation, Operation, bool) {
	am, bm := a.(Map), b.(Map)
	// Element values are not individually known, so the sub-rebase runs
	// without a pre-state.
	ra, rb, ok := Rebase(am.Op, bm.Op, &RebaseOptions{Conflictless: opt.Conflictless})
	if !ok {
		return nil, nil, false
	}
	return Map{Op: ra}, Map{Op: rb}, true
}

// rebaseMoveMap: relocating elements and rewriting every element commute.
func rebaseMoveMap(a, b Operation, _ *RebaseOptions) (Operation, Operation, bool) {
	return a, b, true
}

func rebaseMoveMove(a, b Operation, _ *RebaseOptions) (Operation, Operation, bool) {
	am, bm := a.(Move), b.(Move)
	if am == bm {
		return NoOp{}, NoOp{}, true
	}
	as, ae := am.Offset, am.Offset+am.Count
	bs, be := bm.Offset, bm.Offset+bm.Count
	// Only the clean case rebases: disjoint source blocks whose
	// destinations stay out of each other's way.
	disjoint := ae <= bs || be <= as
	if !disjoint ||
		(am.NewOffset > bs && am.NewOffset < be) ||
		(bm.NewOffset > as && bm.NewOffset < ae) ||
		am.NewOffset == bm.NewOffset {
		return nil, nil, false
	}
	ras, rae, ok1 := bm.mapRange(as, ae)
	rbs, rbe, ok2 := am.mapRange(bs, be)
	if !ok1 || !ok2 {
		return nil, nil, false
	}
	return Move{Offset: ras, Count: rae - ras, NewOffset: bm.mapIndex(am.NewOffset)},
		Move{Offset: rbs, Count: rbe - rbs, NewOffset: am.mapIndex(bm.NewOffset)},
		true
}

// mapRange maps a pre-move range to post-move coordinates, failing when
// the move tears the range apart.
func (op Move) mapRange(s, e int) (int, int, bool) {
	bs, be := op.Offset, op.Offset+op.Count
	switch {
	case s >= bs && e <= be:
		ns := op.mapIndex(s)
		return ns, ns + (e - s), true
	case e <= bs || s >= be:
		if op.NewOffset > s && op.NewOffset < e {
			return 0, 0, false
		}
		ns := op.mapIndex(s)
		return ns, ns + (e - s), true
	}
	return 0, 0, false
}

// patchHunkSpans lays out a patch's hunks with their post-image lengths
// for boundary mapping.
func patchHunkSpans(p Patch) ([]absHunk, []int, bool) {
	hunks := toAbsHunks(p)
	posts := make([]int, len(hunks))
	for i, h := range hunks {
		post, ok := opPostLen(h.op, h.length)
		if !ok {
			return nil, nil, false
		}
		posts[i] = post
	}
	return hunks, posts, true
}

// mapPointThroughPatch maps a boundary position through a patch's length
// changes. Positions interior to a replaced slice do not map.
func mapPointThroughPatch(p int, hunks []absHunk, posts []int) (int, bool) {
	delta := 0
	for i, h := range hunks {
		if p <= h.start {
			return p + delta, true
		}
		if p < h.end() {
			return 0, false
		}
		delta += posts[i] - h.length
	}
	return p + delta, true
}

// rebasePatchMove adjusts the patch's hunks through the move's
// permutation and the move's three boundaries through the patch's length
// changes. A hunk straddling a moved-block boundary, or a move boundary
// interior to a replaced slice, conflicts.
func rebasePatchMove(a, b Operation, opt *RebaseOptions) (Operation, Operation, bool) {
	p, m := a.(Patch), b.(Move)

	hunks, posts, ok := patchHunkSpans(p)
	if !ok {
		return nil, nil, false
	}

	// Patch side: relocate each hunk.
	remapped := make([]absHunk, len(hunks))
	for i, h := range hunks {
		var ns, ne int
		if h.length == 0 {
			ns = m.mapIndex(h.start)
			ne = ns
		} else {
			ns, ne, ok = m.mapRange(h.start, h.end())
			if !ok {
				return nil, nil, false
			}
		}
		remapped[i] = absHunk{start: ns, length: ne - ns, op: h.op}
	}
	sort.SliceStable(remapped, func(i, j int) bool { return remapped[i].start < remapped[j].start })
	ra, ok := fromAbsHunks(remapped)
	if !ok {
		return nil, nil, false
	}

	// Move side: recompute the three boundaries independently, growing
	// the count by the length changes of hunks inside the moved block.
	s, e := m.Offset, m.Offset+m.Count
	ns, ok1 := mapPointThroughPatch(s, hunks, posts)
	ne, ok2 := mapPointThroughPatch(e, hunks, posts)
	nd, ok3 := mapPointThroughPatch(m.NewOffset, hunks, posts)
	if !ok1 || !ok2 || !ok3 || ne < ns {
		return nil, nil, false
	}
	return ra, Move{Offset: ns, Count: ne - ns, NewOffset: nd}, true
}

// rebasePatchMap: a broadcast rewrite survives a structural edit
// unchanged, provided the structural side re-applies the rewrite to any
// content it inserts, so that both paths agree on new elements.
func rebasePatchMap(a, b Operation, opt *RebaseOptions) (Operation, Operation, bool) {
	p, m := a.(Patch), b.(Map)
	out := make([]Hunk, len(p.Hunks))
	for i, h := range p.Hunks {
		switch sub := h.Op.(type) {
		case Set:
			mapped, err := m.Apply(sub.Value)
			if err != nil {
				return nil, nil, false
			}
			out[i] = Hunk{Offset: h.Offset, Length: h.Length, Op: Set{Value: mapped}}
		case Map:
			ri, rm, ok := Rebase(sub.Op, m.Op, &RebaseOptions{Conflictless: opt.Conflictless})
			if !ok || !opEqual(rm, m.Op) {
				return nil, nil, false
			}
			out[i] = Hunk{Offset: h.Offset, Length: h.Length, Op: Map{Op: ri}}
		default:
			// Other hunk kinds (nested Patch, Move) are not paired here;
			// in conflictless mode the harness resolves them through the
			// Set-of-post-state fallback.
			return nil, nil, false
		}
	}
	return Patch{Hunks: out}, m, true
}

func rebaseObjObj(a, b Operation, opt *RebaseOptions) (Operation, Operation, bool) {
	ao, bo := a.(ObjApply), b.(ObjApply)
	if ao.Key != bo.Key {
		// Edits under different keys commute.
		return a, b, true
	}
	sub := &RebaseOptions{Conflictless: opt.Conflictless}
	if opt.HasDoc {
		if m, ok := opt.Doc.(map[string]any); ok {
			sub.HasDoc = true
			if v, exists := m[ao.Key]; exists {
				sub.Doc = v
			} else {
				sub.Doc = Missing
			}
		}
	}
	ra, rb, ok := Rebase(ao.Op, bo.Op, sub)
	if !ok {
		return nil, nil, false
	}
	return ObjApply{Key: ao.Key, Op: ra}, ObjApply{Key: bo.Key, Op: rb}, true
}

// rebaseListPair threads each element of one list through the other,
// advancing the conflictless pre-state as it walks.
func rebaseListPair(a, b List, opt *RebaseOptions) (Operation, Operation, bool) {
	bCur := b.Ops
	doc, hasDoc := opt.Doc, opt.HasDoc
	aOut := make([]Operation, 0, len(a.Ops))
	for _, ai := range a.Ops {
		sub := &RebaseOptions{Conflictless: opt.Conflictless, Doc: doc, HasDoc: hasDoc}
		ra, rbs, ok := rebaseOpList(ai, bCur, sub)
		if !ok {
			return nil, nil, false
		}
		aOut = append(aOut, ra)
		bCur = rbs
		if hasDoc {
			next, err := ai.Apply(doc)
			if err != nil {
				hasDoc = false
			} else {
				doc = next
			}
		}
	}
	return List{Ops: aOut}.Simplify(), List{Ops: bCur}.Simplify(), true
}

// rebaseOpList rebases a single operation across a sequence of operations
// applied one after another, returning the rebased operation and the
// sequence rebased over x.
func rebaseOpList(x Operation, ops []Operation, opt *RebaseOptions) (Operation, []Operation, bool) {
	doc, hasDoc := opt.Doc, opt.HasDoc
	out := make([]Operation, 0, len(ops))
	for _, l := range ops {
		sub := &RebaseOptions{Conflictless: opt.Conflictless, Doc: doc, HasDoc: hasDoc}
		xn, ln, ok := Rebase(x, l, sub)
		if !ok {
			return nil, nil, false
		}
		out = append(out, ln)
		if hasDoc {
			next, err := l.Apply(doc)
			if err != nil {
				hasDoc = false
			} else {
				doc = next
			}
		}
		x = xn
	}
	return x, out, true
}
