package ot

import "sort"

// rbHunk is a working hunk during a patch/patch rebase. extra accumulates
// the net length change absorbed from the other side's contained hunks;
// appends collects replacement values swallowed from them, reinstated at
// the end of this hunk's own replacement so both sites converge.
type rbHunk struct {
	start    int
	length   int
	op       Operation
	origPost int
	extra    int
	appends  []any
}

func (h *rbHunk) end() int { return h.start + h.length }

// origDelta is the length change the hunk's original operation imposes.
func (h *rbHunk) origDelta() int { return h.origPost - h.length }

func (h *rbHunk) finalOp() (Operation, bool) {
	if len(h.appends) == 0 {
		return h.op, true
	}
	set, ok := h.op.(Set)
	if !ok {
		return nil, false
	}
	parts := append([]any{set.Value}, h.appends...)
	v, err := seqConcat(set.Value, parts)
	if err != nil {
		return nil, false
	}
	return Set{Value: v}, true
}

func toRbHunks(p Patch) ([]*rbHunk, bool) {
	abs := toAbsHunks(p)
	out := make([]*rbHunk, len(abs))
	for i, h := range abs {
		post, ok := opPostLen(h.op, h.length)
		if !ok {
			return nil, false
		}
		out[i] = &rbHunk{start: h.start, length: h.length, op: h.op, origPost: post}
	}
	return out, true
}

// rebasePatchPatch walks the hunks of two concurrent patches over the
// same pre-image, adjusting positions for each other's length changes and
// resolving interactions hunk pair by hunk pair.
func rebasePatchPatch(a, b Operation, opt *RebaseOptions) (Operation, Operation, bool) {
	wa, okA := toRbHunks(a.(Patch))
	wb, okB := toRbHunks(b.(Patch))
	if !okA || !okB {
		return nil, nil, false
	}

	var outA, outB []absHunk
	shiftA, shiftB := 0, 0
	failed := false

	emitA := func(h *rbHunk) {
		op, ok := h.finalOp()
		if !ok {
			failed = true
			return
		}
		outA = append(outA, absHunk{start: h.start + shiftA, length: h.length + h.extra, op: op})
		shiftB += h.origDelta()
		shiftA += h.extra
	}
	emitB := func(h *rbHunk) {
		op, ok := h.finalOp()
		if !ok {
			failed = true
			return
		}
		outB = append(outB, absHunk{start: h.start + shiftB, length: h.length + h.extra, op: op})
		shiftA += h.origDelta()
		shiftB += h.extra
	}
	// subOptions extracts the shared pre-state of an interacting hunk
	// pair for a sub-rebase.
	subOptions := func(start, end int) *RebaseOptions {
		sub := &RebaseOptions{Conflictless: opt.Conflictless}
		if opt.HasDoc {
			if n, ok := seqLen(opt.Doc); ok && start >= 0 && end <= n {
				sub.Doc = seqSlice(opt.Doc, start, end)
				sub.HasDoc = true
			}
		}
		return sub
	}

	i, j := 0, 0
	for i < len(wa) && j < len(wb) && !failed {
		A, B := wa[i], wb[j]

		// Concurrent insertions at the same point.
		if A.length == 0 && B.length == 0 && A.start == B.start {
			if opEqual(A.op, B.op) {
				shiftA += B.origDelta()
				shiftB += A.origDelta()
				i++
				j++
				continue
			}
			as, aIsSet := A.op.(Set)
			bs, bIsSet := B.op.(Set)
			if !aIsSet || !bIsSet || !opt.Conflictless {
				return nil, nil, false
			}
			// The insertion ranking higher in the total order ends up to
			// the right.
			if Compare(as.Value, bs.Value) < 0 {
				outA = append(outA, absHunk{start: A.start + shiftA, op: A.op})
				outB = append(outB, absHunk{start: B.start + shiftB + A.origPost, op: B.op})
			} else {
				outA = append(outA, absHunk{start: A.start + shiftA + B.origPost, op: A.op})
				outB = append(outB, absHunk{start: B.start + shiftB, op: B.op})
			}
			shiftA += B.origDelta()
			shiftB += A.origDelta()
			i++
			j++
			continue
		}

		switch {
		case A.end() <= B.start:
			emitA(A)
			i++
		case B.end() <= A.start:
			emitB(B)
			j++
		case A.start == B.start && A.end() == B.end():
			if !interactEqualRange(A, B, &outA, &outB, &shiftA, &shiftB, opt, subOptions) {
				return nil, nil, false
			}
			i++
			j++
		case B.start <= A.start && A.end() <= B.end():
			if !interactContained(A, B, &outA, &shiftA, opt) {
				return nil, nil, false
			}
			i++
		case A.start <= B.start && B.end() <= A.end():
			if !interactContained(B, A, &outB, &shiftB, opt) {
				return nil, nil, false
			}
			j++
		case A.start < B.start:
			// Partial overlap, A extending left of B: A keeps its left
			// remainder; B survives on its own trailing range, landing
			// just after A's replacement.
			if !opt.Conflictless {
				return nil, nil, false
			}
			av, aIsSet := A.op.(Set)
			if _, bIsSet := B.op.(Set); !aIsSet || !bIsSet || A.extra != 0 || len(A.appends) > 0 {
				return nil, nil, false
			}
			outA = append(outA, absHunk{start: A.start + shiftA, length: B.start - A.start, op: Set{Value: av.Value}})
			shiftB += A.origDelta()
			shiftA += B.start - A.end()
			wb[j] = &rbHunk{start: A.end(), length: B.end() - A.end(), op: B.op, origPost: B.origPost}
			i++
		default:
			// Partial overlap, B extending left of A.
			if !opt.Conflictless {
				return nil, nil, false
			}
			bv, bIsSet := B.op.(Set)
			if _, aIsSet := A.op.(Set); !bIsSet || !aIsSet || B.extra != 0 || len(B.appends) > 0 {
				return nil, nil, false
			}
			outB = append(outB, absHunk{start: B.start + shiftB, length: A.start - B.start, op: Set{Value: bv.Value}})
			shiftA += B.origDelta()
			shiftB += A.start - B.end()
			wa[i] = &rbHunk{start: B.end(), length: A.end() - B.end(), op: A.op, origPost: A.origPost}
			j++
		}
	}
	for ; i < len(wa) && !failed; i++ {
		emitA(wa[i])
	}
	for ; j < len(wb) && !failed; j++ {
		emitB(wb[j])
	}
	if failed {
		return nil, nil, false
	}

	sort.SliceStable(outA, func(x, y int) bool { return outA[x].start < outA[y].start })
	sort.SliceStable(outB, func(x, y int) bool { return outB[x].start < outB[y].start })
	ra, okA := fromAbsHunks(outA)
	rb, okB := fromAbsHunks(outB)
	if !okA || !okB {
		return nil, nil, false
	}
	return ra, rb, true
}

// interactEqualRange resolves two hunks covering exactly the same slice.
func interactEqualRange(A, B *rbHunk, outA, outB *[]absHunk, shiftA, shiftB *int, opt *RebaseOptions, subOptions func(int, int) *RebaseOptions) bool {
	defer func() {
		*shiftA += B.origDelta()
		*shiftB += A.origDelta()
	}()

	if opEqual(A.op, B.op) {
		// The same change was made on both sides; it only happens once.
		return true
	}
	as, aIsSet := A.op.(Set)
	bs, bIsSet := B.op.(Set)
	if aIsSet && bIsSet {
		if !opt.Conflictless {
			return false
		}
		// Same range replaced with different content: the higher-ranked
		// replacement wins, the loser rebases away.
		if Compare(as.Value, bs.Value) > 0 {
			*outA = append(*outA, absHunk{start: B.start + *shiftA, length: B.origPost, op: A.op})
		} else {
			*outB = append(*outB, absHunk{start: A.start + *shiftB, length: A.origPost, op: B.op})
		}
		return true
	}
	ra, rb, ok := Rebase(A.op, B.op, subOptions(A.start, A.end()))
	if !ok {
		return false
	}
	*outA = append(*outA, absHunk{start: B.start + *shiftA, length: B.origPost, op: ra})
	*outB = append(*outB, absHunk{start: A.start + *shiftB, length: A.origPost, op: rb})
	return true
}

// interactContained resolves an inner hunk strictly contained by outer.
// The inner side's output hunks go to innerOut with innerShift; the outer
// hunk stays active (it may contain further hunks) and accumulates the
// inner effect.
func interactContained(inner, outer *rbHunk, innerOut *[]absHunk, innerShift *int, opt *RebaseOptions) bool {
	switch outerOp := outer.op.(type) {
	case Set:
		switch innerOp := inner.op.(type) {
		case Set:
			// A replacement swallowed by a wider replacement. The outer
			// side reinstates the inner content after its own, and the
			// inner lands as an insertion just after the outer's text.
			if !opt.Conflictless {
				return false
			}
			if n, ok := seqLen(innerOp.Value); ok && n > 0 {
				*innerOut = append(*innerOut, absHunk{start: outer.start + *innerShift + outer.origPost, op: inner.op})
				outer.appends = append(outer.appends, innerOp.Value)
			}
			outer.extra += inner.origDelta()
			return true
		default:
			// An element-level edit whose target was replaced wholesale
			// rebases to nothing.
			outer.extra += inner.origDelta()
			return true
		}
	case Map:
		// An edit inside a broadcast-rewritten slice: the rewrite is
		// re-applied to the new content.
		innerSet, ok := inner.op.(Set)
		if !ok {
			return false
		}
		mapped, err := Map{Op: outerOp.Op}.Apply(innerSet.Value)
		if err != nil {
			return false
		}
		*innerOut = append(*innerOut, absHunk{start: inner.start + *innerShift, length: inner.length, op: Set{Value: mapped}})
		outer.extra += inner.origDelta()
		return true
	}
	return false
}
