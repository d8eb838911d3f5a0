package ot

import "strings"

// AtomicCompose fuses "a then b" into a single operation. Returning false
// means no single-operation fusion exists; it is not a failure — Compose
// falls back to a List.
func AtomicCompose(a, b Operation) (Operation, bool) {
	if _, ok := a.(NoOp); ok {
		return b, true
	}
	if _, ok := b.(NoOp); ok {
		return a, true
	}
	// A following Set clobbers whatever came before it.
	if set, ok := b.(Set); ok {
		return set, true
	}
	if set, ok := a.(Set); ok {
		v, err := b.Apply(set.Value)
		if err != nil {
			return nil, false
		}
		return Set{Value: v}, true
	}

	switch left := a.(type) {
	case Math:
		if right, ok := b.(Math); ok {
			return mathCompose(left, right)
		}
	case Patch:
		if right, ok := b.(Patch); ok {
			return patchCompose(left, right)
		}
	case Map:
		if right, ok := b.(Map); ok {
			if fused, ok := AtomicCompose(left.Op, right.Op); ok {
				return Map{Op: fused}.Simplify(), true
			}
		}
	case ObjApply:
		if right, ok := b.(ObjApply); ok && left.Key == right.Key {
			if fused, ok := AtomicCompose(left.Op, right.Op); ok {
				return ObjApply{Key: left.Key, Op: fused}.Simplify(), true
			}
		}
	}
	// Moves never fuse with other sequence operations.
	return nil, false
}

// Compose combines "a then b" into one operation, producing a List when
// no atomic fusion exists.
func Compose(a, b Operation) Operation {
	if fused, ok := AtomicCompose(a, b); ok {
		return fused.Simplify()
	}
	return NewList(a, b).Simplify()
}

// mathCompose fuses two Math operations. Matching operators combine their
// operands by the operator's monoid; a handful of mixed-operator pairs
// also fuse.
func mathCompose(a, b Math) (Operation, bool) {
	if a.Operator == MathNot && b.Operator == MathNot {
		return NoOp{}, true
	}
	if a.Operator == b.Operator {
		switch a.Operator {
		case MathAdd, MathMult:
			ka, ok1 := numeric(a.Operand)
			kb, ok2 := numeric(b.Operand)
			if !ok1 || !ok2 {
				return nil, false
			}
			var r float64
			if a.Operator == MathAdd {
				r = ka + kb
			} else {
				r = ka * kb
			}
			return Math{Operator: a.Operator, Operand: numberLike(a.Operand, b.Operand, r)}.Simplify(), true
		case MathRot:
			ia, ma, errA := a.rotOperand()
			ib, mb, errB := b.rotOperand()
			if errA != nil || errB != nil || ma != mb {
				return nil, false
			}
			return Math{Operator: MathRot, Operand: []any{int((ia + ib) % ma), int(ma)}}.Simplify(), true
		case MathAnd, MathOr, MathXor:
			if ba, ok := a.Operand.(bool); ok {
				bb, ok := b.Operand.(bool)
				if !ok {
					return nil, false
				}
				var r bool
				switch a.Operator {
				case MathAnd:
					r = ba && bb
				case MathOr:
					r = ba || bb
				default:
					r = ba != bb
				}
				return Math{Operator: a.Operator, Operand: r}.Simplify(), true
			}
			ka, ok1 := integral(a.Operand)
			kb, ok2 := integral(b.Operand)
			if !ok1 || !ok2 {
				return nil, false
			}
			var r int64
			switch a.Operator {
			case MathAnd:
				r = ka & kb
			case MathOr:
				r = ka | kb
			default:
				r = ka ^ kb
			}
			return Math{Operator: a.Operator, Operand: int(r)}.Simplify(), true
		}
		return nil, false
	}

	// Mixed-operator fusions with equal operands.
	if !Equal(a.Operand, b.Operand) {
		return nil, false
	}
	switch {
	case a.Operator == MathAnd && b.Operator == MathOr:
		// Clearing then setting the same mask pins those bits.
		return Set{Value: b.Operand}, true
	case a.Operator == MathOr && b.Operator == MathXor:
		if kb, ok := b.Operand.(bool); ok {
			return Math{Operator: MathAnd, Operand: !kb}.Simplify(), true
		}
		k, ok := integral(b.Operand)
		if !ok {
			return nil, false
		}
		return Math{Operator: MathAnd, Operand: int(^k)}.Simplify(), true
	}
	return nil, false
}

// constProto picks the sequence kind two touching hunks merge into: at
// least one side must be a plain Set so the container kind is known.
func constProto(a, b Operation) (any, bool) {
	if s, ok := a.(Set); ok {
		return s.Value, true
	}
	if s, ok := b.(Set); ok {
		return s.Value, true
	}
	return nil, false
}

// hunkConstValue computes a hunk's replacement when it does not depend on
// the covered slice: a Set replaces outright, and a Map of a Set writes
// the same element regardless of input.
func hunkConstValue(op Operation, length int, proto any) (any, bool) {
	switch o := op.(type) {
	case Set:
		return o.Value, true
	case Map:
		s, ok := o.Op.(Set)
		if !ok {
			return nil, false
		}
		switch proto.(type) {
		case string:
			elem, ok := s.Value.(string)
			if !ok {
				return nil, false
			}
			return strings.Repeat(elem, length), true
		case []any:
			out := make([]any, length)
			for i := range out {
				out[i] = s.Value
			}
			return out, true
		}
	}
	return nil, false
}

// opPostLen computes the post-image length of a sub-operation over a
// slice of the given pre-image length, when that is statically known.
func opPostLen(op Operation, pre int) (int, bool) {
	switch o := op.(type) {
	case NoOp:
		return pre, true
	case Set:
		return seqLen(o.Value)
	case Map, Move:
		return pre, true
	case Patch:
		delta := 0
		for _, h := range o.Hunks {
			pl, ok := opPostLen(h.Op, h.Length)
			if !ok {
				return 0, false
			}
			delta += pl - h.Length
		}
		return pre + delta, true
	case List:
		cur := pre
		for _, sub := range o.Ops {
			next, ok := opPostLen(sub, cur)
			if !ok {
				return 0, false
			}
			cur = next
		}
		return cur, true
	}
	return 0, false
}

// absHunk is a patch hunk with an absolute start position.
type absHunk struct {
	start  int
	length int
	op     Operation
}

func (h absHunk) end() int { return h.start + h.length }

func toAbsHunks(p Patch) []absHunk {
	out := make([]absHunk, 0, len(p.Hunks))
	pos := 0
	for _, h := range p.Hunks {
		out = append(out, absHunk{start: pos + h.Offset, length: h.Length, op: h.Op})
		pos += h.Offset + h.Length
	}
	return out
}

func fromAbsHunks(hunks []absHunk) (Patch, bool) {
	out := make([]Hunk, 0, len(hunks))
	pos := 0
	for _, h := range hunks {
		if h.start < pos {
			return Patch{}, false
		}
		out = append(out, Hunk{Offset: h.start - pos, Length: h.length, Op: h.op})
		pos = h.start + h.length
	}
	return Patch{Hunks: out}, true
}

// patchCompose fuses "a then b" for two patches. Each hunk of b is
// positioned in a's post-image: hunks landing in untouched gaps slot in
// as new hunks, hunks landing inside a replaced region edit the
// replacement in place, and hunks straddling a replacement boundary defeat
// fusion.
func patchCompose(a, b Patch) (Operation, bool) {
	type workHunk struct {
		absHunk
		origPost   int // post-image length in a's output, fixed
		innerShift int // length drift inside a Set replacement from absorbed b hunks
	}

	work := make([]*workHunk, 0, len(a.Hunks))
	for _, h := range toAbsHunks(a) {
		post, ok := opPostLen(h.op, h.length)
		if !ok {
			return nil, false
		}
		work = append(work, &workHunk{absHunk: h, origPost: post})
	}

	for _, bh := range toAbsHunks(b) {
		placed := false
		delta := 0
		for idx := 0; idx < len(work) && !placed; idx++ {
			h := work[idx]
			hs := h.start + delta // h's replacement span in a's post-image
			he := hs + h.origPost
			switch {
			case bh.end() <= hs && !(bh.start >= hs && bh.end() <= he):
				// Lands in the gap before h.
				nh := &workHunk{absHunk: absHunk{start: bh.start - delta, length: bh.length, op: bh.op}}
				post, ok := opPostLen(nh.op, nh.length)
				if !ok {
					return nil, false
				}
				nh.origPost = post
				work = append(work[:idx], append([]*workHunk{nh}, work[idx:]...)...)
				placed = true
			case bh.start >= he:
				delta += h.origPost - h.length
			case bh.start >= hs && bh.end() <= he:
				// Lands inside h's replacement.
				if set, ok := h.op.(Set); ok {
					o := bh.start - hs + h.innerShift
					vn, vok := seqLen(set.Value)
					if !vok || o < 0 || o+bh.length > vn {
						return nil, false
					}
					slice := seqSlice(set.Value, o, o+bh.length)
					rep, err := bh.op.Apply(slice)
					if err != nil {
						return nil, false
					}
					repLen, rok := seqLen(rep)
					if !rok {
						return nil, false
					}
					patched, err := seqConcat(set.Value, []any{
						seqSlice(set.Value, 0, o),
						rep,
						seqSlice(set.Value, o+bh.length, vn),
					})
					if err != nil {
						return nil, false
					}
					h.op = Set{Value: patched}
					h.innerShift += repLen - bh.length
					placed = true
					break
				}
				// Exact cover of a non-Set replacement: fuse the sub-ops.
				if bh.start == hs && bh.end() == he && h.innerShift == 0 {
					fused, ok := AtomicCompose(h.op, bh.op)
					if !ok {
						return nil, false
					}
					post, ok := opPostLen(fused, h.length)
					if !ok {
						return nil, false
					}
					h.op = fused
					h.origPost = post
					placed = true
					break
				}
				return nil, false
			default:
				// Straddles a replacement boundary.
				return nil, false
			}
		}
		if !placed {
			nh := &workHunk{absHunk: absHunk{start: bh.start - delta, length: bh.length, op: bh.op}}
			post, ok := opPostLen(nh.op, nh.length)
			if !ok {
				return nil, false
			}
			nh.origPost = post
			work = append(work, nh)
		}
	}

	// Canonicalize: merge touching hunks whose replacements are
	// statically known (a plain Set, or an element-wise Set whose output
	// doesn't depend on the slice) into a single splice.
	var merged []absHunk
	for _, h := range work {
		if len(merged) > 0 {
			last := &merged[len(merged)-1]
			if last.end() == h.start {
				proto, hasProto := constProto(last.op, h.op)
				if hasProto {
					lv, lok := hunkConstValue(last.op, last.length, proto)
					cv, cok := hunkConstValue(h.op, h.length, proto)
					if lok && cok {
						v, err := seqConcat(proto, []any{lv, cv})
						if err == nil {
							last.length += h.length
							last.op = Set{Value: v}
							continue
						}
					}
				}
			}
		}
		merged = append(merged, h.absHunk)
	}

	p, ok := fromAbsHunks(merged)
	if !ok {
		return nil, false
	}
	return p.Simplify(), true
}
