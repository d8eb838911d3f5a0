package ot

import (
	"fmt"
	"sort"
	"strings"
)

// Hunk pairs a contiguous slice of a sequence with a sub-operation. Offset
// is the gap from the end of the previous hunk (or from the start of the
// document for the first hunk); Length is the size of the covered slice in
// the pre-image. The sub-operation receives the slice and produces its
// replacement, which may have a different length.
type Hunk struct {
	Offset int
	Length int
	Op     Operation
}

// Patch is the canonical sequence operation: an ordered, non-overlapping
// list of hunks in gap form. Splice and element-wise Apply are represented
// as special cases of Patch.
type Patch struct {
	Hunks []Hunk
}

// Splice builds the operation that removes length elements at offset and
// inserts value in their place. A zero length is a pure insertion; an
// empty value is a pure deletion.
func Splice(offset, length int, value any) Patch {
	return Patch{Hunks: []Hunk{{Offset: offset, Length: length, Op: Set{Value: value}}}}
}

// ApplyAt builds the operation that applies op to the single element at
// index i. The sub-operation is lifted elementwise over the one-element
// slice.
func ApplyAt(i int, op Operation) Patch {
	return Patch{Hunks: []Hunk{{Offset: i, Length: 1, Op: Map{Op: op}}}}
}

// Apply builds the operation that applies each mapped operation to the
// element at its index.
func Apply(ops map[int]Operation) Patch {
	indices := make([]int, 0, len(ops))
	for i := range ops {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	hunks := make([]Hunk, 0, len(indices))
	pos := 0
	for _, i := range indices {
		hunks = append(hunks, Hunk{Offset: i - pos, Length: 1, Op: Map{Op: ops[i]}})
		pos = i + 1
	}
	return Patch{Hunks: hunks}
}

func (op Patch) Apply(doc any) (any, error) {
	n, ok := seqLen(doc)
	if !ok {
		return nil, fmt.Errorf("patch: document %s is not a sequence", inspectValue(doc))
	}
	pos := 0
	parts := make([]any, 0, 2*len(op.Hunks)+1)
	for i, h := range op.Hunks {
		if h.Offset < 0 || h.Length < 0 {
			return nil, fmt.Errorf("patch: malformed hunk %d", i)
		}
		start := pos + h.Offset
		end := start + h.Length
		if end > n {
			return nil, fmt.Errorf("patch: hunk %d spans [%d,%d) beyond document length %d", i, start, end, n)
		}
		parts = append(parts, seqSlice(doc, pos, start))
		rep, err := h.Op.Apply(seqSlice(doc, start, end))
		if err != nil {
			return nil, fmt.Errorf("patch hunk %d: %w", i, err)
		}
		parts = append(parts, rep)
		pos = end
	}
	parts = append(parts, seqSlice(doc, pos, n))
	return seqConcat(doc, parts)
}

// Simplify drops hunks whose sub-operation is the identity, merging their
// gaps, and simplifies the remaining sub-operations. An empty patch is
// NoOp.
func (op Patch) Simplify() Operation {
	var hunks []Hunk
	carry := 0
	for _, h := range op.Hunks {
		sub := h.Op.Simplify()
		if isIdentityHunk(h.Length, sub) {
			carry += h.Offset + h.Length
			continue
		}
		hunks = append(hunks, Hunk{Offset: h.Offset + carry, Length: h.Length, Op: sub})
		carry = 0
	}
	if len(hunks) == 0 {
		return NoOp{}
	}
	return Patch{Hunks: hunks}
}

// isIdentityHunk reports whether a hunk with the given pre-length and
// simplified sub-operation leaves its slice untouched.
func isIdentityHunk(length int, sub Operation) bool {
	switch s := sub.(type) {
	case NoOp:
		return true
	case Set:
		if length != 0 {
			return false
		}
		n, ok := seqLen(s.Value)
		return ok && n == 0
	}
	return false
}

func (op Patch) Inverse(doc any) (Operation, error) {
	n, ok := seqLen(doc)
	if !ok {
		return nil, fmt.Errorf("patch: document %s is not a sequence", inspectValue(doc))
	}
	pos := 0
	hunks := make([]Hunk, 0, len(op.Hunks))
	for i, h := range op.Hunks {
		start := pos + h.Offset
		end := start + h.Length
		if end > n {
			return nil, fmt.Errorf("patch: hunk %d spans [%d,%d) beyond document length %d", i, start, end, n)
		}
		slice := seqSlice(doc, start, end)
		inv, err := h.Op.Inverse(slice)
		if err != nil {
			return nil, fmt.Errorf("patch hunk %d: %w", i, err)
		}
		rep, err := h.Op.Apply(slice)
		if err != nil {
			return nil, fmt.Errorf("patch hunk %d: %w", i, err)
		}
		postLen, ok := seqLen(rep)
		if !ok {
			return nil, fmt.Errorf("patch hunk %d: replacement %s is not a sequence", i, inspectValue(rep))
		}
		// Gaps are untouched regions, so their sizes carry over; the hunk
		// length becomes the post-image length.
		hunks = append(hunks, Hunk{Offset: h.Offset, Length: postLen, Op: inv})
		pos = end
	}
	return Patch{Hunks: hunks}, nil
}

func (op Patch) Kind() string { return KindPatch }

func (op Patch) Inspect() string {
	var b strings.Builder
	b.WriteString("<sequences.PATCH")
	for _, h := range op.Hunks {
		fmt.Fprintf(&b, " +%dx%d", h.Offset, h.Length)
		if set, ok := h.Op.(Set); ok {
			fmt.Fprintf(&b, " %s", inspectValue(set.Value))
		} else {
			fmt.Fprintf(&b, " %s", h.Op.Inspect())
		}
	}
	b.WriteString(">")
	return b.String()
}

// Move removes Count elements starting at Offset and reinserts them so
// that their leading element sits at NewOffset, measured in the
// pre-removal indexing. NewOffset equal to Offset or Offset+Count leaves
// the sequence unchanged.
type Move struct {
	Offset    int
	Count     int
	NewOffset int
}

func (op Move) Apply(doc any) (any, error) {
	n, ok := seqLen(doc)
	if !ok {
		return nil, fmt.Errorf("move: document %s is not a sequence", inspectValue(doc))
	}
	if op.Offset < 0 || op.Count < 0 || op.Offset+op.Count > n {
		return nil, fmt.Errorf("move: source [%d,%d) out of bounds for length %d", op.Offset, op.Offset+op.Count, n)
	}
	if op.NewOffset == op.Offset || op.NewOffset == op.Offset+op.Count {
		return doc, nil
	}
	block := seqSlice(doc, op.Offset, op.Offset+op.Count)
	switch {
	case op.NewOffset < op.Offset:
		if op.NewOffset < 0 {
			return nil, fmt.Errorf("move: destination %d out of bounds", op.NewOffset)
		}
		return seqConcat(doc, []any{
			seqSlice(doc, 0, op.NewOffset),
			block,
			seqSlice(doc, op.NewOffset, op.Offset),
			seqSlice(doc, op.Offset+op.Count, n),
		})
	case op.NewOffset > op.Offset+op.Count:
		if op.NewOffset > n {
			return nil, fmt.Errorf("move: destination %d out of bounds for length %d", op.NewOffset, n)
		}
		return seqConcat(doc, []any{
			seqSlice(doc, 0, op.Offset),
			seqSlice(doc, op.Offset+op.Count, op.NewOffset),
			block,
			seqSlice(doc, op.NewOffset, n),
		})
	default:
		return nil, fmt.Errorf("move: destination %d falls inside the moved range [%d,%d)", op.NewOffset, op.Offset, op.Offset+op.Count)
	}
}

func (op Move) Simplify() Operation {
	if op.Count == 0 || op.NewOffset == op.Offset || op.NewOffset == op.Offset+op.Count {
		return NoOp{}
	}
	return op
}

func (op Move) Inverse(any) (Operation, error) {
	switch {
	case op.NewOffset > op.Offset:
		return Move{Offset: op.NewOffset - op.Count, Count: op.Count, NewOffset: op.Offset}, nil
	case op.NewOffset < op.Offset:
		return Move{Offset: op.NewOffset, Count: op.Count, NewOffset: op.Offset + op.Count}, nil
	}
	return NoOp{}, nil
}

func (op Move) Kind() string { return KindMove }

func (op Move) Inspect() string {
	return fmt.Sprintf("<sequences.MOVE @%dx%d => @%d>", op.Offset, op.Count, op.NewOffset)
}

// mapIndex maps a pre-move position to its post-move position.
func (op Move) mapIndex(p int) int {
	s, e := op.Offset, op.Offset+op.Count
	switch {
	case p >= s && p < e:
		if op.NewOffset <= s {
			return op.NewOffset + (p - s)
		}
		return op.NewOffset - op.Count + (p - s)
	case op.NewOffset <= s && p >= op.NewOffset && p < s:
		return p + op.Count
	case op.NewOffset >= e && p >= e && p < op.NewOffset:
		return p - op.Count
	}
	return p
}

// Map broadcasts a sub-operation to every element of a sequence. For a
// string document each element is a one-rune string and the results are
// concatenated.
type Map struct {
	Op Operation
}

func (op Map) Apply(doc any) (any, error) {
	switch d := doc.(type) {
	case string:
		var b strings.Builder
		for _, r := range d {
			res, err := op.Op.Apply(string(r))
			if err != nil {
				return nil, fmt.Errorf("map: %w", err)
			}
			s, ok := res.(string)
			if !ok {
				return nil, fmt.Errorf("map: element result %s is not a string", inspectValue(res))
			}
			b.WriteString(s)
		}
		return b.String(), nil
	case []any:
		out := make([]any, len(d))
		for i, e := range d {
			res, err := op.Op.Apply(e)
			if err != nil {
				return nil, fmt.Errorf("map element %d: %w", i, err)
			}
			out[i] = res
		}
		return out, nil
	}
	return nil, fmt.Errorf("map: document %s is not a sequence", inspectValue(doc))
}

func (op Map) Simplify() Operation {
	sub := op.Op.Simplify()
	if _, ok := sub.(NoOp); ok {
		return NoOp{}
	}
	return Map{Op: sub}
}

// Inverse inverts the sub-operation against each element. When every
// element yields the same inverse the result stays a Map; otherwise it
// becomes a patch of per-element inverses.
func (op Map) Inverse(doc any) (Operation, error) {
	elems, ok := seqElems(doc)
	if !ok {
		return nil, fmt.Errorf("map: document %s is not a sequence", inspectValue(doc))
	}
	if len(elems) == 0 {
		return Map{Op: op.Op}, nil
	}
	invs := make([]Operation, len(elems))
	uniform := true
	for i, e := range elems {
		inv, err := op.Op.Inverse(e)
		if err != nil {
			return nil, fmt.Errorf("map element %d: %w", i, err)
		}
		invs[i] = inv
		if i > 0 && !opEqual(invs[i], invs[0]) {
			uniform = false
		}
	}
	if uniform {
		return Map{Op: invs[0]}, nil
	}
	hunks := make([]Hunk, len(invs))
	for i, inv := range invs {
		hunks[i] = Hunk{Offset: 0, Length: 1, Op: Map{Op: inv}}
	}
	return Patch{Hunks: hunks}, nil
}

func (op Map) Kind() string { return KindMap }

func (op Map) Inspect() string { return fmt.Sprintf("<sequences.MAP %s>", op.Op.Inspect()) }

// Sequence helpers. Documents are either strings (treated as rune
// sequences) or []any.

func seqLen(d any) (int, bool) {
	switch s := d.(type) {
	case string:
		return len([]rune(s)), true
	case []any:
		return len(s), true
	}
	return 0, false
}

func seqSlice(d any, i, j int) any {
	switch s := d.(type) {
	case string:
		return string([]rune(s)[i:j])
	case []any:
		out := make([]any, j-i)
		copy(out, s[i:j])
		return out
	}
	return nil
}

// seqConcat joins parts into a sequence of the same kind as proto.
func seqConcat(proto any, parts []any) (any, error) {
	switch proto.(type) {
	case string:
		var b strings.Builder
		for _, p := range parts {
			s, ok := p.(string)
			if !ok {
				return nil, fmt.Errorf("expected string fragment, got %s", inspectValue(p))
			}
			b.WriteString(s)
		}
		return b.String(), nil
	case []any:
		var out []any
		for _, p := range parts {
			a, ok := p.([]any)
			if !ok {
				return nil, fmt.Errorf("expected array fragment, got %s", inspectValue(p))
			}
			out = append(out, a...)
		}
		if out == nil {
			out = []any{}
		}
		return out, nil
	}
	return nil, fmt.Errorf("document %s is not a sequence", inspectValue(proto))
}

// seqElems splits a sequence into elements: one-rune strings for a
// string document.
func seqElems(d any) ([]any, bool) {
	switch s := d.(type) {
	case string:
		rs := []rune(s)
		out := make([]any, len(rs))
		for i, r := range rs {
			out[i] = string(r)
		}
		return out, true
	case []any:
		return s, true
	}
	return nil, false
}
