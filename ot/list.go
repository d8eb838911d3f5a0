package ot

import (
	"fmt"
	"strings"
)

// List applies its member operations in order. It is the fallback form
// Compose produces when two operations admit no single-operation fusion.
type List struct {
	Ops []Operation
}

// NewList builds a list, unwrapping any nested lists.
func NewList(ops ...Operation) List {
	var flat []Operation
	for _, op := range ops {
		if l, ok := op.(List); ok {
			flat = append(flat, l.Ops...)
			continue
		}
		flat = append(flat, op)
	}
	return List{Ops: flat}
}

func (op List) Apply(doc any) (any, error) {
	cur := doc
	for i, sub := range op.Ops {
		next, err := sub.Apply(cur)
		if err != nil {
			return nil, fmt.Errorf("list element %d: %w", i, err)
		}
		cur = next
	}
	return cur, nil
}

// Simplify simplifies every element, drops identities, and fuses adjacent
// elements wherever an atomic composition exists. A list that collapses
// to a single element returns that element; an empty list is NoOp.
func (op List) Simplify() Operation {
	var out []Operation
	for _, sub := range NewList(op.Ops...).Ops {
		s := sub.Simplify()
		if _, ok := s.(NoOp); ok {
			continue
		}
		for len(out) > 0 {
			fused, ok := AtomicCompose(out[len(out)-1], s)
			if !ok {
				break
			}
			out = out[:len(out)-1]
			s = fused.Simplify()
			if _, isNoOp := s.(NoOp); isNoOp {
				s = nil
				break
			}
		}
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return NoOp{}
	case 1:
		return out[0]
	}
	return List{Ops: out}
}

// Inverse replays the list forward to recover each element's pre-state,
// then reverses the inverted elements.
func (op List) Inverse(doc any) (Operation, error) {
	cur := doc
	invs := make([]Operation, len(op.Ops))
	for i, sub := range op.Ops {
		inv, err := sub.Inverse(cur)
		if err != nil {
			return nil, fmt.Errorf("list element %d: %w", i, err)
		}
		invs[len(op.Ops)-1-i] = inv
		cur, err = sub.Apply(cur)
		if err != nil {
			return nil, fmt.Errorf("list element %d: %w", i, err)
		}
	}
	return List{Ops: invs}, nil
}

func (op List) Kind() string { return KindList }

func (op List) Inspect() string {
	parts := make([]string, len(op.Ops))
	for i, sub := range op.Ops {
		parts[i] = sub.Inspect()
	}
	return fmt.Sprintf("<lists.LIST [%s]>", strings.Join(parts, " "))
}
