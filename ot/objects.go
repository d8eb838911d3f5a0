package ot

import "fmt"

// ObjApply applies a sub-operation to the value under a single key of an
// object document. An absent key presents as the Missing sentinel to the
// sub-operation, and a sub-operation producing Missing removes the key,
// so key creation and removal are both expressed through ObjApply.
type ObjApply struct {
	Key string
	Op  Operation
}

// Put builds the operation that creates key with the given value.
func Put(key string, value any) ObjApply {
	return ObjApply{Key: key, Op: Set{Value: value}}
}

// Remove builds the operation that deletes key.
func Remove(key string) ObjApply {
	return ObjApply{Key: key, Op: Set{Value: Missing}}
}

func (op ObjApply) Apply(doc any) (any, error) {
	m, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("objapply: document %s is not an object", inspectValue(doc))
	}
	cur, exists := m[op.Key]
	if !exists {
		cur = Missing
	}
	res, err := op.Op.Apply(cur)
	if err != nil {
		return nil, fmt.Errorf("objapply %q: %w", op.Key, err)
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	if _, isMissing := res.(missingValue); isMissing {
		delete(out, op.Key)
	} else {
		out[op.Key] = res
	}
	return out, nil
}

func (op ObjApply) Simplify() Operation {
	sub := op.Op.Simplify()
	if _, ok := sub.(NoOp); ok {
		return NoOp{}
	}
	return ObjApply{Key: op.Key, Op: sub}
}

func (op ObjApply) Inverse(doc any) (Operation, error) {
	m, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("objapply: document %s is not an object", inspectValue(doc))
	}
	cur, exists := m[op.Key]
	if !exists {
		cur = Missing
	}
	inv, err := op.Op.Inverse(cur)
	if err != nil {
		return nil, fmt.Errorf("objapply %q: %w", op.Key, err)
	}
	return ObjApply{Key: op.Key, Op: inv}, nil
}

func (op ObjApply) Kind() string { return KindObjApply }

func (op ObjApply) Inspect() string {
	return fmt.Sprintf("<objects.APPLY %q %s>", op.Key, op.Op.Inspect())
}
