package ot

import (
	"encoding/json"
	"fmt"
)

// The serialized form is self-describing JSON: every operation carries a
// "_type" tag naming its family and kind, plus its declared fields.
// Decode(Encode(op)) reproduces op for every operation the algebra
// builds.

const missingTag = "values.MISSING"

// Encode serializes an operation.
func Encode(op Operation) ([]byte, error) {
	return json.Marshal(op)
}

// Decode deserializes an operation, dispatching on its "_type" tag
// through the registry.
func Decode(data []byte) (Operation, error) {
	var head struct {
		Type string `json:"_type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode operation: %w", err)
	}
	dec, ok := registry[head.Type]
	if !ok {
		return nil, fmt.Errorf("decode operation: unknown type %q", head.Type)
	}
	op, err := dec(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", head.Type, err)
	}
	return op, nil
}

type decodeFunc func(data []byte) (Operation, error)

// registry maps a serialized "_type" tag to its decoder.
var registry map[string]decodeFunc

func init() {
	registry = map[string]decodeFunc{
		KindNoOp:     decodeNoOp,
		KindSet:      decodeSet,
		KindMath:     decodeMath,
		KindPatch:    decodePatch,
		KindMove:     decodeMove,
		KindMap:      decodeMap,
		KindList:     decodeList,
		KindObjApply: decodeObjApply,
	}
}

// encodeValue wraps the Missing sentinel in a tagged object; every other
// document value serializes as plain JSON.
func encodeValue(v any) any {
	if _, ok := v.(missingValue); ok {
		return map[string]any{"_type": missingTag}
	}
	return v
}

func decodeValue(raw json.RawMessage) (any, error) {
	var head struct {
		Type string `json:"_type"`
	}
	if json.Unmarshal(raw, &head) == nil && head.Type == missingTag {
		return Missing, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func (NoOp) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"_type": KindNoOp})
}

func decodeNoOp([]byte) (Operation, error) { return NoOp{}, nil }

func (op Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  string `json:"_type"`
		Value any    `json:"new_value"`
	}{KindSet, encodeValue(op.Value)})
}

func decodeSet(data []byte) (Operation, error) {
	var wire struct {
		Value json.RawMessage `json:"new_value"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	v, err := decodeValue(wire.Value)
	if err != nil {
		return nil, err
	}
	return Set{Value: v}, nil
}

func (op Math) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     string `json:"_type"`
		Operator string `json:"operator"`
		Operand  any    `json:"operand"`
	}{KindMath, op.Operator, op.Operand})
}

func decodeMath(data []byte) (Operation, error) {
	var wire struct {
		Operator string `json:"operator"`
		Operand  any    `json:"operand"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	return Math{Operator: wire.Operator, Operand: wire.Operand}, nil
}

func (op Patch) MarshalJSON() ([]byte, error) {
	type wireHunk struct {
		Offset int       `json:"offset"`
		Length int       `json:"length"`
		Op     Operation `json:"op"`
	}
	hunks := make([]wireHunk, len(op.Hunks))
	for i, h := range op.Hunks {
		hunks[i] = wireHunk{Offset: h.Offset, Length: h.Length, Op: h.Op}
	}
	return json.Marshal(struct {
		Type  string     `json:"_type"`
		Hunks []wireHunk `json:"hunks"`
	}{KindPatch, hunks})
}

func decodePatch(data []byte) (Operation, error) {
	var wire struct {
		Hunks []struct {
			Offset int             `json:"offset"`
			Length int             `json:"length"`
			Op     json.RawMessage `json:"op"`
		} `json:"hunks"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	hunks := make([]Hunk, len(wire.Hunks))
	for i, h := range wire.Hunks {
		sub, err := Decode(h.Op)
		if err != nil {
			return nil, fmt.Errorf("hunk %d: %w", i, err)
		}
		hunks[i] = Hunk{Offset: h.Offset, Length: h.Length, Op: sub}
	}
	return Patch{Hunks: hunks}, nil
}

func (op Move) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      string `json:"_type"`
		Offset    int    `json:"offset"`
		Count     int    `json:"count"`
		NewOffset int    `json:"new_offset"`
	}{KindMove, op.Offset, op.Count, op.NewOffset})
}

func decodeMove(data []byte) (Operation, error) {
	var wire struct {
		Offset    int `json:"offset"`
		Count     int `json:"count"`
		NewOffset int `json:"new_offset"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	return Move{Offset: wire.Offset, Count: wire.Count, NewOffset: wire.NewOffset}, nil
}

func (op Map) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string    `json:"_type"`
		Op   Operation `json:"op"`
	}{KindMap, op.Op})
}

func decodeMap(data []byte) (Operation, error) {
	var wire struct {
		Op json.RawMessage `json:"op"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	sub, err := Decode(wire.Op)
	if err != nil {
		return nil, err
	}
	return Map{Op: sub}, nil
}

func (op List) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string      `json:"_type"`
		Ops  []Operation `json:"ops"`
	}{KindList, op.Ops})
}

func decodeList(data []byte) (Operation, error) {
	var wire struct {
		Ops []json.RawMessage `json:"ops"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	ops := make([]Operation, len(wire.Ops))
	for i, raw := range wire.Ops {
		sub, err := Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		ops[i] = sub
	}
	return List{Ops: ops}, nil
}

func (op ObjApply) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string    `json:"_type"`
		Key  string    `json:"key"`
		Op   Operation `json:"op"`
	}{KindObjApply, op.Key, op.Op})
}

func decodeObjApply(data []byte) (Operation, error) {
	var wire struct {
		Key string          `json:"key"`
		Op  json.RawMessage `json:"op"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	sub, err := Decode(wire.Op)
	if err != nil {
		return nil, err
	}
	return ObjApply{Key: wire.Key, Op: sub}, nil
}

// inspectValue renders a document value for diagnostics.
func inspectValue(v any) string {
	switch x := v.(type) {
	case missingValue:
		return "missing"
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", x)
	case bool, int, int64, float64:
		return fmt.Sprintf("%v", x)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
