// Package entity holds the domain types shared across the generation
// pipeline: the runtime-typed data tree, tracking records, templates, and
// the envelope assembled for a single generation request.
package entity

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the concrete type held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a tagged union over the JSON-like data shapes the merge engine,
// the expression sub-language, and the composite variable pool all walk.
// Every record fetched from the record store and every directive input is
// normalized into a Value before it reaches any of those components, so
// there is exactly one notion of "missing" (KindNull / not-found) in the
// system.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	obj  map[string]Value
	keys []string // insertion order, for deterministic canonical JSON
}

func Null() Value                { return Value{kind: KindNull} }
func NewBool(b bool) Value       { return Value{kind: KindBool, b: b} }
func NewNumber(n float64) Value  { return Value{kind: KindNumber, n: n} }
func NewString(s string) Value   { return Value{kind: KindString, s: s} }
func NewArray(vs []Value) Value  { return Value{kind: KindArray, arr: vs} }

// NewObject builds an object Value, preserving the order keys are
// inserted via the supplied slice (used for deterministic canonical JSON).
func NewObject(keys []string, vals map[string]Value) Value {
	return Value{kind: KindObject, obj: vals, keys: append([]string(nil), keys...)}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool)       { return v.b, v.kind == KindBool }
func (v Value) AsNumber() (float64, bool)  { return v.n, v.kind == KindNumber }
func (v Value) AsString() (string, bool)   { return v.s, v.kind == KindString }
func (v Value) AsArray() ([]Value, bool)   { return v.arr, v.kind == KindArray }
func (v Value) AsObject() (map[string]Value, bool) {
	return v.obj, v.kind == KindObject
}

// ObjectKeys returns the insertion-ordered key list for an object Value,
// or nil if v is not an object.
func (v Value) ObjectKeys() []string {
	if v.kind != KindObject {
		return nil
	}
	return v.keys
}

// Get resolves a dotted path ("Account.Owner.Email") against the tree,
// returning (Null, false) at the first missing segment or type mismatch.
func (v Value) Get(path string) (Value, bool) {
	if path == "" {
		return v, true
	}
	segs := strings.Split(path, ".")
	cur := v
	for _, seg := range segs {
		obj, ok := cur.AsObject()
		if !ok {
			return Null(), false
		}
		next, ok := obj[seg]
		if !ok {
			return Null(), false
		}
		cur = next
	}
	return cur, true
}

// Interface converts a Value into a plain Go value (map[string]any,
// []any, string, float64, bool, or nil) for interop with encoding/json
// and expr-lang environments.
func (v Value) Interface() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, e := range v.obj {
			out[k] = e.Interface()
		}
		return out
	default:
		return nil
	}
}

// FromInterface builds a Value tree from a decoded encoding/json value
// (map[string]any/[]any/string/float64/json.Number/bool/nil). Object keys
// are always sorted for determinism; the source's key order is not kept.
func FromInterface(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case bool:
		return NewBool(t)
	case float64:
		return NewNumber(t)
	case json.Number:
		f, _ := t.Float64()
		return NewNumber(f)
	case string:
		return NewString(t)
	case []any:
		vs := make([]Value, len(t))
		for i, e := range t {
			vs[i] = FromInterface(e)
		}
		return NewArray(vs)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		vals := make(map[string]Value, len(t))
		for k, e := range t {
			vals[k] = FromInterface(e)
		}
		return NewObject(keys, vals)
	default:
		return Null()
	}
}

// MarshalCanonicalJSON renders v as canonical JSON: object keys sorted
// lexicographically, numbers in shortest round-trip form, no insignificant
// whitespace. This is NOT the same as encoding/json.Marshal on a Go map,
// whose key order is not part of its contract.
func (v Value) MarshalCanonicalJSON() string {
	var sb strings.Builder
	v.writeCanonical(&sb)
	return sb.String()
}

func (v Value) writeCanonical(sb *strings.Builder) {
	switch v.kind {
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		if v.b {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case KindNumber:
		sb.WriteString(strconv.FormatFloat(v.n, 'g', -1, 64))
	case KindString:
		b, _ := json.Marshal(v.s)
		sb.Write(b)
	case KindArray:
		sb.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				sb.WriteByte(',')
			}
			e.writeCanonical(sb)
		}
		sb.WriteByte(']')
	case KindObject:
		keys := append([]string(nil), v.keys...)
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			sb.Write(kb)
			sb.WriteByte(':')
			v.obj[k].writeCanonical(sb)
		}
		sb.WriteByte('}')
	}
}

// UnmarshalJSONValue decodes raw JSON bytes into a Value tree.
func UnmarshalJSONValue(raw []byte) (Value, error) {
	var decoded any
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return Null(), fmt.Errorf("unmarshal value: %w", err)
	}
	return FromInterface(decoded), nil
}
