package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInteger
	KindFloat
	KindBoolean
	KindList
	// KindObject carries a JSON object as compact text. No parameter type
	// accepts it.
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBoolean:
		return "boolean"
	case KindList:
		return "list"
	case KindObject:
		return "object"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is an untyped parameter value as it arrives at the boundary
// (event parameter, registry default, MCP argument). The zero Value is null.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
	list []Value
}

func Null() Value               { return Value{} }
func String(s string) Value     { return Value{kind: KindString, s: s} }
func Integer(i int64) Value     { return Value{kind: KindInteger, i: i} }
func Float(f float64) Value     { return Value{kind: KindFloat, f: f} }
func Boolean(b bool) Value      { return Value{kind: KindBoolean, b: b} }
func List(items ...Value) Value { return Value{kind: KindList, list: append([]Value(nil), items...)} }

// Object wraps the JSON text of an object.
func Object(raw string) Value { return Value{kind: KindObject, s: raw} }

// Strings builds a list of string values.
func Strings(items ...string) Value {
	list := make([]Value, len(items))
	for i, s := range items {
		list[i] = String(s)
	}
	return Value{kind: KindList, list: list}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string payload when v is a string.
func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

// Int returns the integer payload when v is an integer.
func (v Value) Int() (int64, bool) { return v.i, v.kind == KindInteger }

// Float returns the float payload when v is a float.
func (v Value) Float() (float64, bool) { return v.f, v.kind == KindFloat }

// Bool returns the boolean payload when v is a boolean.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBoolean }

// Items returns a copy of the list payload when v is a list.
func (v Value) Items() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return append([]Value(nil), v.list...), true
}

// Interface converts v to the plain Go value encoding/json would produce.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInteger:
		return v.i
	case KindFloat:
		return v.f
	case KindBoolean:
		return v.b
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	case KindObject:
		return json.RawMessage(v.s)
	default:
		return nil
	}
}

// Equal reports whether two values hold the same variant and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString, KindObject:
		return v.s == o.s
	case KindInteger:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindBoolean:
		return v.b == o.b
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
	}
	return true
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString:
		return strconv.Quote(v.s)
	case KindObject:
		return v.s
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(v.Interface())
	}
}

// ValueOf converts a decoded JSON/YAML value or a Go scalar into a Value.
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Boolean(t), nil
	case int:
		return Integer(int64(t)), nil
	case int32:
		return Integer(int64(t)), nil
	case int64:
		return Integer(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return Null(), fmt.Errorf("ValueOf: %d overflows int64", t)
		}
		return Integer(int64(t)), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Integer(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Null(), fmt.Errorf("ValueOf: number %q: %w", t.String(), err)
		}
		return Float(f), nil
	case []string:
		return Strings(t...), nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			iv, err := ValueOf(item)
			if err != nil {
				return Null(), err
			}
			items[i] = iv
		}
		return Value{kind: KindList, list: items}, nil
	case map[string]any:
		raw, err := json.Marshal(t)
		if err != nil {
			return Null(), fmt.Errorf("ValueOf: object: %w", err)
		}
		return Object(string(raw)), nil
	default:
		return Null(), fmt.Errorf("ValueOf: unsupported type %T", x)
	}
}

// MustValueOf is ValueOf for static tables; it panics on unsupported input.
func MustValueOf(x any) Value {
	v, err := ValueOf(x)
	if err != nil {
		panic(err)
	}
	return v
}

// UnmarshalJSON decodes any JSON value. Objects decode to KindObject and
// are rejected later, per parameter, by coercion.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}
