package mapper

import (
	"encoding/json"
	"sort"
)

// Arguments maps canonical parameter names to coerced values. Values are
// always string, int64, bool or []string. Each Map call builds a fresh one.
type Arguments map[string]any

// String returns a string argument.
func (a Arguments) String(name string) (string, bool) {
	s, ok := a[name].(string)
	return s, ok
}

// StringOr returns a string argument, or def when it is unset or empty.
func (a Arguments) StringOr(name, def string) string {
	if s, ok := a.String(name); ok && s != "" {
		return s
	}
	return def
}

// Int returns an integer argument.
func (a Arguments) Int(name string) (int64, bool) {
	n, ok := a[name].(int64)
	return n, ok
}

// IntOr returns an integer argument or def.
func (a Arguments) IntOr(name string, def int64) int64 {
	if n, ok := a.Int(name); ok {
		return n
	}
	return def
}

// Bool returns a boolean argument.
func (a Arguments) Bool(name string) (bool, bool) {
	b, ok := a[name].(bool)
	return b, ok
}

// BoolOr returns a boolean argument or def.
func (a Arguments) BoolOr(name string, def bool) bool {
	if b, ok := a.Bool(name); ok {
		return b
	}
	return def
}

// Strings returns a copy of an array argument.
func (a Arguments) Strings(name string) ([]string, bool) {
	list, ok := a[name].([]string)
	if !ok {
		return nil, false
	}
	return append([]string(nil), list...), true
}

// Names returns the argument names, sorted.
func (a Arguments) Names() []string {
	out := make([]string, 0, len(a))
	for k := range a {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy.
func (a Arguments) Clone() Arguments {
	out := make(Arguments, len(a))
	for k, v := range a {
		if list, ok := v.([]string); ok {
			v = append([]string(nil), list...)
		}
		out[k] = v
	}
	return out
}

// JSON encodes the arguments for a downstream call.
func (a Arguments) JSON() ([]byte, error) {
	return json.Marshal(map[string]any(a))
}
