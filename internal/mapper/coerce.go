package mapper

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/triage-ai/palisade/services/agent_gateway/internal/registry"
)

var (
	errNotNumeric   = errors.New("not a base-10 integer")
	errFractional   = errors.New("number has a fractional part")
	errNotScalar    = errors.New("value is not a scalar")
	errNestedList   = errors.New("nested lists are not supported")
	errObject       = errors.New("objects are not supported")
	errUnsupportedT = errors.New("unsupported parameter type")
)

// truthyStrings are the spellings that coerce to true; any other string
// coerces to false.
var truthyStrings = map[string]bool{"true": true, "1": true, "yes": true, "on": true}

// Coerce converts v to the Go representation of t:
// string, int64, bool or []string.
// Null input yields (nil, nil): an unset value is not an error.
func Coerce(name string, v registry.Value, t registry.ParamType) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	var (
		out any
		err error
	)
	switch {
	case v.Kind() == registry.KindObject:
		err = errObject
	case t == registry.TypeArray:
		out, err = coerceArray(v)
	case t == registry.TypeInteger:
		out, err = coerceInteger(v)
	case t == registry.TypeBoolean:
		out = coerceBoolean(v)
	case t == registry.TypeString:
		out, err = coerceString(v)
	default:
		err = errUnsupportedT
	}
	if err != nil {
		return nil, &TypeCoercionError{Parameter: name, Raw: v, Target: t, Err: err}
	}
	return out, nil
}

func coerceArray(v registry.Value) ([]string, error) {
	if items, ok := v.Items(); ok {
		out := make([]string, 0, len(items))
		for _, item := range items {
			if item.IsNull() {
				continue
			}
			if item.Kind() == registry.KindList {
				return nil, errNestedList
			}
			s, err := coerceString(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	}
	if s, ok := v.Str(); ok {
		if !strings.Contains(s, ",") {
			return []string{s}, nil
		}
		// Empty segments are kept: "s3,,ebs" is three items.
		parts := strings.Split(s, ",")
		for i, p := range parts {
			parts[i] = strings.TrimSpace(p)
		}
		return parts, nil
	}
	s, err := coerceString(v)
	if err != nil {
		return nil, err
	}
	return []string{s}, nil
}

func coerceInteger(v registry.Value) (int64, error) {
	switch v.Kind() {
	case registry.KindInteger:
		n, _ := v.Int()
		return n, nil
	case registry.KindFloat:
		f, _ := v.Float()
		if f != math.Trunc(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
			return 0, errFractional
		}
		return int64(f), nil
	case registry.KindString:
		s, _ := v.Str()
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, errNotNumeric
		}
		return n, nil
	default:
		return 0, errNotNumeric
	}
}

func coerceBoolean(v registry.Value) bool {
	switch v.Kind() {
	case registry.KindBoolean:
		b, _ := v.Bool()
		return b
	case registry.KindString:
		s, _ := v.Str()
		return truthyStrings[strings.ToLower(strings.TrimSpace(s))]
	case registry.KindInteger:
		n, _ := v.Int()
		return n != 0
	case registry.KindFloat:
		f, _ := v.Float()
		return f != 0
	case registry.KindList:
		items, _ := v.Items()
		return len(items) > 0
	default:
		return false
	}
}

func coerceString(v registry.Value) (string, error) {
	switch v.Kind() {
	case registry.KindString:
		s, _ := v.Str()
		return s, nil
	case registry.KindInteger:
		n, _ := v.Int()
		return strconv.FormatInt(n, 10), nil
	case registry.KindFloat:
		f, _ := v.Float()
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	case registry.KindBoolean:
		b, _ := v.Bool()
		return strconv.FormatBool(b), nil
	default:
		return "", fmt.Errorf("%w: %s", errNotScalar, v.Kind())
	}
}
