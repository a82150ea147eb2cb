package registry

import (
	"fmt"
	"strings"
)

// ParamType is the declared type of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array" // array of string
)

// ParseParamType parses a registry type name.
func ParseParamType(s string) (ParamType, error) {
	switch t := ParamType(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeString, TypeInteger, TypeBoolean, TypeArray:
		return t, nil
	default:
		return "", fmt.Errorf("unknown parameter type %q", s)
	}
}

// ParameterSpec declares one parameter of a tool.
// A null Default means the parameter has no default.
type ParameterSpec struct {
	Name        string
	Type        ParamType
	Required    bool
	Default     Value
	Description string
}

// HasDefault reports whether the parameter declares a non-null default.
func (p ParameterSpec) HasDefault() bool {
	return !p.Default.IsNull()
}

// ToolSignature is the parameter schema of one downstream tool.
// Parameters keep their declaration order.
type ToolSignature struct {
	Name        string
	Description string
	Parameters  []ParameterSpec
}

// Param returns the named parameter.
func (s ToolSignature) Param(name string) (ParameterSpec, bool) {
	for _, p := range s.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterSpec{}, false
}

// LocalName is the tool name without the gateway target prefix
// ("SecurityMCPTools___CheckNetworkSecurity" -> "CheckNetworkSecurity").
func (s ToolSignature) LocalName() string {
	return LocalToolName(s.Name)
}

// LocalToolName strips the "<target>___" prefix the gateway adds to tool names.
func LocalToolName(name string) string {
	if i := strings.LastIndex(name, "___"); i >= 0 {
		return name[i+3:]
	}
	return name
}

func (s ToolSignature) clone() ToolSignature {
	out := s
	out.Parameters = make([]ParameterSpec, len(s.Parameters))
	copy(out.Parameters, s.Parameters)
	for i := range out.Parameters {
		out.Parameters[i].Default = cloneValue(out.Parameters[i].Default)
	}
	return out
}

func cloneValue(v Value) Value {
	if v.kind != KindList {
		return v
	}
	items := make([]Value, len(v.list))
	for i, item := range v.list {
		items[i] = cloneValue(item)
	}
	v.list = items
	return v
}

// defaultMatchesType checks a default against its declared type.
func defaultMatchesType(t ParamType, v Value) bool {
	switch t {
	case TypeString:
		return v.kind == KindString
	case TypeInteger:
		return v.kind == KindInteger
	case TypeBoolean:
		return v.kind == KindBoolean
	case TypeArray:
		if v.kind != KindList {
			return false
		}
		for _, item := range v.list {
			if item.kind != KindString {
				return false
			}
		}
		return true
	}
	return false
}
