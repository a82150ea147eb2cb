package registry

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidCatalog is returned when the signatures, operation map and alias
// map are not mutually consistent.
var ErrInvalidCatalog = errors.New("invalid tool catalog")

// CatalogSpec is the raw material for a Catalog.
type CatalogSpec struct {
	Version    string
	Tools      []ToolSignature
	Operations map[string]string            // operation id -> tool name
	Aliases    map[string]map[string]string // tool name -> inbound name -> canonical name
}

// Catalog is the immutable tool registry shared by all mapping calls.
// Every accessor returns copies; nothing reachable from a Catalog is
// mutated after NewCatalog returns.
type Catalog struct {
	version    string
	order      []string
	tools      map[string]ToolSignature
	operations map[string]string
	aliases    map[string]map[string]string
}

// NewCatalog validates spec and builds a Catalog from a private copy of it.
//
// Checks:
//  1. tool names are unique and non-empty; parameter names unique per tool
//  2. parameter types are known and defaults match them
//  3. every operation resolves to a registered tool
//  4. every alias belongs to a registered tool and targets one of its parameters
//
// Canonical parameter names are always accepted as their own alias.
// A required parameter with a default is satisfied by that default.
func NewCatalog(spec CatalogSpec) (*Catalog, error) {
	var problems []error

	c := &Catalog{
		version:    spec.Version,
		tools:      make(map[string]ToolSignature, len(spec.Tools)),
		operations: make(map[string]string, len(spec.Operations)),
		aliases:    make(map[string]map[string]string, len(spec.Tools)),
	}

	for _, tool := range spec.Tools {
		if tool.Name == "" {
			problems = append(problems, errors.New("tool with empty name"))
			continue
		}
		if _, dup := c.tools[tool.Name]; dup {
			problems = append(problems, fmt.Errorf("duplicate tool %q", tool.Name))
			continue
		}
		seen := make(map[string]bool, len(tool.Parameters))
		for _, p := range tool.Parameters {
			if p.Name == "" {
				problems = append(problems, fmt.Errorf("tool %q: parameter with empty name", tool.Name))
				continue
			}
			if seen[p.Name] {
				problems = append(problems, fmt.Errorf("tool %q: duplicate parameter %q", tool.Name, p.Name))
			}
			seen[p.Name] = true
			if _, err := ParseParamType(string(p.Type)); err != nil {
				problems = append(problems, fmt.Errorf("tool %q parameter %q: %w", tool.Name, p.Name, err))
				continue
			}
			if p.HasDefault() && !defaultMatchesType(p.Type, p.Default) {
				problems = append(problems, fmt.Errorf("tool %q parameter %q: default %s does not match type %s",
					tool.Name, p.Name, p.Default, p.Type))
			}
		}
		c.tools[tool.Name] = tool.clone()
		c.order = append(c.order, tool.Name)

		identity := make(map[string]string, len(tool.Parameters))
		for _, p := range tool.Parameters {
			identity[p.Name] = p.Name
		}
		c.aliases[tool.Name] = identity
	}

	for op, toolName := range spec.Operations {
		if op == "" {
			problems = append(problems, errors.New("operation with empty id"))
			continue
		}
		if _, ok := c.tools[toolName]; !ok {
			problems = append(problems, fmt.Errorf("operation %q maps to unregistered tool %q", op, toolName))
			continue
		}
		c.operations[op] = toolName
	}

	for toolName, aliases := range spec.Aliases {
		sig, ok := c.tools[toolName]
		if !ok {
			problems = append(problems, fmt.Errorf("aliases declared for unregistered tool %q", toolName))
			continue
		}
		for inbound, canonical := range aliases {
			if _, ok := sig.Param(canonical); !ok {
				problems = append(problems, fmt.Errorf("tool %q: alias %q targets unknown parameter %q", toolName, inbound, canonical))
				continue
			}
			c.aliases[toolName][inbound] = canonical
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, errors.Join(problems...))
	}
	return c, nil
}

// MustNewCatalog is NewCatalog for static tables known to be consistent.
func MustNewCatalog(spec CatalogSpec) *Catalog {
	c, err := NewCatalog(spec)
	if err != nil {
		panic(err)
	}
	return c
}

// Version returns the registry version label.
func (c *Catalog) Version() string { return c.version }

// ResolveOperation returns the tool an operation id maps to.
func (c *Catalog) ResolveOperation(operationID string) (string, bool) {
	name, ok := c.operations[operationID]
	return name, ok
}

// Signature returns a copy of the named tool's signature.
func (c *Catalog) Signature(toolName string) (ToolSignature, bool) {
	sig, ok := c.tools[toolName]
	if !ok {
		return ToolSignature{}, false
	}
	return sig.clone(), true
}

// Canonical resolves an inbound parameter spelling for a tool.
func (c *Catalog) Canonical(toolName, inbound string) (string, bool) {
	name, ok := c.aliases[toolName][inbound]
	return name, ok
}

// Aliases returns the inbound spellings accepted for a tool, sorted.
func (c *Catalog) Aliases(toolName string) []string {
	out := make([]string, 0, len(c.aliases[toolName]))
	for inbound := range c.aliases[toolName] {
		out = append(out, inbound)
	}
	sort.Strings(out)
	return out
}

// Tools returns tool names in registration order.
func (c *Catalog) Tools() []string {
	return append([]string(nil), c.order...)
}

// Operations returns all operation ids, sorted.
func (c *Catalog) Operations() []string {
	out := make([]string, 0, len(c.operations))
	for op := range c.operations {
		out = append(out, op)
	}
	sort.Strings(out)
	return out
}

// ToolByLocalName finds a tool by its name without the gateway target prefix.
func (c *Catalog) ToolByLocalName(local string) (string, bool) {
	for _, name := range c.order {
		if LocalToolName(name) == local || name == local {
			return name, true
		}
	}
	return "", false
}
