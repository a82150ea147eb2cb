package mapper

import (
	"github.com/triage-ai/palisade/services/agent_gateway/internal/registry"
	"go.uber.org/zap"
)

// Value is the untyped boundary value carried by inbound parameters.
type Value = registry.Value

// InboundParameter is one (name, value) pair as sent by the caller.
// Type is the caller's declared type and is informational only; coercion
// always follows the tool signature.
type InboundParameter struct {
	Name  string `json:"name"`
	Type  string `json:"type,omitempty"`
	Value Value  `json:"value"`
}

// Param is shorthand for building inbound parameters from Go values.
// It panics on values ValueOf cannot represent, so use it for literals.
func Param(name string, value any) InboundParameter {
	return InboundParameter{Name: name, Value: registry.MustValueOf(value)}
}

// Result is a successful mapping.
type Result struct {
	ToolName  string
	Arguments Arguments
	Warnings  []UnknownParameterWarning
}

// Mapper translates agent operations into downstream tool calls. It reads
// an immutable Catalog and keeps no per-call state, so one Mapper can be
// shared by concurrent callers.
type Mapper struct {
	catalog *registry.Catalog
	logger  *zap.Logger
}

// New creates a Mapper over catalog. A nil logger disables diagnostics.
func New(catalog *registry.Catalog, logger *zap.Logger) *Mapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mapper{catalog: catalog, logger: logger}
}

// Catalog returns the registry the mapper reads.
func (m *Mapper) Catalog() *registry.Catalog { return m.catalog }

// Map resolves operationID to its tool and builds the tool's arguments
// from inbound.
func (m *Mapper) Map(operationID string, inbound []InboundParameter) (*Result, error) {
	toolName, ok := m.catalog.ResolveOperation(operationID)
	if !ok {
		return nil, &UnknownOperationError{OperationID: operationID, Known: m.catalog.Operations()}
	}
	return m.mapTool(operationID, toolName, inbound)
}

// MapTool runs the same pipeline for a caller that already names the tool.
func (m *Mapper) MapTool(toolName string, inbound []InboundParameter) (*Result, error) {
	return m.mapTool("", toolName, inbound)
}

func (m *Mapper) mapTool(operationID, toolName string, inbound []InboundParameter) (*Result, error) {
	sig, ok := m.catalog.Signature(toolName)
	if !ok {
		m.logger.Error("operation maps to unregistered tool",
			zap.String("operation", operationID),
			zap.String("tool", toolName),
		)
		return nil, &UnknownToolError{ToolName: toolName}
	}

	args := make(Arguments, len(sig.Parameters))
	for _, p := range sig.Parameters {
		if !p.HasDefault() {
			continue
		}
		v, err := Coerce(p.Name, p.Default, p.Type)
		if err != nil {
			// NewCatalog checks default types, so this means a broken catalog.
			return nil, err
		}
		args[p.Name] = v
	}

	var warnings []UnknownParameterWarning
	for _, in := range inbound {
		if in.Name == "" || in.Value.IsNull() {
			continue
		}
		canonical, ok := m.catalog.Canonical(toolName, in.Name)
		if !ok {
			w := UnknownParameterWarning{OperationID: operationID, ToolName: toolName, Name: in.Name}
			warnings = append(warnings, w)
			m.logger.Warn("unknown parameter dropped",
				zap.String("operation", operationID),
				zap.String("tool", toolName),
				zap.String("parameter", in.Name),
			)
			continue
		}
		spec, _ := sig.Param(canonical)
		v, err := Coerce(canonical, in.Value, spec.Type)
		if err != nil {
			m.logger.Warn("parameter coercion failed",
				zap.String("tool", toolName),
				zap.String("parameter", in.Name),
				zap.Error(err),
			)
			return nil, err
		}
		args[canonical] = v
	}

	for name, v := range args {
		if v == nil {
			delete(args, name)
		}
	}

	var missing []string
	for _, p := range sig.Parameters {
		if !p.Required {
			continue
		}
		if _, ok := args[p.Name]; !ok {
			missing = append(missing, p.Name)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingRequiredParameterError{ToolName: toolName, Names: missing}
	}

	m.logger.Debug("parameters mapped",
		zap.String("operation", operationID),
		zap.String("tool", toolName),
		zap.Strings("arguments", args.Names()),
		zap.Int("dropped", len(warnings)),
	)
	return &Result{ToolName: toolName, Arguments: args, Warnings: warnings}, nil
}
