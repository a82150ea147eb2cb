package mapper

import (
	"errors"
	"fmt"
	"strings"

	"github.com/triage-ai/palisade/services/agent_gateway/internal/registry"
)

// Sentinels for errors.Is matching against the typed errors below.
var (
	ErrUnknownOperation         = errors.New("unknown operation")
	ErrUnknownTool              = errors.New("unknown tool")
	ErrMissingRequiredParameter = errors.New("missing required parameter")
	ErrTypeCoercion             = errors.New("type coercion failed")
)

// UnknownOperationError is returned when the operation id is not in the
// operation map.
type UnknownOperationError struct {
	OperationID string
	Known       []string
}

func (e *UnknownOperationError) Error() string {
	return fmt.Sprintf("unknown operation %q (valid operations: %s)", e.OperationID, strings.Join(e.Known, ", "))
}

func (e *UnknownOperationError) Is(target error) bool { return target == ErrUnknownOperation }

// UnknownToolError means the operation map names a tool the registry does
// not hold. NewCatalog rejects such registries, so this is a configuration
// fault rather than a caller error.
type UnknownToolError struct {
	ToolName string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.ToolName)
}

func (e *UnknownToolError) Is(target error) bool { return target == ErrUnknownTool }

// MissingRequiredParameterError lists required parameters left unset after
// inbound values and defaults were applied, in signature order.
type MissingRequiredParameterError struct {
	ToolName string
	Names    []string
}

func (e *MissingRequiredParameterError) Error() string {
	return fmt.Sprintf("missing required parameters for %s: %s", e.ToolName, strings.Join(e.Names, ", "))
}

func (e *MissingRequiredParameterError) Is(target error) bool {
	return target == ErrMissingRequiredParameter
}

// TypeCoercionError reports a raw value that cannot be converted to the
// parameter's declared type.
type TypeCoercionError struct {
	Parameter string
	Raw       registry.Value
	Target    registry.ParamType
	Err       error
}

func (e *TypeCoercionError) Error() string {
	msg := fmt.Sprintf("parameter %q: cannot convert %s to %s", e.Parameter, e.Raw, e.Target)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TypeCoercionError) Is(target error) bool { return target == ErrTypeCoercion }

func (e *TypeCoercionError) Unwrap() error { return e.Err }

// UnknownParameterWarning records an inbound parameter that was dropped
// because the tool accepts no such spelling. It never fails a call.
type UnknownParameterWarning struct {
	OperationID string
	ToolName    string
	Name        string
}

func (w UnknownParameterWarning) String() string {
	if w.OperationID == "" {
		return fmt.Sprintf("unknown parameter %q for tool %s, skipped", w.Name, w.ToolName)
	}
	return fmt.Sprintf("unknown parameter %q for operation %s, skipped", w.Name, w.OperationID)
}
