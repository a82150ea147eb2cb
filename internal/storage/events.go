package storage

import (
	"context"
	"time"
)

// EventWriter is the interface for writing action invocation events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *InvocationEvent)
	Close()
}

// Flusher is implemented by writers that buffer events in memory. The
// Lambda runtime may freeze the process once a handler returns, so the
// handler flushes before it does.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Outcome values of an InvocationEvent.
const (
	OutcomeSuccess      = "success"
	OutcomeMappingError = "mapping_error"
	OutcomeRejected     = "rejected"
	OutcomeGatewayError = "gateway_error"
	OutcomeBadEvent     = "bad_event"
)

// InvocationEvent records one action-group invocation handled by the gateway.
type InvocationEvent struct {
	RequestID       string
	Timestamp       time.Time
	AgentID         string
	AgentAlias      string
	SessionID       string
	ActionGroup     string
	APIPath         string
	HTTPMethod      string
	OperationID     string
	ToolName        string
	ArgumentsJSON   string
	DroppedParams   []string
	Outcome         string
	ErrorKind       string
	ErrorMessage    string
	StatusCode      int32
	LatencyMs       float32
	RegistryVersion string
	Source          string
}
