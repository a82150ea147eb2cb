// Package handler implements the action-group Lambda: it turns a Bedrock
// Agent event into a mapped gateway tool call and always answers with a
// response envelope, whatever went wrong along the way.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/triage-ai/palisade/services/agent_gateway/internal/envelope"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/gateway"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/guard"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/mapper"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/storage"
)

// ToolCaller calls a gateway tool. *gateway.Client implements it.
type ToolCaller interface {
	CallTool(ctx context.Context, tool string, args map[string]any) (*gateway.ToolResult, error)
}

var _ ToolCaller = (*gateway.Client)(nil)

// Error kinds reported in failure bodies and invocation events.
const (
	KindBadEvent         = "bad_event"
	KindUnknownOperation = "unknown_operation"
	KindUnknownTool      = "unknown_tool"
	KindMissingParameter = "missing_required_parameter"
	KindTypeCoercion     = "type_coercion"
	KindRejected         = "rejected"
	KindGateway          = "gateway_error"
	KindInternal         = "internal"
)

const eventSource = "action-gateway"

// Config holds the handler's collaborators. Guard, Routes and Events are
// optional.
type Config struct {
	Mapper  *mapper.Mapper
	Guard   *guard.Guard
	Gateway ToolCaller
	Routes  envelope.RouteTable
	Events  storage.EventWriter
	Logger  *zap.Logger
}

type Handler struct {
	mapper  *mapper.Mapper
	guard   *guard.Guard
	gateway ToolCaller
	routes  envelope.RouteTable
	events  storage.EventWriter
	logger  *zap.Logger
	now     func() time.Time
}

func New(cfg Config) (*Handler, error) {
	if cfg.Mapper == nil || cfg.Gateway == nil {
		return nil, errors.New("handler.New: mapper and gateway are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	events := cfg.Events
	if events == nil {
		events = storage.NewLogWriter(logger)
	}
	return &Handler{
		mapper:  cfg.Mapper,
		guard:   cfg.Guard,
		gateway: cfg.Gateway,
		routes:  cfg.Routes,
		events:  events,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// failure is a request-level error already classified for the envelope.
type failure struct {
	status  int
	kind    string
	outcome string
	err     error
	missing []string
}

// HandleJSON is the Lambda entry point. It decodes the raw event itself so
// an event that does not decode still gets a 400 envelope.
func (h *Handler) HandleJSON(ctx context.Context, raw json.RawMessage) (envelope.Response, error) {
	var ev envelope.ActionGroupEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		h.logger.Warn("undecodable action group event", zap.Error(err))
		h.events.Write(&storage.InvocationEvent{
			RequestID:       uuid.New().String(),
			Timestamp:       h.now(),
			RegistryVersion: h.mapper.Catalog().Version(),
			Source:          eventSource,
			Outcome:         storage.OutcomeBadEvent,
			ErrorKind:       KindBadEvent,
			ErrorMessage:    err.Error(),
			StatusCode:      http.StatusBadRequest,
		})
		h.flush(ctx, "")
		return envelope.FailureBody(&ev, http.StatusBadRequest, envelope.ErrorBody{
			Error: fmt.Sprintf("decode event: %v", err),
			Kind:  KindBadEvent,
		}), nil
	}
	return h.Handle(ctx, ev)
}

// Handle processes one action-group event. Request-level failures become
// error envelopes; the returned error is always nil so the agent receives
// a response it can show.
func (h *Handler) Handle(ctx context.Context, ev envelope.ActionGroupEvent) (envelope.Response, error) {
	start := h.now()
	rec := &storage.InvocationEvent{
		RequestID:       uuid.New().String(),
		Timestamp:       start,
		AgentID:         ev.Agent.ID,
		AgentAlias:      ev.Agent.Alias,
		SessionID:       ev.SessionID,
		ActionGroup:     ev.ActionGroup,
		APIPath:         ev.APIPath,
		HTTPMethod:      ev.HTTPMethod,
		RegistryVersion: h.mapper.Catalog().Version(),
		Source:          eventSource,
	}

	resp, fail := h.handle(ctx, &ev, rec)
	if fail != nil {
		resp = envelope.FailureBody(&ev, fail.status, envelope.ErrorBody{
			Error:   fail.err.Error(),
			Kind:    fail.kind,
			Missing: fail.missing,
		})
		rec.Outcome = fail.outcome
		rec.ErrorKind = fail.kind
		rec.ErrorMessage = fail.err.Error()
		h.logger.Warn("action group invocation failed",
			zap.String("request_id", rec.RequestID),
			zap.String("operation_id", rec.OperationID),
			zap.String("kind", fail.kind),
			zap.Int("status", fail.status),
			zap.Error(fail.err),
		)
	} else {
		rec.Outcome = storage.OutcomeSuccess
	}
	rec.StatusCode = int32(resp.StatusCode())
	rec.LatencyMs = float32(h.now().Sub(start).Microseconds()) / 1000
	h.events.Write(rec)
	h.flush(ctx, rec.RequestID)
	return resp, nil
}

func (h *Handler) flush(ctx context.Context, requestID string) {
	if f, ok := h.events.(storage.Flusher); ok {
		if err := f.Flush(ctx); err != nil {
			h.logger.Warn("event flush incomplete", zap.String("request_id", requestID), zap.Error(err))
		}
	}
}

func (h *Handler) handle(ctx context.Context, ev *envelope.ActionGroupEvent, rec *storage.InvocationEvent) (envelope.Response, *failure) {
	opID, ok := h.resolveOperation(ev)
	if !ok {
		return envelope.Response{}, &failure{
			status:  http.StatusBadRequest,
			kind:    KindBadEvent,
			outcome: storage.OutcomeBadEvent,
			err:     errors.New("event names no function, apiPath or actionGroup"),
		}
	}
	rec.OperationID = opID

	res, err := h.mapper.Map(opID, ev.Inbound())
	if err != nil {
		return envelope.Response{}, mappingFailure(err)
	}
	rec.ToolName = res.ToolName
	for _, w := range res.Warnings {
		rec.DroppedParams = append(rec.DroppedParams, w.Name)
	}
	if data, err := res.Arguments.JSON(); err == nil {
		rec.ArgumentsJSON = string(data)
	}

	if h.guard != nil {
		if err := h.guard.Check(ctx, res.ToolName, res.Arguments); err != nil {
			f := &failure{status: http.StatusBadRequest, kind: KindRejected, outcome: storage.OutcomeRejected, err: err}
			if !errors.Is(err, guard.ErrRejected) {
				f.status, f.kind = http.StatusInternalServerError, KindInternal
			}
			return envelope.Response{}, f
		}
	}

	result, err := h.gateway.CallTool(ctx, res.ToolName, res.Arguments)
	if err != nil {
		return envelope.Response{}, &failure{
			status:  http.StatusInternalServerError,
			kind:    KindGateway,
			outcome: storage.OutcomeGatewayError,
			err:     err,
		}
	}

	h.logger.Info("action group invocation",
		zap.String("request_id", rec.RequestID),
		zap.String("operation_id", opID),
		zap.String("tool", res.ToolName),
		zap.Strings("dropped", rec.DroppedParams),
	)
	return envelope.Success(ev, gateway.FormatResult(result.Data)), nil
}

// resolveOperation picks the operation id for an event: the OpenAPI route
// for its method and path, else the first candidate the registry knows,
// else the first candidate so the mapper reports it as unknown.
func (h *Handler) resolveOperation(ev *envelope.ActionGroupEvent) (string, bool) {
	if id, ok := h.routes.Lookup(ev.HTTPMethod, ev.APIPath); ok {
		return id, true
	}
	candidates := ev.OperationCandidates()
	if len(candidates) == 0 {
		return "", false
	}
	catalog := h.mapper.Catalog()
	for _, c := range candidates {
		if _, ok := catalog.ResolveOperation(c); ok {
			return c, true
		}
	}
	return candidates[0], true
}

func mappingFailure(err error) *failure {
	f := &failure{status: http.StatusBadRequest, outcome: storage.OutcomeMappingError, err: err}
	var missing *mapper.MissingRequiredParameterError
	switch {
	case errors.Is(err, mapper.ErrUnknownOperation):
		f.status, f.kind = http.StatusNotFound, KindUnknownOperation
	case errors.As(err, &missing):
		f.kind, f.missing = KindMissingParameter, missing.Names
	case errors.Is(err, mapper.ErrTypeCoercion):
		f.kind = KindTypeCoercion
	case errors.Is(err, mapper.ErrUnknownTool):
		f.status, f.kind = http.StatusInternalServerError, KindUnknownTool
	default:
		f.status, f.kind = http.StatusInternalServerError, KindInternal
	}
	return f
}
