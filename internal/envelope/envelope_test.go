package envelope

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

const sampleEvent = `{
  "messageVersion": "1.0",
  "agent": {"name": "security-agent", "id": "AGENT1", "alias": "TSTALIASID", "version": "DRAFT"},
  "sessionId": "s-1",
  "inputText": "show me high findings in us-west-2",
  "actionGroup": "SecurityActions",
  "apiPath": "/get-security-findings",
  "httpMethod": "POST",
  "parameters": [
    {"name": "region", "type": "string", "value": "us-west-2"},
    {"name": "services", "type": "array", "value": "[\"guardduty\", \"securityhub\"]"}
  ],
  "requestBody": {
    "content": {
      "application/json": {
        "properties": [
          {"name": "maxFindings", "type": "integer", "value": "50"}
        ]
      }
    }
  },
  "sessionAttributes": {"tenant": "acme"}
}`

func decodeSample(t *testing.T) *ActionGroupEvent {
	t.Helper()
	var ev ActionGroupEvent
	if err := json.Unmarshal([]byte(sampleEvent), &ev); err != nil {
		t.Fatal(err)
	}
	return &ev
}

func TestInbound_FlattensParametersThenBody(t *testing.T) {
	ev := decodeSample(t)
	in := ev.Inbound()
	if len(in) != 3 {
		t.Fatalf("expected 3 inbound parameters, got %d", len(in))
	}
	names := []string{in[0].Name, in[1].Name, in[2].Name}
	if !reflect.DeepEqual(names, []string{"region", "services", "maxFindings"}) {
		t.Fatalf("unexpected order %v", names)
	}
	items, ok := in[1].Value.Items()
	if !ok || len(items) != 2 {
		t.Fatalf("expected array literal decoded to a list, got %s", in[1].Value)
	}
	if s, _ := in[2].Value.Str(); s != "50" {
		t.Fatalf("expected \"50\", got %s", in[2].Value)
	}
}

func TestInbound_NoRequestBody(t *testing.T) {
	ev := &ActionGroupEvent{}
	if got := ev.Inbound(); len(got) != 0 {
		t.Fatalf("expected no inbound parameters, got %v", got)
	}
}

func TestPathToOperationID(t *testing.T) {
	tests := map[string]string{
		"/check-security-status": "checkSecurityStatus",
		"/getSecurityFindings":   "getSecurityFindings",
		"/v1/list_services":      "listServices",
		"/":                      "",
		"":                       "",
	}
	for in, want := range tests {
		if got := PathToOperationID(in); got != want {
			t.Fatalf("%q: expected %q, got %q", in, want, got)
		}
	}
}

func TestOperationCandidates(t *testing.T) {
	ev := decodeSample(t)
	got := ev.OperationCandidates()
	if !reflect.DeepEqual(got, []string{"getSecurityFindings", "SecurityActions"}) {
		t.Fatalf("unexpected candidates %v", got)
	}

	ev.Function = "checkSecurityStatus"
	got = ev.OperationCandidates()
	if got[0] != "checkSecurityStatus" || len(got) != 3 {
		t.Fatalf("function should be tried first, got %v", got)
	}
}

func TestSuccess_BodyIsString(t *testing.T) {
	ev := decodeSample(t)
	resp := Success(ev, map[string]any{"status": "success", "findings": []string{}})
	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	if issues := ValidateResponse(raw); len(issues) != 0 {
		t.Fatalf("expected valid envelope, got %v", issues)
	}
	if resp.StatusCode() != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode())
	}
	if resp.Response.APIPath != "/get-security-findings" || resp.Response.ActionGroup != "SecurityActions" {
		t.Fatalf("event identifiers not echoed: %+v", resp.Response)
	}
	if resp.SessionAttributes["tenant"] != "acme" {
		t.Fatal("expected session attributes echoed")
	}
	var decoded map[string]any
	if err := resp.DecodeBody(&decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["status"] != "success" {
		t.Fatalf("unexpected body %v", decoded)
	}
}

func TestSuccess_UnserializableDataBecomesFailure(t *testing.T) {
	resp := Success(nil, map[string]any{"ch": make(chan int)})
	if resp.StatusCode() != 500 {
		t.Fatalf("expected 500, got %d", resp.StatusCode())
	}
	raw, _ := json.Marshal(resp)
	if HasErrors(ValidateResponse(raw)) {
		t.Fatalf("failure envelope must itself be valid: %s", raw)
	}
}

func TestFailureBody(t *testing.T) {
	resp := FailureBody(decodeSample(t), 400, ErrorBody{Error: "missing", Kind: "missing_required_parameter", Missing: []string{"account_id"}})
	var body ErrorBody
	if err := resp.DecodeBody(&body); err != nil {
		t.Fatal(err)
	}
	if body.Kind != "missing_required_parameter" || len(body.Missing) != 1 {
		t.Fatalf("unexpected body %+v", body)
	}
	if resp.StatusCode() != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode())
	}
}

func TestValidateResponse_BodyIsObject(t *testing.T) {
	raw := `{"messageVersion":"1.0","response":{"actionGroup":"t","apiPath":"/t","httpMethod":"POST","httpStatusCode":200,
		"responseBody":{"application/json":{"body":{"status":"success"}}}}}`
	issues := ValidateResponse([]byte(raw))
	if !HasErrors(issues) {
		t.Fatal("expected error for object body")
	}
	if !strings.Contains(issues[0].Message, "body must be a JSON string") {
		t.Fatalf("unexpected message %q", issues[0].Message)
	}
}

func TestValidateResponse_MissingMessageVersion(t *testing.T) {
	raw := `{"response":{"actionGroup":"t","apiPath":"/t","httpMethod":"POST","httpStatusCode":200,
		"responseBody":{"application/json":{"body":"{}"}}}}`
	issues := ValidateResponse([]byte(raw))
	if len(issues) != 1 || !strings.Contains(issues[0].Message, "messageVersion") {
		t.Fatalf("expected single messageVersion issue, got %v", issues)
	}
}

func TestValidateResponse_MissingResponseBody(t *testing.T) {
	raw := `{"messageVersion":"1.0","response":{"actionGroup":"t","apiPath":"/t","httpMethod":"POST","httpStatusCode":200}}`
	issues := ValidateResponse([]byte(raw))
	if len(issues) != 1 || !strings.Contains(issues[0].Message, "responseBody") {
		t.Fatalf("expected responseBody issue, got %v", issues)
	}
}

func TestValidateResponse_StatusCode(t *testing.T) {
	base := `{"messageVersion":"1.0","response":{"actionGroup":"t","apiPath":"/t","httpMethod":"POST","httpStatusCode":%s,
		"responseBody":{"application/json":{"body":"{}"}}}}`
	issues := ValidateResponse([]byte(strings.Replace(base, "%s", `"200"`, 1)))
	if !HasErrors(issues) {
		t.Fatal("expected error for string status code")
	}
	issues = ValidateResponse([]byte(strings.Replace(base, "%s", "418", 1)))
	if HasErrors(issues) || len(issues) != 1 || issues[0].Severity != SeverityWarning {
		t.Fatalf("expected single warning for 418, got %v", issues)
	}
}

func TestValidateResponse_BodyNotJSON(t *testing.T) {
	raw := `{"messageVersion":"1.0","response":{"actionGroup":"t","apiPath":"/t","httpMethod":"POST","httpStatusCode":200,
		"responseBody":{"application/json":{"body":"not json"}}}}`
	if !HasErrors(ValidateResponse([]byte(raw))) {
		t.Fatal("expected error for non-JSON body string")
	}
}

const sampleOpenAPI = `
openapi: 3.0.0
info:
  title: Security actions
  version: 1.0.0
paths:
  /get-security-findings:
    parameters:
      - name: trace
        in: header
    post:
      operationId: getSecurityFindings
      description: Get findings
      responses:
        "200":
          description: ok
  /check-security-status:
    get:
      operationId: checkSecurityStatus
      responses:
        "200":
          description: ok
`

func TestValidateOpenAPI(t *testing.T) {
	issues := ValidateOpenAPI([]byte(sampleOpenAPI))
	if HasErrors(issues) {
		t.Fatalf("expected no errors, got %v", issues)
	}
	if len(issues) != 1 || !strings.Contains(issues[0].Message, "GET /check-security-status") {
		t.Fatalf("expected one description warning, got %v", issues)
	}
}

func TestValidateOpenAPI_Problems(t *testing.T) {
	doc := `{"openapi":"3.1.0","info":{"title":"x"},"paths":{"/a":{"post":{"operationId":"op"}},"/b":{"get":{"operationId":"op","description":"d","responses":{}}}}}`
	issues := ValidateOpenAPI([]byte(doc))
	var msgs []string
	for _, i := range issues {
		msgs = append(msgs, i.Message)
	}
	joined := strings.Join(msgs, "\n")
	for _, want := range []string{"3.0.0", "'title' and 'version'", "missing 'responses' in POST /a", "used by both"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected issue containing %q, got:\n%s", want, joined)
		}
	}
}

func TestRoutes(t *testing.T) {
	routes, err := Routes([]byte(sampleOpenAPI))
	if err != nil {
		t.Fatal(err)
	}
	if id, ok := routes.Lookup("post", "/get-security-findings"); !ok || id != "getSecurityFindings" {
		t.Fatalf("expected getSecurityFindings, got %q", id)
	}
	if _, ok := routes.Lookup("GET", "/get-security-findings"); ok {
		t.Fatal("expected no GET route")
	}
	if len(routes) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(routes))
	}
}
