// Package envelope models the Bedrock Agent action-group invocation event
// and the response envelope the agent requires in return.
package envelope

import (
	"encoding/json"
	"strings"
	"unicode"

	"github.com/triage-ai/palisade/services/agent_gateway/internal/mapper"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/registry"
)

// ContentTypeJSON is the only content type the gateway reads or writes.
const ContentTypeJSON = "application/json"

// ActionGroupEvent is the event Bedrock Agent sends to an action-group Lambda.
type ActionGroupEvent struct {
	MessageVersion          string            `json:"messageVersion"`
	Agent                   AgentInfo         `json:"agent"`
	SessionID               string            `json:"sessionId"`
	InputText               string            `json:"inputText"`
	ActionGroup             string            `json:"actionGroup"`
	APIPath                 string            `json:"apiPath"`
	HTTPMethod              string            `json:"httpMethod"`
	Function                string            `json:"function,omitempty"`
	Parameters              []EventParameter  `json:"parameters"`
	RequestBody             *RequestBody      `json:"requestBody,omitempty"`
	SessionAttributes       map[string]string `json:"sessionAttributes,omitempty"`
	PromptSessionAttributes map[string]string `json:"promptSessionAttributes,omitempty"`
}

type AgentInfo struct {
	Name    string `json:"name"`
	ID      string `json:"id"`
	Alias   string `json:"alias"`
	Version string `json:"version"`
}

// EventParameter is one entry of the event's parameter list. Bedrock sends
// every value as a string; other JSON kinds are accepted as well.
type EventParameter struct {
	Name  string         `json:"name"`
	Type  string         `json:"type"`
	Value registry.Value `json:"value"`
}

type RequestBody struct {
	Content map[string]BodyContent `json:"content"`
}

type BodyContent struct {
	Properties []EventParameter `json:"properties"`
}

// Inbound flattens the event's parameters followed by the JSON request body
// properties into the mapper's inbound list, keeping their order.
// Array-typed values that arrive as a JSON array literal are decoded.
func (e *ActionGroupEvent) Inbound() []mapper.InboundParameter {
	var props []EventParameter
	if e.RequestBody != nil {
		props = e.RequestBody.Content[ContentTypeJSON].Properties
	}
	out := make([]mapper.InboundParameter, 0, len(e.Parameters)+len(props))
	for _, list := range [][]EventParameter{e.Parameters, props} {
		for _, p := range list {
			out = append(out, mapper.InboundParameter{
				Name:  p.Name,
				Type:  p.Type,
				Value: decodeArrayLiteral(p.Type, p.Value),
			})
		}
	}
	return out
}

func decodeArrayLiteral(declared string, v registry.Value) registry.Value {
	if !strings.EqualFold(declared, "array") {
		return v
	}
	s, ok := v.Str()
	if !ok || !strings.HasPrefix(strings.TrimSpace(s), "[") {
		return v
	}
	var decoded registry.Value
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		return v
	}
	return decoded
}

// OperationCandidates returns the operation ids the event may stand for, in
// the order they should be tried: the function name of function-details
// action groups, the API path converted to camelCase
// ("/check-security-status" -> "checkSecurityStatus"), then the action
// group name.
func (e *ActionGroupEvent) OperationCandidates() []string {
	var out []string
	if e.Function != "" {
		out = append(out, e.Function)
	}
	if op := PathToOperationID(e.APIPath); op != "" {
		out = append(out, op)
	}
	if e.ActionGroup != "" {
		out = append(out, e.ActionGroup)
	}
	return out
}

// PathToOperationID converts the last segment of an API path to camelCase.
func PathToOperationID(path string) string {
	path = strings.Trim(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	if path == "" {
		return ""
	}
	var b strings.Builder
	upper := false
	for i, r := range path {
		switch {
		case r == '-' || r == '_':
			upper = b.Len() > 0
		case upper:
			b.WriteRune(unicode.ToUpper(r))
			upper = false
		case i == 0:
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
