package envelope

import (
	"encoding/json"
	"fmt"
)

// MessageVersion is the only envelope version Bedrock Agent accepts.
const MessageVersion = "1.0"

// Response is the envelope returned to Bedrock Agent. The body travels as a
// serialized JSON string; Body has no field that could hold anything else.
type Response struct {
	MessageVersion    string            `json:"messageVersion"`
	Response          ActionResponse    `json:"response"`
	SessionAttributes map[string]string `json:"sessionAttributes,omitempty"`
}

type ActionResponse struct {
	ActionGroup    string          `json:"actionGroup"`
	APIPath        string          `json:"apiPath"`
	HTTPMethod     string          `json:"httpMethod"`
	HTTPStatusCode int             `json:"httpStatusCode"`
	ResponseBody   map[string]Body `json:"responseBody"`
}

type Body struct {
	Body string `json:"body"`
}

// ErrorBody is the decoded form of a failure body.
type ErrorBody struct {
	Error   string   `json:"error"`
	Kind    string   `json:"kind,omitempty"`
	Missing []string `json:"missing,omitempty"`
}

func newResponse(ev *ActionGroupEvent, status int, body string) Response {
	r := Response{
		MessageVersion: MessageVersion,
		Response: ActionResponse{
			HTTPStatusCode: status,
			ResponseBody:   map[string]Body{ContentTypeJSON: {Body: body}},
		},
	}
	if ev != nil {
		r.Response.ActionGroup = ev.ActionGroup
		r.Response.APIPath = ev.APIPath
		r.Response.HTTPMethod = ev.HTTPMethod
		r.SessionAttributes = ev.SessionAttributes
	}
	return r
}

// Success wraps data in a 200 envelope. Data that cannot be serialized
// produces a 500 envelope instead.
func Success(ev *ActionGroupEvent, data any) Response {
	body, err := json.Marshal(data)
	if err != nil {
		return Failure(ev, 500, fmt.Sprintf("serialize response: %v", err))
	}
	return newResponse(ev, 200, string(body))
}

// Failure wraps an error message in an envelope with the given status.
func Failure(ev *ActionGroupEvent, status int, msg string) Response {
	return FailureBody(ev, status, ErrorBody{Error: msg})
}

// FailureBody wraps a structured error in an envelope with the given status.
func FailureBody(ev *ActionGroupEvent, status int, body ErrorBody) Response {
	data, err := json.Marshal(body)
	if err != nil {
		data = []byte(`{"error":"internal error"}`)
	}
	return newResponse(ev, status, string(data))
}

// StatusCode returns the envelope's HTTP status.
func (r Response) StatusCode() int { return r.Response.HTTPStatusCode }

// BodyString returns the serialized JSON body.
func (r Response) BodyString() string {
	return r.Response.ResponseBody[ContentTypeJSON].Body
}

// DecodeBody unmarshals the serialized body into v.
func (r Response) DecodeBody(v any) error {
	if err := json.Unmarshal([]byte(r.BodyString()), v); err != nil {
		return fmt.Errorf("DecodeBody: %w", err)
	}
	return nil
}
