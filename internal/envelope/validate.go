package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Severity grades a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding of a validator.
type Issue struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

func (i Issue) String() string { return string(i.Severity) + ": " + i.Message }

func errorf(format string, args ...any) Issue {
	return Issue{Severity: SeverityError, Message: fmt.Sprintf(format, args...)}
}

func warnf(format string, args ...any) Issue {
	return Issue{Severity: SeverityWarning, Message: fmt.Sprintf(format, args...)}
}

// HasErrors reports whether any issue is an error rather than a warning.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

var usualStatusCodes = map[int64]bool{200: true, 400: true, 404: true, 500: true}

// ValidateResponse checks a raw action-group Lambda response against the
// envelope Bedrock Agent accepts. A body that is not a string is the
// failure that matters most: the agent silently drops such responses.
func ValidateResponse(raw []byte) []Issue {
	var top any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&top); err != nil {
		return []Issue{errorf("response is not valid JSON: %v", err)}
	}
	doc, ok := top.(map[string]any)
	if !ok {
		return []Issue{errorf("response must be a JSON object")}
	}

	var issues []Issue
	if v, ok := doc["messageVersion"]; !ok {
		issues = append(issues, errorf("missing required field 'messageVersion'"))
	} else if v != MessageVersion {
		issues = append(issues, errorf("messageVersion must be '%s', got: %v", MessageVersion, v))
	}

	respRaw, ok := doc["response"]
	if !ok {
		return append(issues, errorf("missing required field 'response'"))
	}
	resp, ok := respRaw.(map[string]any)
	if !ok {
		return append(issues, errorf("'response' must be an object"))
	}

	for _, field := range []string{"actionGroup", "apiPath", "httpMethod", "httpStatusCode", "responseBody"} {
		if _, ok := resp[field]; !ok {
			issues = append(issues, errorf("missing required field in response: '%s'", field))
		}
	}

	if code, ok := resp["httpStatusCode"]; ok {
		n, isNum := code.(json.Number)
		status, err := n.Int64()
		switch {
		case !isNum || err != nil:
			issues = append(issues, errorf("httpStatusCode must be integer, got: %v", code))
		case !usualStatusCodes[status]:
			issues = append(issues, warnf("unusual httpStatusCode: %d", status))
		}
	}

	if rb, ok := resp["responseBody"]; ok {
		issues = append(issues, validateResponseBody(rb)...)
	}
	return issues
}

func validateResponseBody(rb any) []Issue {
	bodies, ok := rb.(map[string]any)
	if !ok {
		return []Issue{errorf("responseBody must be an object")}
	}
	jsonBody, ok := bodies[ContentTypeJSON].(map[string]any)
	if !ok {
		return []Issue{errorf("responseBody must contain an '%s' object", ContentTypeJSON)}
	}
	body, ok := jsonBody["body"]
	if !ok {
		return []Issue{errorf("responseBody['%s'] must contain 'body' key", ContentTypeJSON)}
	}
	s, ok := body.(string)
	if !ok {
		return []Issue{errorf("body must be a JSON string, got %s; serialize the data before returning it", jsonKind(body))}
	}
	if !json.Valid([]byte(s)) {
		return []Issue{errorf("body is not valid JSON")}
	}
	return nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
