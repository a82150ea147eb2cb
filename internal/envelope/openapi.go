package envelope

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// BedrockOpenAPIVersion is the OpenAPI version action-group schemas must declare.
const BedrockOpenAPIVersion = "3.0.0"

var httpMethods = map[string]bool{
	"get": true, "put": true, "post": true, "delete": true,
	"options": true, "head": true, "patch": true, "trace": true,
}

type openAPIDoc struct {
	OpenAPI string                    `yaml:"openapi"`
	Info    map[string]any            `yaml:"info"`
	Paths   map[string]map[string]any `yaml:"paths"`
}

func parseOpenAPI(raw []byte) (*openAPIDoc, error) {
	var doc openAPIDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ValidateOpenAPI checks an action-group OpenAPI schema (JSON or YAML) for
// what Bedrock Agent requires of it.
func ValidateOpenAPI(raw []byte) []Issue {
	doc, err := parseOpenAPI(raw)
	if err != nil {
		return []Issue{errorf("schema is not valid JSON or YAML: %v", err)}
	}

	var issues []Issue
	if doc.OpenAPI != BedrockOpenAPIVersion {
		issues = append(issues, errorf("OpenAPI version must be %s, found: %q", BedrockOpenAPIVersion, doc.OpenAPI))
	}
	if doc.Info == nil {
		issues = append(issues, errorf("missing required 'info' field"))
	} else if _, hasTitle := doc.Info["title"]; !hasTitle {
		issues = append(issues, errorf("'info' must contain 'title' and 'version'"))
	} else if _, hasVersion := doc.Info["version"]; !hasVersion {
		issues = append(issues, errorf("'info' must contain 'title' and 'version'"))
	}
	if len(doc.Paths) == 0 {
		issues = append(issues, errorf("missing or empty 'paths' field"))
	}

	seen := make(map[string]string)
	for _, path := range sortedKeys(doc.Paths) {
		methods := doc.Paths[path]
		for _, method := range sortedKeys(methods) {
			if !httpMethods[strings.ToLower(method)] {
				continue
			}
			op, _ := methods[method].(map[string]any)
			where := strings.ToUpper(method) + " " + path
			id, hasID := op["operationId"].(string)
			if !hasID || id == "" {
				issues = append(issues, errorf("missing 'operationId' in %s", where))
			} else if prev, dup := seen[id]; dup {
				issues = append(issues, errorf("operationId %q used by both %s and %s", id, prev, where))
			} else {
				seen[id] = where
			}
			if _, ok := op["description"]; !ok {
				issues = append(issues, warnf("missing 'description' in %s", where))
			}
			if _, ok := op["responses"]; !ok {
				issues = append(issues, errorf("missing 'responses' in %s", where))
			}
		}
	}
	return issues
}

// RouteTable maps "METHOD /path" to an operation id.
type RouteTable map[string]string

// Routes extracts the operation id of every operation in an OpenAPI schema.
func Routes(raw []byte) (RouteTable, error) {
	doc, err := parseOpenAPI(raw)
	if err != nil {
		return nil, fmt.Errorf("Routes: %w", err)
	}
	routes := make(RouteTable)
	for path, methods := range doc.Paths {
		for method, item := range methods {
			if !httpMethods[strings.ToLower(method)] {
				continue
			}
			op, _ := item.(map[string]any)
			if id, ok := op["operationId"].(string); ok && id != "" {
				routes[routeKey(method, path)] = id
			}
		}
	}
	return routes, nil
}

// Lookup returns the operation id served at method and path.
func (t RouteTable) Lookup(method, path string) (string, bool) {
	id, ok := t[routeKey(method, path)]
	return id, ok
}

func routeKey(method, path string) string {
	return strings.ToUpper(method) + " " + path
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
