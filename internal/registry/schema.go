package registry

import (
	"encoding/json"
	"fmt"
)

// Schema renders a tool signature as a JSON Schema object schema.
// Parameters whose requirement is satisfied by a default are not listed
// under "required".
func (s ToolSignature) Schema() map[string]any {
	properties := make(map[string]any, len(s.Parameters))
	required := make([]any, 0)
	for _, p := range s.Parameters {
		prop := map[string]any{"type": string(p.Type)}
		if p.Type == TypeArray {
			prop["items"] = map[string]any{"type": "string"}
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.HasDefault() {
			prop["default"] = p.Default.Interface()
		}
		properties[p.Name] = prop
		if p.Required && !p.HasDefault() {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// SchemaJSON returns the JSON Schema of a registered tool.
func (c *Catalog) SchemaJSON(toolName string) ([]byte, error) {
	sig, ok := c.tools[toolName]
	if !ok {
		return nil, fmt.Errorf("SchemaJSON: unknown tool %q", toolName)
	}
	return json.Marshal(sig.Schema())
}
