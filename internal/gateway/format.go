package gateway

// FormatResult reshapes a tool result for the agent. Network-security
// results (recognised by their resource_details field) get a summary line
// and a fixed field set; other objects pass through; anything that is not
// an object is wrapped as raw_result.
func FormatResult(data any) map[string]any {
	obj, ok := data.(map[string]any)
	if !ok {
		return map[string]any{"raw_result": data}
	}
	if _, isNetwork := obj["resource_details"]; !isNetwork {
		return obj
	}
	region, _ := obj["region"].(string)
	if region == "" {
		region = "unknown region"
	}
	return map[string]any{
		"summary":                 "Network security analysis for " + region,
		"resources_checked":       valueOr(obj, "resources_checked", 0),
		"compliant_resources":     valueOr(obj, "compliant_resources", 0),
		"non_compliant_resources": valueOr(obj, "non_compliant_resources", 0),
		"compliance_by_service":   valueOr(obj, "compliance_by_service", map[string]any{}),
		"resource_details":        valueOr(obj, "resource_details", []any{}),
		"recommendations":         valueOr(obj, "recommendations", []any{}),
	}
}

func valueOr(obj map[string]any, key string, def any) any {
	if v, ok := obj[key]; ok && v != nil {
		return v
	}
	return def
}
