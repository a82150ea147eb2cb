package registry

// DefaultVersion labels the built-in SecurityMCPTools registry.
const DefaultVersion = "security-mcp-tools/v2"

const toolPrefix = "SecurityMCPTools___"

// Gateway tool names of the built-in registry.
const (
	ToolCheckSecurityServices    = toolPrefix + "CheckSecurityServices"
	ToolGetSecurityFindings      = toolPrefix + "GetSecurityFindings"
	ToolCheckStorageEncryption   = toolPrefix + "CheckStorageEncryption"
	ToolCheckNetworkSecurity     = toolPrefix + "CheckNetworkSecurity"
	ToolListServicesInRegion     = toolPrefix + "ListServicesInRegion"
	ToolGetStoredSecurityContext = toolPrefix + "GetStoredSecurityContext"
)

// DefaultRegion is used when neither the caller nor the environment names one.
const DefaultRegion = "us-east-1"

func regionParam() ParameterSpec {
	return ParameterSpec{Name: "region", Type: TypeString, Default: String(DefaultRegion), Description: "AWS region"}
}

func profileParam() ParameterSpec {
	return ParameterSpec{Name: "aws_profile", Type: TypeString, Default: String("default"), Description: "AWS profile to use"}
}

func storeInContextParam() ParameterSpec {
	return ParameterSpec{Name: "store_in_context", Type: TypeBoolean, Default: Boolean(true), Description: "Store results in context"}
}

// DefaultCatalogSpec returns the built-in registry: the six SecurityMCPTools
// tools, the agent operations that reach them, and the inbound spellings the
// agent is known to send.
func DefaultCatalogSpec() CatalogSpec {
	return CatalogSpec{
		Version: DefaultVersion,
		Tools: []ToolSignature{
			{
				Name:        ToolCheckSecurityServices,
				Description: "Check whether AWS security services are enabled in a region.",
				Parameters: []ParameterSpec{
					regionParam(),
					{Name: "services", Type: TypeArray, Default: Strings("guardduty", "inspector", "accessanalyzer", "securityhub", "trustedadvisor", "macie"), Description: "List of security services to check"},
					{Name: "account_id", Type: TypeString, Description: "Optional AWS account ID"},
					profileParam(),
					storeInContextParam(),
					{Name: "debug", Type: TypeBoolean, Default: Boolean(true), Description: "Include debug information"},
				},
			},
			{
				Name:        ToolGetSecurityFindings,
				Description: "Get findings from a security service (securityhub, guardduty).",
				Parameters: []ParameterSpec{
					regionParam(),
					{Name: "service", Type: TypeString, Description: "Security service (guardduty, securityhub, inspector, etc.)"},
					{Name: "max_findings", Type: TypeInteger, Default: Integer(100), Description: "Maximum number of findings"},
					{Name: "severity_filter", Type: TypeString, Description: "Severity filter (HIGH, CRITICAL, etc.)"},
					profileParam(),
					{Name: "check_enabled", Type: TypeBoolean, Default: Boolean(true), Description: "Check if service is enabled first"},
				},
			},
			{
				Name:        ToolCheckStorageEncryption,
				Description: "Check encryption at rest for storage services.",
				Parameters: []ParameterSpec{
					regionParam(),
					{Name: "services", Type: TypeArray, Default: Strings("s3", "ebs", "rds", "dynamodb", "efs", "elasticache"), Description: "Storage services to check"},
					{Name: "include_unencrypted_only", Type: TypeBoolean, Default: Boolean(false), Description: "Show only unencrypted resources"},
					profileParam(),
					storeInContextParam(),
				},
			},
			{
				Name:        ToolCheckNetworkSecurity,
				Description: "Check network exposure of VPCs, security groups and edge services.",
				Parameters: []ParameterSpec{
					regionParam(),
					{Name: "services", Type: TypeArray, Default: Strings("elb", "vpc", "apigateway", "cloudfront"), Description: "Network services to check"},
					{Name: "include_non_compliant_only", Type: TypeBoolean, Default: Boolean(false), Description: "Show only non-compliant resources"},
					profileParam(),
					storeInContextParam(),
				},
			},
			{
				Name:        ToolListServicesInRegion,
				Description: "List AWS services available in a region.",
				Parameters: []ParameterSpec{
					regionParam(),
					profileParam(),
					storeInContextParam(),
				},
			},
			{
				Name:        ToolGetStoredSecurityContext,
				Description: "Return security results stored by earlier tool calls.",
				Parameters: []ParameterSpec{
					regionParam(),
					{Name: "detailed", Type: TypeBoolean, Default: Boolean(false), Description: "Return full details"},
				},
			},
		},
		Operations: map[string]string{
			"checkSecurityStatus":    ToolCheckSecurityServices,
			"getSecurityFindings":    ToolGetSecurityFindings,
			"checkStorageEncryption": ToolCheckStorageEncryption,
			"checkNetworkSecurity":   ToolCheckNetworkSecurity,
			"listServicesInRegion":   ToolListServicesInRegion,
			"getStoredContext":       ToolGetStoredSecurityContext,
		},
		Aliases: map[string]map[string]string{
			ToolCheckSecurityServices: {
				"service":        "services",
				"accountId":      "account_id",
				"awsProfile":     "aws_profile",
				"storeInContext": "store_in_context",
			},
			ToolGetSecurityFindings: {
				"maxFindings":    "max_findings",
				"severityFilter": "severity_filter",
				"severity":       "severity_filter",
				"awsProfile":     "aws_profile",
				"checkEnabled":   "check_enabled",
			},
			ToolCheckStorageEncryption: {
				"service":                "services",
				"includeUnencryptedOnly": "include_unencrypted_only",
				"unencryptedOnly":        "include_unencrypted_only",
				"awsProfile":             "aws_profile",
				"storeInContext":         "store_in_context",
			},
			ToolCheckNetworkSecurity: {
				"service":                 "services",
				"includeNonCompliantOnly": "include_non_compliant_only",
				"nonCompliantOnly":        "include_non_compliant_only",
				"awsProfile":              "aws_profile",
				"storeInContext":          "store_in_context",
			},
			ToolListServicesInRegion: {
				"awsProfile":     "aws_profile",
				"storeInContext": "store_in_context",
			},
		},
	}
}

// DefaultCatalog builds the built-in registry.
func DefaultCatalog() *Catalog {
	return MustNewCatalog(DefaultCatalogSpec())
}
