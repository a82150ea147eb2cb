// Package agentops inspects and prepares the Bedrock Agent deployment:
// agent inventory, readiness checks and the gateway OAuth secret.
package agentops

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
)

// BedrockAgentAPI is the subset of the Bedrock Agent control-plane client
// used here.
type BedrockAgentAPI interface {
	ListAgents(ctx context.Context, params *bedrockagent.ListAgentsInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.ListAgentsOutput, error)
	GetAgent(ctx context.Context, params *bedrockagent.GetAgentInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.GetAgentOutput, error)
	ListAgentVersions(ctx context.Context, params *bedrockagent.ListAgentVersionsInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.ListAgentVersionsOutput, error)
	ListAgentAliases(ctx context.Context, params *bedrockagent.ListAgentAliasesInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.ListAgentAliasesOutput, error)
	ListAgentActionGroups(ctx context.Context, params *bedrockagent.ListAgentActionGroupsInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.ListAgentActionGroupsOutput, error)
	GetAgentActionGroup(ctx context.Context, params *bedrockagent.GetAgentActionGroupInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.GetAgentActionGroupOutput, error)
}

// LambdaAPI reads a function's resource policy.
type LambdaAPI interface {
	GetPolicy(ctx context.Context, params *lambda.GetPolicyInput, optFns ...func(*lambda.Options)) (*lambda.GetPolicyOutput, error)
}

// LogsAPI searches a log group.
type LogsAPI interface {
	FilterLogEvents(ctx context.Context, params *cloudwatchlogs.FilterLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.FilterLogEventsOutput, error)
}

// SecretsAPI writes secrets.
type SecretsAPI interface {
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
}

// ErrorCode returns the AWS error code carried by err, or "" when err did
// not come from an AWS API.
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
