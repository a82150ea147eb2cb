package agentops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/triage-ai/palisade/services/agent_gateway/internal/gateway"
)

// PushOAuthSecret stores the gateway client credentials as a JSON secret.
// An existing secret gets a new version; a missing one is created. It
// reports whether the secret was created.
func PushOAuthSecret(ctx context.Context, sm SecretsAPI, name string, info gateway.OAuthClientInfo) (bool, error) {
	if info.ClientID == "" || info.ClientSecret == "" {
		return false, errors.New("PushOAuthSecret: client id and secret are required")
	}
	payload, err := json.Marshal(info)
	if err != nil {
		return false, fmt.Errorf("PushOAuthSecret: %w", err)
	}

	_, err = sm.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(name),
		SecretString: aws.String(string(payload)),
	})
	if err == nil {
		return false, nil
	}
	var notFound *smtypes.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return false, fmt.Errorf("PutSecretValue %s: %w", name, err)
	}

	_, err = sm.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(name),
		Description:  aws.String("OAuth client credentials for the AgentCore gateway"),
		SecretString: aws.String(string(payload)),
	})
	if err != nil {
		return false, fmt.Errorf("CreateSecret %s: %w", name, err)
	}
	return true, nil
}
