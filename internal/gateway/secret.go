package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// OAuthClientInfo is the Cognito app client record produced when the
// gateway's OAuth authorizer is created. It is stored as JSON in Secrets
// Manager and read back by the action-group Lambda.
type OAuthClientInfo struct {
	ClientID      string `json:"client_id"`
	ClientSecret  string `json:"client_secret"`
	TokenEndpoint string `json:"token_endpoint,omitempty"`
	Scope         string `json:"scope,omitempty"`
	UserPoolID    string `json:"user_pool_id,omitempty"`
	DomainPrefix  string `json:"domain_prefix,omitempty"`
}

// Scopes splits the space-separated scope string.
func (c OAuthClientInfo) Scopes() []string {
	return strings.Fields(c.Scope)
}

// SecretGetter is the subset of the Secrets Manager client used here.
type SecretGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

var ErrEmptySecret = errors.New("secret has no string value")

// LoadClientInfo reads the OAuth client record from Secrets Manager. A secret
// that is not a JSON object is taken to be the bare client secret.
func LoadClientInfo(ctx context.Context, sm SecretGetter, secretID string) (OAuthClientInfo, error) {
	out, err := sm.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(secretID)})
	if err != nil {
		return OAuthClientInfo{}, fmt.Errorf("LoadClientInfo %s: %w", secretID, err)
	}
	value := aws.ToString(out.SecretString)
	if value == "" {
		return OAuthClientInfo{}, fmt.Errorf("LoadClientInfo %s: %w", secretID, ErrEmptySecret)
	}
	if !strings.HasPrefix(strings.TrimSpace(value), "{") {
		return OAuthClientInfo{ClientSecret: value}, nil
	}
	var info OAuthClientInfo
	if err := json.Unmarshal([]byte(value), &info); err != nil {
		return OAuthClientInfo{}, fmt.Errorf("LoadClientInfo %s: %w", secretID, err)
	}
	return info, nil
}

// Merge fills empty fields of c from other.
func (c OAuthClientInfo) Merge(other OAuthClientInfo) OAuthClientInfo {
	if c.ClientID == "" {
		c.ClientID = other.ClientID
	}
	if c.ClientSecret == "" {
		c.ClientSecret = other.ClientSecret
	}
	if c.TokenEndpoint == "" {
		c.TokenEndpoint = other.TokenEndpoint
	}
	if c.Scope == "" {
		c.Scope = other.Scope
	}
	return c
}
