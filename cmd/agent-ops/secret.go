package main

import (
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/spf13/cobra"

	"github.com/triage-ai/palisade/services/agent_gateway/internal/agentops"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/gateway"
)

func newPushSecretCommand(g *globals) *cobra.Command {
	var (
		name string
		info gateway.OAuthClientInfo
	)
	cmd := &cobra.Command{
		Use:   "push-oauth-secret",
		Short: "Store the gateway OAuth client credentials in Secrets Manager",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if info.ClientSecret == "" {
				info.ClientSecret = os.Getenv("COGNITO_CLIENT_SECRET")
			}
			ctx := cmd.Context()
			cfg, err := g.awsConfig(ctx)
			if err != nil {
				return err
			}
			created, err := agentops.PushOAuthSecret(ctx, secretsmanager.NewFromConfig(cfg), name, info)
			if err != nil {
				return err
			}
			verb := "updated"
			if created {
				verb = "created"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "secret %s %s in %s\n", name, verb, g.region)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "agentcore/gateway-oauth", "secret name")
	cmd.Flags().StringVar(&info.ClientID, "client-id", os.Getenv("COGNITO_CLIENT_ID"), "Cognito app client id")
	cmd.Flags().StringVar(&info.ClientSecret, "client-secret", "", "Cognito app client secret (default $COGNITO_CLIENT_SECRET)")
	cmd.Flags().StringVar(&info.TokenEndpoint, "token-endpoint", os.Getenv("TOKEN_URL"), "OAuth token endpoint")
	cmd.Flags().StringVar(&info.Scope, "scope", os.Getenv("COGNITO_SCOPE"), "space-separated scopes")
	cmd.Flags().StringVar(&info.UserPoolID, "user-pool-id", "", "Cognito user pool id")
	cmd.Flags().StringVar(&info.DomainPrefix, "domain-prefix", "", "Cognito domain prefix")
	return cmd
}
