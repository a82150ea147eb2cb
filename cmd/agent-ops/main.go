// Command agent-ops inspects and prepares the Bedrock Agent deployment that
// fronts the AgentCore gateway.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/triage-ai/palisade/services/agent_gateway/internal/agentops"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/config"
)

const fallbackRegion = "us-east-1"

// globals holds the persistent flags.
type globals struct {
	region   string
	profile  string
	logLevel string
	logger   *zap.Logger
}

func main() {
	g := &globals{}
	root := newRootCommand(g)
	if err := root.Execute(); err != nil {
		if code := agentops.ErrorCode(err); code != "" {
			fmt.Fprintf(os.Stderr, "error (%s): %v\n", code, err)
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCommand(g *globals) *cobra.Command {
	root := &cobra.Command{
		Use:           "agent-ops",
		Short:         "Inspect and prepare Bedrock agents wired to the AgentCore gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			logger, err := config.BuildLogger(g.logLevel, "stderr")
			if err != nil {
				return err
			}
			g.logger = logger
			g.region = resolveRegion(g.region)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if g.logger != nil {
				_ = g.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&g.region, "region", "", "AWS region (default $AWS_REGION, $AWS_DEFAULT_REGION, then us-east-1)")
	root.PersistentFlags().StringVar(&g.profile, "profile", "", "AWS shared config profile")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "log level: debug, info, warn or error")

	root.AddCommand(
		newInventoryCommand(g),
		newWaitReadyCommand(g),
		newValidateResponseCommand(),
		newValidateSchemaCommand(),
		newMapCommand(g),
		newPushSecretCommand(g),
	)
	return root
}

// resolveRegion prefers the flag, then the standard AWS environment
// variables.
func resolveRegion(flag string) string {
	for _, r := range []string{flag, os.Getenv("AWS_REGION"), os.Getenv("AWS_DEFAULT_REGION")} {
		if r != "" {
			return r
		}
	}
	return fallbackRegion
}

func (g *globals) awsConfig(ctx context.Context) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(g.region),
		awsconfig.WithRetryMode(aws.RetryModeStandard),
	}
	if g.profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(g.profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	return cfg, nil
}

// errIssues marks a command that ran but found problems.
var errIssues = errors.New("issues found")
