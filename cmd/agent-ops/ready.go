package main

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/spf13/cobra"

	"github.com/triage-ai/palisade/services/agent_gateway/internal/agentops"
)

func newWaitReadyCommand(g *globals) *cobra.Command {
	var (
		opts    agentops.ReadyOptions
		logsFor time.Duration
	)
	cmd := &cobra.Command{
		Use:   "wait-ready AGENT_ID",
		Short: "Wait for an agent to be stably PREPARED and check its action groups",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			agentID := args[0]
			cfg, err := g.awsConfig(ctx)
			if err != nil {
				return err
			}
			r := agentops.NewReadiness(
				bedrockagent.NewFromConfig(cfg),
				lambda.NewFromConfig(cfg),
				cloudwatchlogs.NewFromConfig(cfg),
				g.logger,
			)
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "waiting for %s to be PREPARED\n", agentID)
			if err := r.WaitReady(ctx, agentID, opts); err != nil {
				return err
			}
			fmt.Fprintln(out, "agent is ready")

			groups, issues, err := r.CheckActionGroups(ctx, agentID)
			if err != nil {
				return err
			}
			for _, i := range issues {
				fmt.Fprintf(out, "  action group %s: %s\n", orNone(i.Name), i.Problem)
			}

			seen := map[string]bool{}
			for _, grp := range groups {
				if grp.LambdaARN == "" || seen[grp.LambdaARN] {
					continue
				}
				seen[grp.LambdaARN] = true
				ok, err := r.CheckLambdaPermission(ctx, grp.LambdaARN)
				if err != nil {
					return err
				}
				if !ok {
					issues = append(issues, agentops.ActionGroupIssue{Name: grp.Name, Problem: "lambda does not allow bedrock.amazonaws.com"})
					fmt.Fprintf(out, "  lambda %s: bedrock cannot invoke it\n", grp.LambdaARN)
				}
				if logsFor > 0 {
					lines, err := r.RecentLogs(ctx, grp.LambdaARN, time.Now().Add(-logsFor))
					if err != nil {
						g.logger.Sugar().Warnf("recent logs unavailable for %s: %v", grp.LambdaARN, err)
						continue
					}
					fmt.Fprintf(out, "  recent logs of %s:\n", agentops.LogGroupName(grp.LambdaARN))
					for _, l := range lines {
						fmt.Fprintf(out, "    %s\n", l)
					}
				}
			}

			if len(issues) > 0 {
				return fmt.Errorf("%s: %w", agentID, errIssues)
			}
			fmt.Fprintln(out, "action groups ok")
			return nil
		},
	}
	cmd.Flags().DurationVar(&opts.Interval, "interval", 5*time.Second, "poll interval")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 5*time.Minute, "give up after this long")
	cmd.Flags().IntVar(&opts.Consecutive, "consecutive", 3, "PREPARED checks required in a row")
	cmd.Flags().DurationVar(&logsFor, "logs", 0, "also print Lambda logs from this far back, e.g. 15m")
	return cmd
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
