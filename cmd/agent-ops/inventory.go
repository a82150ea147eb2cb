package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	"github.com/spf13/cobra"

	"github.com/triage-ai/palisade/services/agent_gateway/internal/agentops"
)

func newInventoryCommand(g *globals) *cobra.Command {
	var (
		agentName string
		output    string
	)
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "List agents with their versions, aliases and action groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := g.awsConfig(ctx)
			if err != nil {
				return err
			}
			inv, err := agentops.NewCollector(bedrockagent.NewFromConfig(cfg), g.logger).Collect(ctx, g.region)
			if err != nil {
				return err
			}

			if agentName != "" {
				matches := inv.FindByName(agentName)
				if len(matches) == 0 {
					return fmt.Errorf("no agent matching %q in %s", agentName, g.region)
				}
				active := make([]agentops.ActiveConfig, 0, len(matches))
				for _, a := range matches {
					active = append(active, a.ActiveConfig())
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(active)
			}

			if err := inv.WriteText(cmd.OutOrStdout()); err != nil {
				return err
			}
			if output != "" {
				if err := inv.SaveJSON(output); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "inventory saved to %s\n", output)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&agentName, "agent", "", "show the active configuration of agents whose name contains this")
	cmd.Flags().StringVarP(&output, "output", "o", "", "also write the full inventory as JSON to this file")
	return cmd
}
