package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/triage-ai/palisade/services/agent_gateway/internal/config"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/envelope"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/guard"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/mapper"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/registry"
)

// dryRun is what the map command prints.
type dryRun struct {
	Operation string           `json:"operation"`
	Tool      string           `json:"tool"`
	Arguments mapper.Arguments `json:"arguments"`
	Dropped   []string         `json:"dropped,omitempty"`
	Accepted  []string         `json:"accepted,omitempty"` // set when something was dropped
}

func newMapCommand(g *globals) *cobra.Command {
	var (
		registryFile string
		eventFile    string
	)
	cmd := &cobra.Command{
		Use:   "map [OPERATION name=value ...]",
		Short: "Show the gateway call an operation would produce, without calling it",
		Long: "Map runs the parameter mapper and argument guard offline. Pass an " +
			"operation id with name=value pairs, or --event with a captured " +
			"action-group event.",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := config.LoadCatalog(cmd.Context(), registryFile, "", g.logger)
			if err != nil {
				return err
			}

			var (
				operation string
				inbound   []mapper.InboundParameter
			)
			if eventFile != "" {
				operation, inbound, err = fromEvent(eventFile, catalog)
			} else {
				if len(args) == 0 {
					return fmt.Errorf("an operation id or --event is required")
				}
				operation = args[0]
				inbound, err = parseAssignments(args[1:])
			}
			if err != nil {
				return err
			}

			res, err := mapper.New(catalog, g.logger).Map(operation, inbound)
			if err != nil {
				return err
			}
			if err := guard.New(catalog, g.logger).Check(cmd.Context(), res.ToolName, res.Arguments); err != nil {
				return err
			}

			out := dryRun{Operation: operation, Tool: res.ToolName, Arguments: res.Arguments}
			for _, w := range res.Warnings {
				out.Dropped = append(out.Dropped, w.Name)
			}
			if len(out.Dropped) > 0 {
				out.Accepted = catalog.Aliases(res.ToolName)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&registryFile, "registry", "", "tool registry file (default built-in)")
	cmd.Flags().StringVar(&eventFile, "event", "", "action-group event JSON file, or - for stdin")
	return cmd
}

// parseAssignments turns name=value pairs into string parameters, the way
// Bedrock sends them.
func parseAssignments(pairs []string) ([]mapper.InboundParameter, error) {
	params := make([]mapper.InboundParameter, 0, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("parameter %q is not name=value", p)
		}
		params = append(params, mapper.InboundParameter{Name: name, Type: "string", Value: registry.String(value)})
	}
	return params, nil
}

// fromEvent picks the first operation candidate the registry knows.
func fromEvent(path string, catalog *registry.Catalog) (string, []mapper.InboundParameter, error) {
	raw, err := readInput(path)
	if err != nil {
		return "", nil, err
	}
	var ev envelope.ActionGroupEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return "", nil, fmt.Errorf("decode event: %w", err)
	}
	candidates := ev.OperationCandidates()
	if len(candidates) == 0 {
		return "", nil, fmt.Errorf("event names no operation")
	}
	for _, c := range candidates {
		if _, ok := catalog.ResolveOperation(c); ok {
			return c, ev.Inbound(), nil
		}
	}
	return candidates[0], ev.Inbound(), nil
}

func sortedRouteKeys(routes envelope.RouteTable) []string {
	keys := make([]string, 0, len(routes))
	for k := range routes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
