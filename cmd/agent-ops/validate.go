package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/triage-ai/palisade/services/agent_gateway/internal/envelope"
)

func newValidateResponseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-response FILE",
		Short: "Check a Lambda response against the Bedrock action-group contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(args[0])
			if err != nil {
				return err
			}
			return report(cmd.OutOrStdout(), "response", envelope.ValidateResponse(raw))
		},
	}
}

func newValidateSchemaCommand() *cobra.Command {
	var showRoutes bool
	cmd := &cobra.Command{
		Use:   "validate-schema FILE",
		Short: "Check an action-group OpenAPI schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := report(out, "schema", envelope.ValidateOpenAPI(raw)); err != nil {
				return err
			}
			if showRoutes {
				routes, err := envelope.Routes(raw)
				if err != nil {
					return err
				}
				for _, key := range sortedRouteKeys(routes) {
					fmt.Fprintf(out, "  %s -> %s\n", key, routes[key])
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showRoutes, "routes", false, "print the operation id of every route")
	return cmd
}

// report prints issues and fails when any is an error.
func report(w io.Writer, what string, issues []envelope.Issue) error {
	for _, i := range issues {
		fmt.Fprintf(w, "  %s\n", i)
	}
	if envelope.HasErrors(issues) {
		return fmt.Errorf("%s invalid: %w", what, errIssues)
	}
	fmt.Fprintf(w, "%s ok (%d warning(s))\n", what, len(issues))
	return nil
}

// readInput reads a file, or stdin for "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
