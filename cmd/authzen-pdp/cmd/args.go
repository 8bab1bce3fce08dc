package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/authzen"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/clierror"
)

// ExactArgsWithUsage returns a validator that requires exactly n arguments.
// If the count is wrong, it shows the command's usage with argument names.
func ExactArgsWithUsage(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return argsError(cmd, n, len(args))
		}
		return nil
	}
}

// argsError creates a helpful error message showing expected usage.
func argsError(cmd *cobra.Command, want, got int) error {
	argNames := extractArgNames(cmd.Use)

	var msg strings.Builder
	fmt.Fprintf(&msg, "requires %d argument(s), received %d\n\n", want, got)
	fmt.Fprintf(&msg, "Usage: %s %s\n", cmd.CommandPath(), strings.Join(argNames, " "))
	fmt.Fprintf(&msg, "\nRun '%s --help' for details.", cmd.CommandPath())
	return clierror.Usage("%s", msg.String())
}

// extractArgNames extracts argument names from a Use string.
// For example: "evaluate <subject> <action> <resource>" returns ["<subject>", "<action>", "<resource>"]
func extractArgNames(use string) []string {
	var args []string
	for _, part := range strings.Fields(use)[1:] {
		if strings.HasPrefix(part, "<") || strings.HasPrefix(part, "[") {
			args = append(args, part)
		}
	}
	return args
}

// parseEntity parses a "type:id" argument. The id may itself contain colons.
func parseEntity(arg string) (authzen.Entity, error) {
	typ, id, ok := strings.Cut(arg, ":")
	if !ok || typ == "" || id == "" {
		return authzen.Entity{}, clierror.Usage("entity %q must be written as type:id", arg)
	}
	return authzen.Entity{Type: typ, ID: id}, nil
}

// parseContext decodes the --context flag, a JSON object.
func parseContext(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var values map[string]any
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, clierror.Usage("--context must be a JSON object: %v", err)
	}
	return values, nil
}
