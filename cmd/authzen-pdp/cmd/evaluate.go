package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/authzen"
)

func newEvaluateCmd() *cobra.Command {
	var (
		contextJSON string
		batchFile   string
	)
	cmd := &cobra.Command{
		Use:   "evaluate <subject> <action> <resource>",
		Short: "Evaluate an access request",
		Long: `Evaluate whether a subject may perform an action on a resource.

Subjects and resources are written as type:id. With --batch, the request is
read from a JSON file holding an AuthZEN evaluations request instead.`,
		Example: `  authzen-pdp evaluate identity:rick GET route:/admin --policies ./policies --entities ./cedarentities.json
  authzen-pdp evaluate identity:U1 GET route:/todos --context '{"ip":"10.0.0.1"}'
  authzen-pdp evaluate --batch requests.json -o json`,
		Args: func(cmd *cobra.Command, args []string) error {
			if batchFile != "" {
				return cobra.NoArgs(cmd, args)
			}
			return ExactArgsWithUsage(3)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if batchFile != "" {
				return runEvaluations(cmd, batchFile)
			}

			subject, err := parseEntity(args[0])
			if err != nil {
				return err
			}
			resource, err := parseEntity(args[2])
			if err != nil {
				return err
			}
			reqContext, err := parseContext(contextJSON)
			if err != nil {
				return err
			}

			a, _, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.PDP.Evaluation(cmd.Context(), &authzen.EvaluationRequest{
				Subject:  subject,
				Action:   authzen.Action{Name: args[1]},
				Resource: resource,
				Context:  reqContext,
			})
			if err != nil {
				return err
			}
			if handled, err := formatOutput(cmd.OutOrStdout(), resp); handled || err != nil {
				return err
			}
			printDecision(cmd.OutOrStdout(), *resp)
			return nil
		},
	}
	cmd.Flags().StringVar(&contextJSON, "context", "", "Request context as a JSON object")
	cmd.Flags().StringVar(&batchFile, "batch", "", "JSON file with an evaluations request")
	return cmd
}

func runEvaluations(cmd *cobra.Command, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read batch: %w", err)
	}
	var req authzen.EvaluationsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("failed to parse batch: %w", err)
	}

	a, _, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.PDP.Evaluations(cmd.Context(), &req)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if handled, err := formatOutput(out, resp); handled || err != nil {
		return err
	}
	for i, e := range resp.Evaluations {
		fmt.Fprintf(out, "[%d] ", i)
		printDecision(out, e)
	}
	if len(resp.Evaluations) < len(req.Evaluations) {
		fmt.Fprintf(out, "%s\n", dimFmt(fmt.Sprintf("stopped after %d of %d (%s)",
			len(resp.Evaluations), len(req.Evaluations), req.Semantics())))
	}
	return nil
}
