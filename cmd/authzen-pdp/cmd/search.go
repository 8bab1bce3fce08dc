package cmd

import (
	"github.com/spf13/cobra"

	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/authzen"
)

// searchFlags are shared by the search subcommands.
type searchFlags struct {
	contextJSON string
	pageToken   string
}

func (f *searchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.contextJSON, "context", "", "Request context as a JSON object")
	cmd.Flags().StringVar(&f.pageToken, "page-token", "", "Continuation token from a previous page")
}

func (f *searchFlags) page() *authzen.Page {
	if f.pageToken == "" {
		return nil
	}
	return &authzen.Page{NextToken: f.pageToken}
}

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search subjects, resources or actions",
	}
	cmd.AddCommand(newSearchSubjectCmd(), newSearchResourceCmd(), newSearchActionCmd())
	return cmd
}

func newSearchSubjectCmd() *cobra.Command {
	var f searchFlags
	cmd := &cobra.Command{
		Use:     "subject <subject-type> <action> <resource>",
		Short:   "List subjects allowed to perform an action on a resource",
		Example: `  authzen-pdp search subject identity GET route:/admin`,
		Args:    ExactArgsWithUsage(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			resource, err := parseEntity(args[2])
			if err != nil {
				return err
			}
			reqContext, err := parseContext(f.contextJSON)
			if err != nil {
				return err
			}
			a, _, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.PDP.SubjectSearch(cmd.Context(), &authzen.SubjectSearchRequest{
				Subject:  authzen.SearchEntity{Type: args[0]},
				Action:   authzen.Action{Name: args[1]},
				Resource: resource,
				Context:  reqContext,
				Page:     f.page(),
			})
			if err != nil {
				return err
			}
			return writeSearch(cmd, resp)
		},
	}
	f.register(cmd)
	return cmd
}

func newSearchResourceCmd() *cobra.Command {
	var f searchFlags
	cmd := &cobra.Command{
		Use:     "resource <subject> <action> <resource-type>",
		Short:   "List resources a subject may perform an action on",
		Example: `  authzen-pdp search resource identity:morty GET route`,
		Args:    ExactArgsWithUsage(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, err := parseEntity(args[0])
			if err != nil {
				return err
			}
			reqContext, err := parseContext(f.contextJSON)
			if err != nil {
				return err
			}
			a, _, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.PDP.ResourceSearch(cmd.Context(), &authzen.ResourceSearchRequest{
				Subject:  subject,
				Action:   authzen.Action{Name: args[1]},
				Resource: authzen.SearchEntity{Type: args[2]},
				Context:  reqContext,
				Page:     f.page(),
			})
			if err != nil {
				return err
			}
			return writeSearch(cmd, resp)
		},
	}
	f.register(cmd)
	return cmd
}

func newSearchActionCmd() *cobra.Command {
	var f searchFlags
	cmd := &cobra.Command{
		Use:     "action <subject> <resource>",
		Short:   "List actions a subject may perform on a resource",
		Example: `  authzen-pdp search action identity:rick route:/todos`,
		Args:    ExactArgsWithUsage(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, err := parseEntity(args[0])
			if err != nil {
				return err
			}
			resource, err := parseEntity(args[1])
			if err != nil {
				return err
			}
			reqContext, err := parseContext(f.contextJSON)
			if err != nil {
				return err
			}
			a, _, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.PDP.ActionSearch(cmd.Context(), &authzen.ActionSearchRequest{
				Subject:  subject,
				Resource: resource,
				Context:  reqContext,
				Page:     f.page(),
			})
			if err != nil {
				return err
			}
			if handled, err := formatOutput(cmd.OutOrStdout(), resp); handled || err != nil {
				return err
			}
			printActions(cmd.OutOrStdout(), resp.Results, resp.Page)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func writeSearch(cmd *cobra.Command, resp *authzen.SearchResponse) error {
	if handled, err := formatOutput(cmd.OutOrStdout(), resp); handled || err != nil {
		return err
	}
	return printEntities(cmd.OutOrStdout(), resp.Results, resp.Page)
}
