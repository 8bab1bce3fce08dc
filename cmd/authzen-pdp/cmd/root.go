// Package cmd implements the authzen-pdp CLI commands.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aws-samples/sample-authzen-interface-verified-permissions/internal/app"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/internal/config"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/internal/version"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/clierror"
)

var (
	// Global flags
	outputFormat string
	configPath   string
	policies     string
	entities     string
	logLevel     string
)

// newRootCmd builds the command tree. Global flag variables are rebound to
// their defaults on every call.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "authzen-pdp",
		Short: "AuthZEN policy decision point backed by Cedar",
		Long: `authzen-pdp answers AuthZEN access evaluation and search requests by
delegating to Cedar, either in-process or through Amazon Verified Permissions.

Entities come from a cedarentities.json file, SQLite, Redis or DynamoDB.
Configuration is read from --config, then POLICY_STORE_ID,
ENTITIES_TABLE_NAME, PORT and AWS_REGION, then flags.`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json, yaml")
	flags.StringVarP(&configPath, "config", "c", "", "YAML config file")
	flags.StringVar(&policies, "policies", "", "Policy directory or Verified Permissions policy store id")
	flags.StringVar(&entities, "entities", "", "Entities: cedarentities.json, sqlite://<path>, redis://<addr> or a DynamoDB table")
	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(
		newServeCmd(),
		newEvaluateCmd(),
		newSearchCmd(),
		newEntitiesCmd(),
		newVersionCmd(),
		newCompletionCmd(),
	)
	return root
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for authzen-pdp.

Bash:
  source <(authzen-pdp completion bash)

Zsh:
  authzen-pdp completion zsh > "${fpath[1]}/_authzen-pdp"

Fish:
  authzen-pdp completion fish > ~/.config/fish/completions/authzen-pdp.fish

PowerShell:
  authzen-pdp completion powershell | Out-String | Invoke-Expression`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, out := cmd.Root(), cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return root.GenBashCompletion(out)
			case "zsh":
				return root.GenZshCompletion(out)
			case "fish":
				return root.GenFishCompletion(out, true)
			case "powershell":
				return root.GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unknown shell: %s", args[0])
			}
		},
	}
}

// Execute runs the root command, prints any error in the selected output
// format and returns the process exit code.
func Execute() int {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		cerr := clierror.FromError(err)
		clierror.PrintError(root.ErrOrStderr(), cerr, outputFormat)
		return cerr.ExitCode
	}
	return clierror.ExitSuccess
}

// loadConfig merges the config file, the environment and the global flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("policies") {
		cfg.PolicyStoreID = policies
	}
	if flags.Changed("entities") {
		cfg.Entities = entities
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// openApp loads configuration and wires the PDP. Logs go to stderr.
func openApp(cmd *cobra.Command, mutate ...func(*config.Config)) (*app.App, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	for _, m := range mutate {
		m(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, clierror.InvalidConfig(err)
	}
	logger, err := app.NewLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return a, cfg, nil
}

// formatOutput writes data as json or yaml. It reports false for table
// output, which each command renders itself.
func formatOutput(w io.Writer, data any) (bool, error) {
	switch outputFormat {
	case "json":
		return true, outputJSON(w, data)
	case "yaml":
		return true, outputYAML(w, data)
	case "table", "":
		return false, nil
	default:
		return false, fmt.Errorf("unknown output format %q (table, json, yaml)", outputFormat)
	}
}

func outputJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// outputYAML round-trips through JSON so the json field names are kept.
func outputYAML(w io.Writer, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return err
	}
	out, err := yaml.Marshal(generic)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}
