package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aws-samples/sample-authzen-interface-verified-permissions/internal/app"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/clierror"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/pip"
)

func newEntitiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entities",
		Short: "Manage the entity store",
	}
	cmd.AddCommand(newEntitiesLoadCmd(), newEntitiesScanCmd())
	return cmd
}

func newEntitiesLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <file>",
		Short: "Load a cedarentities.json document into the entity store",
		Long: `Load every entity of a Cedar JSON entities document into the configured
keyed store (SQLite, Redis or DynamoDB). Existing entities are replaced.`,
		Example: `  authzen-pdp entities load cedarentities.json --entities sqlite://entities.db
  authzen-pdp entities load cedarentities.json --entities AuthZENEntities`,
		Args: ExactArgsWithUsage(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := pip.LoadEntitiesFile(args[0])
			if err != nil {
				return err
			}
			a, cfg, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Seed(cmd.Context(), list); err != nil {
				if errors.Is(err, app.ErrReadOnlyProvider) {
					return clierror.ReadOnlyStore(cfg.Entities)
				}
				return fmt.Errorf("failed to load entities: %w", err)
			}

			result := map[string]any{"loaded": len(list), "entities": cfg.Entities}
			if handled, err := formatOutput(cmd.OutOrStdout(), result); handled || err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d entities into %s\n", len(list), cfg.Entities)
			return nil
		},
	}
}

func newEntitiesScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "scan <type>",
		Short:   "List the ids of every entity of a type",
		Example: `  authzen-pdp entities scan route --entities ./cedarentities.json`,
		Args:    ExactArgsWithUsage(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			scanner, ok := a.Provider.(pip.Scanner)
			if !ok {
				return errors.New("the configured entity provider cannot enumerate entities")
			}
			ids, err := scanner.ScanEntities(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if handled, err := formatOutput(cmd.OutOrStdout(), ids); handled || err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}
