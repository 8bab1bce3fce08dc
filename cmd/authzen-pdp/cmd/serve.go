package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aws-samples/sample-authzen-interface-verified-permissions/internal/api"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/internal/config"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/internal/version"
)

// shutdownTimeout bounds the drain of in-flight requests.
const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the AuthZEN HTTP server",
		Example: `  authzen-pdp serve --policies ./policies --entities ./cedarentities.json
  POLICY_STORE_ID=PSEXAMPLE ENTITIES_TABLE_NAME=AuthZENEntities authzen-pdp serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cfg, err := openApp(cmd, func(c *config.Config) {
				if cmd.Flags().Changed("listen") {
					c.Listen = listen
				}
			})
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			httpServer := &http.Server{
				Addr:              cfg.Listen,
				Handler:           api.NewServer(a.PDP, api.ServerConfig{Logger: a.Logger}).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.Logger.Info("AuthZEN PDP listening", "addr", cfg.Listen, "version", version.String())
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			a.Logger.Info("Shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return err
			}
			a.Logger.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (default :3000 or :$PORT)")
	return cmd
}
