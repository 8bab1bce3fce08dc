// AWS Lambda entrypoint for the AuthZEN PDP. Configuration comes from
// POLICY_STORE_ID, ENTITIES_TABLE_NAME and AWS_REGION.
package main

import (
	"context"
	"log/slog"
	"os"

	awslambda "github.com/aws/aws-lambda-go/lambda"

	"github.com/aws-samples/sample-authzen-interface-verified-permissions/internal/app"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/internal/config"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/internal/lambda"
)

func main() {
	cfg, err := config.Load(os.Getenv("AUTHZEN_CONFIG"))
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg.Log.Format = "json"
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger, err := app.NewLogger(cfg, os.Stdout)
	if err != nil {
		slog.Error("invalid log configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize PDP", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	awslambda.Start(lambda.NewHandler(a.PDP, logger).Handle)
}
