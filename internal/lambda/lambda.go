// Package lambda adapts the PDP to an AWS Lambda event envelope of the form
// {"api": "<operation>", "request": {...}}.
package lambda

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/aws/aws-lambda-go/lambdacontext"

	"github.com/aws-samples/sample-authzen-interface-verified-permissions/internal/api"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/authzen"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/pdp"
)

// Event is the invocation payload.
type Event struct {
	API     api.Operation   `json:"api"`
	Request json.RawMessage `json:"request"`
}

// Handler dispatches events onto a PDP.
type Handler struct {
	pdp    authzen.PDP
	logger *slog.Logger
}

// NewHandler creates a Handler. A nil logger uses slog.Default().
func NewHandler(p authzen.PDP, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{pdp: p, logger: logger}
}

// Handle runs the operation named by the event. The Lambda request id is
// used for decision correlation.
func (h *Handler) Handle(ctx context.Context, ev Event) (any, error) {
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		ctx = pdp.ContextWithRequestID(ctx, lc.AwsRequestID)
	}
	if ev.API == "" {
		return nil, authzen.ErrValidation("api is required")
	}

	resp, err := api.Dispatch(ctx, h.pdp, ev.API, ev.Request)
	if err != nil {
		h.logger.Error("invocation failed",
			"api", ev.API,
			"code", authzen.ErrorCode(err),
			"error", err,
			"request_id", pdp.RequestIDFromContext(ctx),
		)
		return nil, err
	}
	return resp, nil
}
