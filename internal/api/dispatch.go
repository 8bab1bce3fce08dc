package api

import (
	"context"
	"encoding/json"

	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/authzen"
)

// Operation names a PDP operation. The values double as the "api" field of
// the Lambda event envelope.
type Operation string

const (
	OpEvaluation     Operation = "evaluation"
	OpEvaluations    Operation = "evaluations"
	OpSubjectSearch  Operation = "subjectsearch"
	OpResourceSearch Operation = "resourcesearch"
	OpActionSearch   Operation = "actionsearch"
)

// Dispatch decodes body as the request of op and runs it on p.
func Dispatch(ctx context.Context, p authzen.PDP, op Operation, body []byte) (any, error) {
	switch op {
	case OpEvaluation:
		return call(ctx, body, p.Evaluation)
	case OpEvaluations:
		return call(ctx, body, p.Evaluations)
	case OpSubjectSearch:
		return call(ctx, body, p.SubjectSearch)
	case OpResourceSearch:
		return call(ctx, body, p.ResourceSearch)
	case OpActionSearch:
		return call(ctx, body, p.ActionSearch)
	}
	return nil, authzen.ErrValidation("unknown api %q", op)
}

func call[Req, Resp any](ctx context.Context, body []byte, fn func(context.Context, *Req) (*Resp, error)) (any, error) {
	var req Req
	if err := decodeRequest(body, &req); err != nil {
		return nil, err
	}
	resp, err := fn(ctx, &req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func decodeRequest(body []byte, v any) error {
	if len(body) == 0 {
		return authzen.ErrValidation("request body is required")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return authzen.ErrValidation("invalid request body: %v", err)
	}
	return nil
}
