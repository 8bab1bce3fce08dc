// Package avp evaluates AuthZEN queries with Amazon Verified Permissions.
//
// Entities and context are sent in Cedar JSON form. Batches are split into
// chunks of at most MaxBatchRequests, issued concurrently, and reassembled in
// request order.
package avp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/verifiedpermissions"
	"github.com/aws/aws-sdk-go-v2/service/verifiedpermissions/types"
	"github.com/cedar-policy/cedar-go"
	"golang.org/x/sync/errgroup"

	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/authzen"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/engine"
)

// MaxBatchRequests is the BatchIsAuthorized request limit.
const MaxBatchRequests = 30

// API is the subset of the Verified Permissions client used by Engine.
type API interface {
	IsAuthorized(ctx context.Context, params *verifiedpermissions.IsAuthorizedInput, optFns ...func(*verifiedpermissions.Options)) (*verifiedpermissions.IsAuthorizedOutput, error)
	BatchIsAuthorized(ctx context.Context, params *verifiedpermissions.BatchIsAuthorizedInput, optFns ...func(*verifiedpermissions.Options)) (*verifiedpermissions.BatchIsAuthorizedOutput, error)
}

// Config contains options for the Engine.
type Config struct {
	// Logger for evaluation errors. If nil, uses slog.Default().
	Logger *slog.Logger

	// PolicyStoreID identifies the policy store. Required.
	PolicyStoreID string

	// Concurrency bounds in-flight batch chunks. Defaults to 4.
	Concurrency int
}

// Engine calls Verified Permissions.
type Engine struct {
	client        API
	policyStoreID string
	concurrency   int
	logger        *slog.Logger
}

var _ engine.Engine = (*Engine)(nil)

// New creates an engine over client.
func New(client API, cfg Config) (*Engine, error) {
	if cfg.PolicyStoreID == "" {
		return nil, fmt.Errorf("policy store id is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Engine{
		client:        client,
		policyStoreID: cfg.PolicyStoreID,
		concurrency:   concurrency,
		logger:        logger,
	}, nil
}

// PolicyStoreID returns the configured policy store.
func (e *Engine) PolicyStoreID() string {
	return e.policyStoreID
}

func entityIdentifier(uid cedar.EntityUID) *types.EntityIdentifier {
	return &types.EntityIdentifier{
		EntityType: aws.String(string(uid.Type)),
		EntityId:   aws.String(string(uid.ID)),
	}
}

func actionIdentifier(uid cedar.EntityUID) *types.ActionIdentifier {
	return &types.ActionIdentifier{
		ActionType: aws.String(string(uid.Type)),
		ActionId:   aws.String(string(uid.ID)),
	}
}

func encode(reqContext cedar.Record, entities []cedar.Entity) (types.ContextDefinition, types.EntitiesDefinition, error) {
	ctxJSON, err := json.Marshal(reqContext)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode context: %w", err)
	}
	if entities == nil {
		entities = []cedar.Entity{}
	}
	entJSON, err := json.Marshal(entities)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode entities: %w", err)
	}
	return &types.ContextDefinitionMemberCedarJson{Value: string(ctxJSON)},
		&types.EntitiesDefinitionMemberCedarJson{Value: string(entJSON)},
		nil
}

func (e *Engine) answer(decision types.Decision, policies []types.DeterminingPolicyItem, errs []types.EvaluationErrorItem) engine.Answer {
	answer := engine.Answer{Allow: decision == types.DecisionAllow}
	for _, p := range policies {
		answer.Reasons = append(answer.Reasons, aws.ToString(p.PolicyId))
	}
	slices.Sort(answer.Reasons)
	for _, ee := range errs {
		msg := aws.ToString(ee.ErrorDescription)
		answer.Errors = append(answer.Errors, msg)
		e.logger.Error("policy evaluation error",
			"policy_store", e.policyStoreID,
			"error", msg,
		)
	}
	return answer
}

// Authorize evaluates one query with IsAuthorized.
func (e *Engine) Authorize(ctx context.Context, q engine.Query, reqContext cedar.Record, entities []cedar.Entity) (engine.Answer, error) {
	cd, ed, err := encode(reqContext, entities)
	if err != nil {
		return engine.Answer{}, authzen.ErrEvaluationFailed(err)
	}

	out, err := e.client.IsAuthorized(ctx, &verifiedpermissions.IsAuthorizedInput{
		PolicyStoreId: aws.String(e.policyStoreID),
		Principal:     entityIdentifier(q.Principal),
		Action:        actionIdentifier(q.Action),
		Resource:      entityIdentifier(q.Resource),
		Context:       cd,
		Entities:      ed,
	})
	if err != nil {
		return engine.Answer{}, authzen.ErrEvaluationFailed(err)
	}
	return e.answer(out.Decision, out.DeterminingPolicies, out.Errors), nil
}

// AuthorizeBatch evaluates qs with BatchIsAuthorized. Any chunk failure
// fails the whole batch.
func (e *Engine) AuthorizeBatch(ctx context.Context, qs []engine.Query, reqContext cedar.Record, entities []cedar.Entity) ([]engine.Answer, error) {
	if len(qs) == 0 {
		return []engine.Answer{}, nil
	}
	cd, ed, err := encode(reqContext, entities)
	if err != nil {
		return nil, authzen.ErrEvaluationFailed(err)
	}

	answers := make([]engine.Answer, len(qs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for start := 0; start < len(qs); start += MaxBatchRequests {
		chunk := qs[start:min(start+MaxBatchRequests, len(qs))]
		g.Go(func() error {
			items := make([]types.BatchIsAuthorizedInputItem, len(chunk))
			for i, q := range chunk {
				items[i] = types.BatchIsAuthorizedInputItem{
					Principal: entityIdentifier(q.Principal),
					Action:    actionIdentifier(q.Action),
					Resource:  entityIdentifier(q.Resource),
					Context:   cd,
				}
			}
			out, err := e.client.BatchIsAuthorized(gctx, &verifiedpermissions.BatchIsAuthorizedInput{
				PolicyStoreId: aws.String(e.policyStoreID),
				Entities:      ed,
				Requests:      items,
			})
			if err != nil {
				return err
			}
			if len(out.Results) != len(chunk) {
				return fmt.Errorf("batch returned %d results for %d requests", len(out.Results), len(chunk))
			}
			// Each chunk writes a disjoint range of answers.
			for i, r := range out.Results {
				answers[start+i] = e.answer(r.Decision, r.DeterminingPolicies, r.Errors)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, authzen.ErrEvaluationFailed(err)
	}
	return answers, nil
}
