package pdp

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cedar-policy/cedar-go"

	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/authzen"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/engine"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/pip"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/resolve"
)

// Defaults for search paging and fan-out.
const (
	DefaultPageSize    = 50
	DefaultConcurrency = 8
)

// Operation names recorded in the audit trail.
const (
	OpEvaluation     = "evaluation"
	OpEvaluations    = "evaluations"
	OpSubjectSearch  = "subject_search"
	OpResourceSearch = "resource_search"
	OpActionSearch   = "action_search"
)

// Config contains options for the PDP.
type Config struct {
	// Logger for operational logging. If nil, uses slog.Default().
	Logger *slog.Logger

	// Engine evaluates Cedar queries. Required.
	Engine engine.Engine

	// Provider resolves entities without inline properties. Optional; searches
	// need it to implement pip.Scanner or pip.ActionFinder.
	Provider pip.Provider

	// Audit records decisions. If nil, decisions go to Logger.
	Audit AuditLogger

	// ActionType is the Cedar entity type of actions. Defaults to "Action".
	ActionType string

	// PageSize is the number of search candidates per page.
	PageSize int

	// Concurrency bounds concurrent candidate evaluations during search.
	Concurrency int
}

// PDP is the AuthZEN policy decision point. It is safe for concurrent use.
type PDP struct {
	engine      engine.Engine
	resolver    *resolve.Resolver
	audit       AuditLogger
	logger      *slog.Logger
	actionType  string
	pageSize    int
	concurrency int
	now         func() time.Time
}

var _ authzen.PDP = (*PDP)(nil)

// New creates a PDP.
func New(cfg Config) (*PDP, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	audit := cfg.Audit
	if audit == nil {
		audit = NewSlogAuditLogger(logger)
	}
	p := &PDP{
		engine:      cfg.Engine,
		resolver:    resolve.New(cfg.Provider),
		audit:       audit,
		logger:      logger,
		actionType:  cfg.ActionType,
		pageSize:    cfg.PageSize,
		concurrency: cfg.Concurrency,
		now:         time.Now,
	}
	if p.actionType == "" {
		p.actionType = engine.DefaultActionType
	}
	if p.pageSize <= 0 {
		p.pageSize = DefaultPageSize
	}
	if p.concurrency <= 0 {
		p.concurrency = DefaultConcurrency
	}
	return p, nil
}

func (p *PDP) query(subject authzen.Entity, action authzen.Action, resource authzen.Entity) engine.Query {
	return engine.Query{
		Principal: pip.NewUID(subject.Type, subject.ID),
		Action:    pip.NewUID(p.actionType, action.Name),
		Resource:  pip.NewUID(resource.Type, resource.ID),
	}
}

func requestContext(values map[string]any) (cedar.Record, error) {
	rec, err := resolve.ToRecord(values)
	if err != nil {
		return cedar.Record{}, authzen.ErrValidation("context: %v", err)
	}
	return rec, nil
}

// engineError guarantees engine failures surface as EvaluationFailed.
func engineError(err error) error {
	if authzen.IsError(err) {
		return err
	}
	return authzen.ErrEvaluationFailed(err)
}

// Evaluation answers a single access evaluation.
func (p *PDP) Evaluation(ctx context.Context, req *authzen.EvaluationRequest) (*authzen.EvaluationResponse, error) {
	return p.evaluate(ctx, OpEvaluation, req)
}

func (p *PDP) evaluate(ctx context.Context, op string, req *authzen.EvaluationRequest) (*authzen.EvaluationResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx, requestID := EnsureRequestID(ctx)
	start := p.now()

	reqContext, err := requestContext(req.Context)
	if err != nil {
		return nil, err
	}
	entities, err := p.resolver.DetermineEntities(ctx, []authzen.Entity{req.Subject, req.Resource})
	if err != nil {
		return nil, err
	}

	q := p.query(req.Subject, req.Action, req.Resource)
	answer, err := p.engine.Authorize(ctx, q, reqContext, entities)
	if err != nil {
		p.logger.Error("evaluation failed", "request_id", requestID, "error", err)
		return nil, engineError(err)
	}

	p.record(ctx, op, requestID, q, answer, p.now().Sub(start))
	resp := answer.Response()
	return &resp, nil
}

// Evaluations answers a batch against one shared entity set and one engine
// call, applying the request's evaluation semantics to the answers.
func (p *PDP) Evaluations(ctx context.Context, req *authzen.EvaluationsRequest) (*authzen.EvaluationsResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx, requestID := EnsureRequestID(ctx)
	start := p.now()

	resp := &authzen.EvaluationsResponse{Evaluations: []authzen.EvaluationResponse{}}
	if len(req.Evaluations) == 0 {
		return resp, nil
	}

	reqContext, err := requestContext(req.Context)
	if err != nil {
		return nil, err
	}
	entities, err := p.resolver.ExtractEntities(ctx, req)
	if err != nil {
		return nil, err
	}

	qs := make([]engine.Query, len(req.Evaluations))
	for i := range req.Evaluations {
		qs[i] = p.query(req.SubjectFor(i), req.ActionFor(i), req.ResourceFor(i))
	}
	answers, err := p.engine.AuthorizeBatch(ctx, qs, reqContext, entities)
	if err != nil {
		p.logger.Error("batch evaluation failed", "request_id", requestID, "items", len(qs), "error", err)
		return nil, engineError(err)
	}

	elapsed := p.now().Sub(start)
	semantics := req.Semantics()
	for i, answer := range answers {
		p.record(ctx, OpEvaluations, requestID, qs[i], answer, elapsed)
		resp.Evaluations = append(resp.Evaluations, answer.Response())
		if semantics == authzen.DenyOnFirstDeny && !answer.Allow {
			break
		}
		if semantics == authzen.PermitOnFirstPermit && answer.Allow {
			break
		}
	}
	return resp, nil
}

// record sends a decision to the audit trail. Audit failures are logged and
// never change the decision.
func (p *PDP) record(ctx context.Context, op, requestID string, q engine.Query, answer engine.Answer, elapsed time.Duration) {
	entry := DecisionAuditEntry{
		Timestamp:  p.now(),
		RequestID:  requestID,
		Operation:  op,
		Principal:  pip.EntityKey(q.Principal),
		Action:     string(q.Action.ID),
		Resource:   pip.EntityKey(q.Resource),
		Decision:   answer.DecisionString(),
		Reasons:    answer.Explanation(),
		Errors:     answer.Errors,
		DurationUS: elapsed.Microseconds(),
	}
	if err := p.audit.LogDecision(ctx, entry); err != nil {
		p.logger.Warn("failed to record audit entry", "request_id", requestID, "error", err)
	}
}
