// Package local evaluates AuthZEN queries in-process with cedar-go.
//
// Policies are loaded once, typically from a directory of .cedar files. A
// policy's id is the name of its file; a file holding several policies
// yields <file>, <file>#1, <file>#2 and so on.
package local

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/cedar-policy/cedar-go"

	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/authzen"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/engine"
)

// PolicyExt is the extension of policy files read by LoadDir.
const PolicyExt = ".cedar"

// Config contains options for the Engine.
type Config struct {
	// Logger for policy evaluation errors. If nil, uses slog.Default().
	Logger *slog.Logger

	// Policies is the policy set to evaluate. Required.
	Policies *cedar.PolicySet
}

// Engine is a read-only Cedar evaluator, safe for concurrent use.
type Engine struct {
	policies *cedar.PolicySet
	logger   *slog.Logger
}

var _ engine.Engine = (*Engine)(nil)

// New creates an engine over cfg.Policies.
func New(cfg Config) (*Engine, error) {
	if cfg.Policies == nil {
		return nil, fmt.Errorf("policy set is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{policies: cfg.Policies, logger: logger}, nil
}

// LoadDir parses every .cedar file in dir, in file name order.
func LoadDir(dir string) (*cedar.PolicySet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy directory: %w", err)
	}

	ps := cedar.NewPolicySet()
	count := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != PolicyExt {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read policy %s: %w", entry.Name(), err)
		}
		n, err := addPolicies(ps, entry.Name(), data)
		if err != nil {
			return nil, err
		}
		count += n
	}
	if count == 0 {
		return nil, fmt.Errorf("no policies found in %s", dir)
	}
	return ps, nil
}

// ParsePolicies parses a single policy document, naming policies after name.
func ParsePolicies(name string, data []byte) (*cedar.PolicySet, error) {
	ps := cedar.NewPolicySet()
	if _, err := addPolicies(ps, name, data); err != nil {
		return nil, err
	}
	return ps, nil
}

func addPolicies(ps *cedar.PolicySet, name string, data []byte) (int, error) {
	policies, err := cedar.NewPolicyListFromBytes(name, data)
	if err != nil {
		return 0, fmt.Errorf("failed to parse policies: %w", err)
	}
	for i, p := range policies {
		id := name
		if i > 0 {
			id = fmt.Sprintf("%s#%d", name, i)
		}
		if !ps.Add(cedar.PolicyID(id), p) {
			return 0, fmt.Errorf("duplicate policy id %s", id)
		}
	}
	return len(policies), nil
}

// Authorize evaluates one query.
func (e *Engine) Authorize(ctx context.Context, q engine.Query, reqContext cedar.Record, entities []cedar.Entity) (engine.Answer, error) {
	answers, err := e.AuthorizeBatch(ctx, []engine.Query{q}, reqContext, entities)
	if err != nil {
		return engine.Answer{}, err
	}
	return answers[0], nil
}

// AuthorizeBatch evaluates qs against one entity map built once.
func (e *Engine) AuthorizeBatch(ctx context.Context, qs []engine.Query, reqContext cedar.Record, entities []cedar.Entity) ([]engine.Answer, error) {
	if err := ctx.Err(); err != nil {
		return nil, authzen.ErrEvaluationFailed(err)
	}

	em := make(cedar.EntityMap, len(entities))
	for _, ent := range entities {
		em[ent.UID] = ent
	}

	answers := make([]engine.Answer, len(qs))
	for i, q := range qs {
		decision, diag := cedar.Authorize(e.policies, em, cedar.Request{
			Principal: q.Principal,
			Action:    q.Action,
			Resource:  q.Resource,
			Context:   reqContext,
		})

		answer := engine.Answer{Allow: decision == cedar.Allow}
		for _, r := range diag.Reasons {
			answer.Reasons = append(answer.Reasons, string(r.PolicyID))
		}
		slices.Sort(answer.Reasons)
		for _, de := range diag.Errors {
			answer.Errors = append(answer.Errors, string(de.PolicyID)+": "+de.Message)
			e.logger.Error("policy evaluation error",
				"policy", de.PolicyID,
				"error", de.Message,
			)
		}
		answers[i] = answer
	}
	return answers, nil
}

// PolicyIDs returns the loaded policy ids in sorted order.
func (e *Engine) PolicyIDs() []string {
	var ids []string
	for id := range e.policies.All() {
		ids = append(ids, string(id))
	}
	slices.Sort(ids)
	return ids
}
