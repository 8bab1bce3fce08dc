// Package engine defines the decision engine contract shared by the local
// Cedar evaluator and Amazon Verified Permissions, and maps engine answers to
// AuthZEN decisions.
package engine

import (
	"context"
	"strconv"

	"github.com/cedar-policy/cedar-go"

	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/authzen"
)

// DenyByDefault is the reason recorded when no policy determined a deny.
const DenyByDefault = "deny by default"

// DefaultActionType is the Cedar entity type of actions in the global namespace.
const DefaultActionType = "Action"

// Query is one authorization tuple.
type Query struct {
	Principal cedar.EntityUID
	Action    cedar.EntityUID
	Resource  cedar.EntityUID
}

// Answer is the outcome of one Query.
type Answer struct {
	Allow bool
	// Reasons lists the determining policy ids.
	Reasons []string
	// Errors lists policy evaluation errors reported by the engine.
	Errors []string
}

// Engine evaluates queries against one entity set and one context. Any
// failure is returned as an *authzen.Error with CodeEvaluationFailed and no
// partial answers.
type Engine interface {
	Authorize(ctx context.Context, q Query, reqContext cedar.Record, entities []cedar.Entity) (Answer, error)
	// AuthorizeBatch returns answers positionally aligned with qs.
	AuthorizeBatch(ctx context.Context, qs []Query, reqContext cedar.Record, entities []cedar.Entity) ([]Answer, error)
}

// ActionType returns the action entity type for a schema namespace.
func ActionType(namespace string) string {
	if namespace == "" {
		return DefaultActionType
	}
	return namespace + "::" + DefaultActionType
}

// Response maps the answer to an AuthZEN decision. reason_admin is keyed by
// position and holds the determining policy ids; it is omitted when the
// engine reported none.
func (a Answer) Response() authzen.EvaluationResponse {
	resp := authzen.EvaluationResponse{Decision: a.Allow}
	if len(a.Reasons) == 0 {
		return resp
	}
	reasons := make(map[string]string, len(a.Reasons))
	for i, id := range a.Reasons {
		reasons[strconv.Itoa(i)] = id
	}
	resp.Context = &authzen.ReasonContext{ReasonAdmin: reasons}
	return resp
}

// Explanation returns the reasons for logging, DenyByDefault for a deny
// without determining policies.
func (a Answer) Explanation() []string {
	if !a.Allow && len(a.Reasons) == 0 {
		return []string{DenyByDefault}
	}
	return a.Reasons
}

// DecisionString returns "allow" or "deny".
func (a Answer) DecisionString() string {
	if a.Allow {
		return "allow"
	}
	return "deny"
}
