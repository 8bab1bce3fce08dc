// Package pdp implements the AuthZEN policy decision point: single and
// batched access evaluation plus subject, resource and action search.
//
// A PDP composes three collaborators, all injected through Config:
//
//   - a pip.Provider for entity lookup (optional; inline entities only without it)
//   - an engine.Engine that evaluates Cedar queries (local or Verified Permissions)
//   - an AuditLogger that records every decision
//
// Every operation resolves entities fresh; the engine's policy set is loaded
// once by the caller and shared read-only.
//
// # Batched evaluation
//
// Evaluations resolves one entity set for the whole batch, calls the engine
// once, and then walks the answers in order. With deny_on_first_deny the
// response stops after the first deny; with permit_on_first_permit after the
// first permit. execute_all (the default) returns every decision.
//
// # Search
//
// Searches enumerate candidates from the provider (pip.Scanner for subjects
// and resources, pip.ActionFinder for actions), page them, and keep the
// candidates whose evaluation is allowed. Candidates of a page are evaluated
// concurrently; results keep enumeration order.
package pdp
