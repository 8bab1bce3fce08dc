// Package resolve turns request-level AuthZEN entities into the Cedar entity
// set handed to the policy engine.
//
// An entity that carries inline properties is trusted as-is: its attributes
// are the converted properties and it has no parents. Every other entity is
// looked up through the configured pip.Provider in a single call per
// resolution. The result never contains two entities with the same canonical
// key; the first occurrence wins.
package resolve

import (
	"context"
	"encoding/json"

	"github.com/cedar-policy/cedar-go"

	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/authzen"
	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/pip"
)

// Resolver merges inline entity data with provider lookups.
type Resolver struct {
	provider pip.Provider
}

// New returns a Resolver. A nil provider resolves inline entities only.
func New(provider pip.Provider) *Resolver {
	return &Resolver{provider: provider}
}

// Provider returns the configured provider, possibly nil.
func (r *Resolver) Provider() pip.Provider {
	return r.provider
}

// DetermineEntities resolves entities with at most one provider call. Inline
// data for a key wins over any lookup of the same key.
func (r *Resolver) DetermineEntities(ctx context.Context, entities []authzen.Entity) ([]cedar.Entity, error) {
	seen := make(map[string]struct{}, len(entities))
	var resolved []cedar.Entity

	for _, e := range entities {
		if e.Type == "" || e.Properties == nil {
			continue
		}
		uid := pip.NewUID(e.Type, e.ID)
		key := pip.EntityKey(uid)
		if _, ok := seen[key]; ok {
			continue
		}
		attrs, err := ToRecord(e.Properties)
		if err != nil {
			return nil, authzen.ErrValidation("properties of %s: %v", key, err)
		}
		seen[key] = struct{}{}
		resolved = append(resolved, cedar.Entity{UID: uid, Attributes: attrs})
	}

	var undetermined []cedar.EntityUID
	pending := make(map[string]struct{})
	for _, e := range entities {
		if e.Type == "" || e.Properties != nil {
			continue
		}
		uid := pip.NewUID(e.Type, e.ID)
		key := pip.EntityKey(uid)
		if _, ok := seen[key]; ok {
			continue
		}
		if _, ok := pending[key]; ok {
			continue
		}
		pending[key] = struct{}{}
		undetermined = append(undetermined, uid)
	}

	if len(undetermined) == 0 || r.provider == nil {
		return resolved, nil
	}

	found, err := r.provider.FindEntities(ctx, undetermined)
	if err != nil {
		return nil, authzen.ErrEntityResolution(err)
	}
	for _, e := range found {
		key := pip.EntityKey(e.UID)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		resolved = append(resolved, e)
	}
	return resolved, nil
}

// ExtractEntities resolves the batch defaults and every item's subject and
// resource, in request order, as one DetermineEntities call. The batch
// therefore shares one duplicate-free entity set.
func (r *Resolver) ExtractEntities(ctx context.Context, req *authzen.EvaluationsRequest) ([]cedar.Entity, error) {
	var entities []authzen.Entity
	if req.Subject != nil {
		entities = append(entities, *req.Subject)
	}
	if req.Resource != nil {
		entities = append(entities, *req.Resource)
	}
	for _, item := range req.Evaluations {
		if item.Subject != nil {
			entities = append(entities, *item.Subject)
		}
		if item.Resource != nil {
			entities = append(entities, *item.Resource)
		}
	}
	return r.DetermineEntities(ctx, entities)
}

// ToRecord converts JSON-shaped values to a Cedar record using the Cedar JSON
// value encoding, including __entity and __extn escapes. A nil map gives an
// empty record.
func ToRecord(values map[string]any) (cedar.Record, error) {
	if len(values) == 0 {
		return cedar.NewRecord(nil), nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return cedar.Record{}, err
	}
	var rec cedar.Record
	if err := rec.UnmarshalJSON(data); err != nil {
		return cedar.Record{}, err
	}
	return rec, nil
}
