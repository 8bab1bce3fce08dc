package pip

import (
	"context"
	"strings"

	"github.com/cedar-policy/cedar-go"
)

// Provider resolves entities and their ancestry.
type Provider interface {
	// FindEntities returns the entities for uids plus their parents. Unknown
	// uids are omitted. No canonical key appears twice.
	FindEntities(ctx context.Context, uids []cedar.EntityUID) ([]cedar.Entity, error)
}

// Scanner enumerates the ids stored for an entity type.
type Scanner interface {
	ScanEntities(ctx context.Context, entityType string) ([]string, error)
}

// ActionFinder lists schema actions applicable to a principal and resource type.
type ActionFinder interface {
	FindApplicableActions(ctx context.Context, subjectType, resourceType string) ([]string, error)
}

var keyEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// EntityKey returns the canonical key of uid: type::"id" with backslashes and
// double quotes in id escaped.
func EntityKey(uid cedar.EntityUID) string {
	return string(uid.Type) + `::"` + keyEscaper.Replace(string(uid.ID)) + `"`
}

// NewUID builds an entity uid from its type and id.
func NewUID(entityType, id string) cedar.EntityUID {
	return cedar.NewEntityUID(cedar.EntityType(entityType), cedar.String(id))
}

// fetchFunc returns the entities found for uids keyed by EntityKey.
type fetchFunc func(ctx context.Context, uids []cedar.EntityUID) (map[string]cedar.Entity, error)

// resolveClosure fetches uids and then their parents, one frontier per round,
// until the frontier is empty or maxHops parent rounds ran (0 = unlimited).
// Results keep request order followed by discovery order.
func resolveClosure(ctx context.Context, uids []cedar.EntityUID, maxHops int, fetch fetchFunc) ([]cedar.Entity, error) {
	visited := make(map[string]struct{}, len(uids))
	frontier := make([]cedar.EntityUID, 0, len(uids))
	for _, uid := range uids {
		key := EntityKey(uid)
		if _, ok := visited[key]; ok {
			continue
		}
		visited[key] = struct{}{}
		frontier = append(frontier, uid)
	}

	var out []cedar.Entity
	for hop := 0; len(frontier) > 0; hop++ {
		if maxHops > 0 && hop > maxHops {
			break
		}
		found, err := fetch(ctx, frontier)
		if err != nil {
			return nil, err
		}

		var next []cedar.EntityUID
		for _, uid := range frontier {
			entity, ok := found[EntityKey(uid)]
			if !ok {
				continue
			}
			out = append(out, entity)
			for parent := range entity.Parents.All() {
				key := EntityKey(parent)
				if _, ok := visited[key]; ok {
					continue
				}
				visited[key] = struct{}{}
				next = append(next, parent)
			}
		}
		frontier = next
	}
	return out, nil
}
