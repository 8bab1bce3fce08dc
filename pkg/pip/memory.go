package pip

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cedar-policy/cedar-go"
)

// EntitiesFileName is the conventional name of a Cedar entities document.
const EntitiesFileName = "cedarentities.json"

// MemoryPIP serves entities from an in-memory index built once at construction.
type MemoryPIP struct {
	entities map[string]cedar.Entity
	ids      map[cedar.EntityType][]string // load order per type
	schema   *Schema
}

// NewMemoryPIP indexes entities. A later entity with the same uid replaces an
// earlier one but keeps its enumeration position. schema may be nil.
func NewMemoryPIP(entities []cedar.Entity, schema *Schema) *MemoryPIP {
	p := &MemoryPIP{
		entities: make(map[string]cedar.Entity, len(entities)),
		ids:      make(map[cedar.EntityType][]string),
		schema:   schema,
	}
	for _, e := range entities {
		key := EntityKey(e.UID)
		if _, exists := p.entities[key]; !exists {
			p.ids[e.UID.Type] = append(p.ids[e.UID.Type], string(e.UID.ID))
		}
		p.entities[key] = e
	}
	return p
}

// NewMemoryPIPFromBasePath loads cedarentities.json and the schema found in dir.
func NewMemoryPIPFromBasePath(dir string) (*MemoryPIP, error) {
	entities, err := LoadEntitiesFile(filepath.Join(dir, EntitiesFileName))
	if err != nil {
		return nil, err
	}
	schema, err := LoadSchemaDir(dir)
	if err != nil {
		return nil, err
	}
	return NewMemoryPIP(entities, schema), nil
}

// LoadEntitiesFile reads a Cedar JSON entities document (an array of entities).
func LoadEntitiesFile(path string) ([]cedar.Entity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read entities: %w", err)
	}
	return ParseEntities(data)
}

// ParseEntities decodes a Cedar JSON entities array, preserving order.
func ParseEntities(data []byte) ([]cedar.Entity, error) {
	var entities []cedar.Entity
	if err := json.Unmarshal(data, &entities); err != nil {
		return nil, fmt.Errorf("failed to parse entities: %w", err)
	}
	return entities, nil
}

// FindEntities returns the requested entities and their full ancestry.
func (p *MemoryPIP) FindEntities(ctx context.Context, uids []cedar.EntityUID) ([]cedar.Entity, error) {
	return resolveClosure(ctx, uids, 0, p.lookup)
}

func (p *MemoryPIP) lookup(_ context.Context, uids []cedar.EntityUID) (map[string]cedar.Entity, error) {
	found := make(map[string]cedar.Entity, len(uids))
	for _, uid := range uids {
		key := EntityKey(uid)
		if e, ok := p.entities[key]; ok {
			found[key] = e
		}
	}
	return found, nil
}

// ScanEntities returns the ids of entityType in load order.
func (p *MemoryPIP) ScanEntities(_ context.Context, entityType string) ([]string, error) {
	ids := p.ids[cedar.EntityType(entityType)]
	out := make([]string, len(ids))
	copy(out, ids)
	return out, nil
}

// FindApplicableActions consults the schema; it returns nil without a schema.
func (p *MemoryPIP) FindApplicableActions(_ context.Context, subjectType, resourceType string) ([]string, error) {
	return p.schema.ApplicableActions(subjectType, resourceType), nil
}

// Len returns the number of indexed entities.
func (p *MemoryPIP) Len() int {
	return len(p.entities)
}
