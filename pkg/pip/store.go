package pip

import (
	"context"
	"fmt"
	"sync"

	"github.com/cedar-policy/cedar-go"
	"golang.org/x/sync/errgroup"
)

// MaxBatchKeys is the largest number of keys sent in one multi-get.
const MaxBatchKeys = 100

// DefaultConcurrency bounds in-flight multi-gets per resolution round.
const DefaultConcurrency = 8

// KeyedStore is a keyed entity backend (partition key = type, sort key = id).
type KeyedStore interface {
	// BatchGetEntities fetches at most MaxBatchKeys uids. Missing uids are
	// omitted from the result.
	BatchGetEntities(ctx context.Context, uids []cedar.EntityUID) ([]cedar.Entity, error)
	// ScanEntityIDs lists every id stored under entityType.
	ScanEntityIDs(ctx context.Context, entityType string) ([]string, error)
}

// EntityWriter is implemented by stores that can be loaded with entities.
type EntityWriter interface {
	PutEntities(ctx context.Context, entities []cedar.Entity) error
}

// StorePIP resolves entities from a KeyedStore.
type StorePIP struct {
	store       KeyedStore
	parentHops  int
	batchSize   int
	concurrency int
	schema      *Schema
}

// StoreOption configures a StorePIP.
type StoreOption func(*StorePIP)

// WithParentHops limits parent resolution to n rounds; 0 resolves the full
// ancestry.
func WithParentHops(n int) StoreOption {
	return func(p *StorePIP) {
		if n >= 0 {
			p.parentHops = n
		}
	}
}

// WithBatchSize sets the keys per multi-get, capped at MaxBatchKeys.
func WithBatchSize(n int) StoreOption {
	return func(p *StorePIP) {
		if n > 0 && n <= MaxBatchKeys {
			p.batchSize = n
		}
	}
}

// WithConcurrency bounds the number of concurrent multi-gets.
func WithConcurrency(n int) StoreOption {
	return func(p *StorePIP) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithSchema enables FindApplicableActions.
func WithSchema(s *Schema) StoreOption {
	return func(p *StorePIP) {
		p.schema = s
	}
}

// NewStorePIP wraps store.
func NewStorePIP(store KeyedStore, opts ...StoreOption) *StorePIP {
	p := &StorePIP{
		store:       store,
		batchSize:   MaxBatchKeys,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FindEntities returns the requested entities and their parents.
func (p *StorePIP) FindEntities(ctx context.Context, uids []cedar.EntityUID) ([]cedar.Entity, error) {
	return resolveClosure(ctx, uids, p.parentHops, p.batchGet)
}

// batchGet groups uids by type and issues chunked multi-gets concurrently.
func (p *StorePIP) batchGet(ctx context.Context, uids []cedar.EntityUID) (map[string]cedar.Entity, error) {
	var order []cedar.EntityType
	byType := make(map[cedar.EntityType][]cedar.EntityUID)
	for _, uid := range uids {
		if _, ok := byType[uid.Type]; !ok {
			order = append(order, uid.Type)
		}
		byType[uid.Type] = append(byType[uid.Type], uid)
	}

	var (
		mu    sync.Mutex
		found = make(map[string]cedar.Entity, len(uids))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, t := range order {
		group := byType[t]
		for start := 0; start < len(group); start += p.batchSize {
			chunk := group[start:min(start+p.batchSize, len(group))]
			g.Go(func() error {
				entities, err := p.store.BatchGetEntities(gctx, chunk)
				if err != nil {
					return fmt.Errorf("batch get %s: %w", t, err)
				}
				mu.Lock()
				defer mu.Unlock()
				for _, e := range entities {
					found[EntityKey(e.UID)] = e
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return found, nil
}

// ScanEntities lists the ids of entityType in the store's enumeration order.
func (p *StorePIP) ScanEntities(ctx context.Context, entityType string) ([]string, error) {
	ids, err := p.store.ScanEntityIDs(ctx, entityType)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", entityType, err)
	}
	return ids, nil
}

// FindApplicableActions consults the schema; it returns nil without a schema.
func (p *StorePIP) FindApplicableActions(_ context.Context, subjectType, resourceType string) ([]string, error) {
	return p.schema.ApplicableActions(subjectType, resourceType), nil
}
