// Package redisstore implements pip.KeyedStore on Redis.
//
// Each entity is one string key, <prefix><canonical key>, holding the Cedar
// JSON entity. A per-type set, <prefix>type:<type>, indexes the ids so a
// type can be enumerated without a keyspace SCAN.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/cedar-policy/cedar-go"
	"github.com/redis/go-redis/v9"

	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/pip"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "authzen:entity:"

var (
	_ pip.KeyedStore   = (*Store)(nil)
	_ pip.EntityWriter = (*Store)(nil)
)

// Store is a Redis keyed entity store.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New wraps an existing client.
func New(rdb redis.UniversalClient, opts ...Option) *Store {
	s := &Store{rdb: rdb, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to the Redis server at url (redis:// or rediss://) and
// verifies the connection.
func Open(ctx context.Context, url string, opts ...Option) (*Store, error) {
	ropts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(ropts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return New(rdb, opts...), nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) entityKey(uid cedar.EntityUID) string {
	return s.prefix + pip.EntityKey(uid)
}

func (s *Store) typeKey(entityType string) string {
	return s.prefix + "type:" + entityType
}

// BatchGetEntities fetches uids with a single MGET. Missing uids are omitted.
func (s *Store) BatchGetEntities(ctx context.Context, uids []cedar.EntityUID) ([]cedar.Entity, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(uids))
	for i, uid := range uids {
		keys[i] = s.entityKey(uid)
	}

	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get entities: %w", err)
	}

	var entities []cedar.Entity
	for i, v := range values {
		doc, ok := v.(string)
		if !ok {
			continue
		}
		var e cedar.Entity
		if err := json.Unmarshal([]byte(doc), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entity %s: %w", keys[i], err)
		}
		entities = append(entities, e)
	}
	return entities, nil
}

// ScanEntityIDs lists the ids of entityType in lexicographic order.
func (s *Store) ScanEntityIDs(ctx context.Context, entityType string) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, s.typeKey(entityType)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to scan entities: %w", err)
	}
	slices.Sort(ids)
	return ids, nil
}

// PutEntities writes entities and their type index in one MULTI/EXEC.
func (s *Store) PutEntities(ctx context.Context, entities []cedar.Entity) error {
	docs := make([][]byte, len(entities))
	for i, e := range entities {
		doc, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal entity %s: %w", pip.EntityKey(e.UID), err)
		}
		docs[i] = doc
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, e := range entities {
			pipe.Set(ctx, s.entityKey(e.UID), docs[i], 0)
			pipe.SAdd(ctx, s.typeKey(string(e.UID.Type)), string(e.UID.ID))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to put entities: %w", err)
	}
	return nil
}

// DeleteEntity removes one entity and its index entry.
func (s *Store) DeleteEntity(ctx context.Context, uid cedar.EntityUID) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.entityKey(uid))
		pipe.SRem(ctx, s.typeKey(string(uid.Type)), string(uid.ID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	return nil
}
