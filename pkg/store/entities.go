package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cedar-policy/cedar-go"

	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/pip"
)

var (
	_ pip.KeyedStore   = (*Store)(nil)
	_ pip.EntityWriter = (*Store)(nil)
)

// BatchGetEntities fetches the stored entities for uids. Missing uids are omitted.
func (s *Store) BatchGetEntities(ctx context.Context, uids []cedar.EntityUID) ([]cedar.Entity, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	args := make([]any, len(uids))
	for i, uid := range uids {
		args[i] = pip.EntityKey(uid)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(uids)), ",")

	rows, err := s.db.QueryContext(ctx,
		`SELECT entity FROM entities WHERE entity_key IN (`+placeholders+`) ORDER BY seq`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	var entities []cedar.Entity
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		var e cedar.Entity
		if err := json.Unmarshal([]byte(doc), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entity: %w", err)
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// ScanEntityIDs lists the ids stored under entityType in insertion order.
func (s *Store) ScanEntityIDs(ctx context.Context, entityType string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entity_id FROM entities WHERE entity_type = ? ORDER BY seq`,
		entityType,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan entities: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan entity id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PutEntities upserts entities in one transaction. An updated entity keeps
// its original enumeration position.
func (s *Store) PutEntities(ctx context.Context, entities []cedar.Entity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entities (entity_type, entity_id, entity_key, entity)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(entity_type, entity_id) DO UPDATE SET
		   entity = excluded.entity,
		   updated_at = strftime('%s', 'now')`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare entity insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entities {
		doc, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal entity %s: %w", pip.EntityKey(e.UID), err)
		}
		if _, err := stmt.ExecContext(ctx, string(e.UID.Type), string(e.UID.ID), pip.EntityKey(e.UID), string(doc)); err != nil {
			return fmt.Errorf("failed to insert entity %s: %w", pip.EntityKey(e.UID), err)
		}
	}
	return tx.Commit()
}

// DeleteEntity removes one entity. Deleting a missing entity is not an error.
func (s *Store) DeleteEntity(ctx context.Context, uid cedar.EntityUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE entity_key = ?`, pip.EntityKey(uid)); err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	return nil
}

// CountEntities returns the number of stored entities.
func (s *Store) CountEntities(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count entities: %w", err)
	}
	return n, nil
}
