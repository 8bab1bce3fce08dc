package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AuditEntry represents a single decision audit record.
type AuditEntry struct {
	ID        int64
	Timestamp time.Time
	RequestID string
	Principal string // canonical entity key
	Action    string
	Target    string // canonical entity key of the resource
	Decision  string // "allow" or "deny"
	Reasons   []string
	Details   map[string]string
}

// AuditFilter specifies criteria for querying audit entries.
type AuditFilter struct {
	Action    string
	Target    string
	Principal string
	Since     time.Time
	Limit     int
}

// InsertAuditEntry adds a new audit log entry to the database.
func (s *Store) InsertAuditEntry(ctx context.Context, entry *AuditEntry) (int64, error) {
	var reasonsJSON sql.NullString
	if len(entry.Reasons) > 0 {
		data, err := json.Marshal(entry.Reasons)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal reasons: %w", err)
		}
		reasonsJSON.String = string(data)
		reasonsJSON.Valid = true
	}

	var detailsJSON sql.NullString
	if len(entry.Details) > 0 {
		data, err := json.Marshal(entry.Details)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal details: %w", err)
		}
		detailsJSON.String = string(data)
		detailsJSON.Valid = true
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (timestamp, request_id, principal, action, target, decision, reasons, details)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Timestamp.Unix(),
		entry.RequestID,
		entry.Principal,
		entry.Action,
		entry.Target,
		entry.Decision,
		reasonsJSON,
		detailsJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return id, nil
}

// QueryAuditEntries retrieves audit entries matching the given filter,
// newest first.
func (s *Store) QueryAuditEntries(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	var conditions []string
	var args []any

	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, filter.Action)
	}

	if filter.Target != "" {
		conditions = append(conditions, "target = ?")
		args = append(args, filter.Target)
	}

	if filter.Principal != "" {
		conditions = append(conditions, "principal = ?")
		args = append(args, filter.Principal)
	}

	if !filter.Since.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, filter.Since.Unix())
	}

	query := `SELECT id, timestamp, request_id, principal, action, target, decision, reasons, details
	          FROM audit_log`

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY timestamp DESC, id DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// GetAuditEntry retrieves a single audit entry by ID.
func (s *Store) GetAuditEntry(ctx context.Context, id int64) (*AuditEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, timestamp, request_id, principal, action, target, decision, reasons, details
		 FROM audit_log WHERE id = ?`,
		id,
	)

	entry, err := scanAuditEntry(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("audit entry not found: %d", id)
	}
	return entry, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuditEntry(row rowScanner) (*AuditEntry, error) {
	var entry AuditEntry
	var timestamp int64
	var requestID, principal, target, decision, reasonsJSON, detailsJSON sql.NullString

	err := row.Scan(&entry.ID, &timestamp, &requestID, &principal, &entry.Action, &target, &decision, &reasonsJSON, &detailsJSON)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit entry: %w", err)
	}

	entry.Timestamp = time.Unix(timestamp, 0)
	entry.RequestID = requestID.String
	entry.Principal = principal.String
	entry.Target = target.String
	entry.Decision = decision.String

	if reasonsJSON.Valid && reasonsJSON.String != "" {
		if err := json.Unmarshal([]byte(reasonsJSON.String), &entry.Reasons); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reasons: %w", err)
		}
	}

	if detailsJSON.Valid && detailsJSON.String != "" {
		entry.Details = make(map[string]string)
		if err := json.Unmarshal([]byte(detailsJSON.String), &entry.Details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal details: %w", err)
		}
	}

	return &entry, nil
}
