package pdp

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aws-samples/sample-authzen-interface-verified-permissions/pkg/store"
)

// DecisionAuditEntry represents a single authorization decision for audit logging.
type DecisionAuditEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
	Operation  string    `json:"operation"` // evaluation, evaluations, subject_search, ...
	Principal  string    `json:"principal"` // canonical entity key
	Action     string    `json:"action"`
	Resource   string    `json:"resource"` // canonical entity key
	Decision   string    `json:"decision"` // "allow" or "deny"
	Reasons    []string  `json:"reasons"`
	Errors     []string  `json:"errors,omitempty"`
	DurationUS int64     `json:"duration_us"` // Microseconds
}

// AuditLogger records authorization decisions for compliance and forensics.
type AuditLogger interface {
	// LogDecision records an authorization decision.
	LogDecision(ctx context.Context, entry DecisionAuditEntry) error
}

// AuditStore is the interface for storing audit entries.
// Matches the methods from pkg/store.Store that we need.
type AuditStore interface {
	InsertAuditEntry(ctx context.Context, entry *store.AuditEntry) (int64, error)
}

// StoreAuditLogger writes authorization decisions to the store's audit log.
type StoreAuditLogger struct {
	store AuditStore
}

// NewStoreAuditLogger creates an audit logger that writes to the store.
func NewStoreAuditLogger(s AuditStore) *StoreAuditLogger {
	return &StoreAuditLogger{store: s}
}

// LogDecision writes an authorization decision to the audit log.
func (l *StoreAuditLogger) LogDecision(ctx context.Context, entry DecisionAuditEntry) error {
	details := map[string]string{
		"operation":   entry.Operation,
		"duration_us": strconv.FormatInt(entry.DurationUS, 10),
	}
	if len(entry.Errors) > 0 {
		details["errors"] = strings.Join(entry.Errors, "; ")
	}

	_, err := l.store.InsertAuditEntry(ctx, &store.AuditEntry{
		Timestamp: entry.Timestamp,
		RequestID: entry.RequestID,
		Principal: entry.Principal,
		Action:    entry.Action,
		Target:    entry.Resource,
		Decision:  entry.Decision,
		Reasons:   entry.Reasons,
		Details:   details,
	})
	return err
}

// SlogAuditLogger writes authorization decisions to structured logging.
// Use this for JSON log output compatible with SIEM/log aggregation tools.
type SlogAuditLogger struct {
	logger *slog.Logger
}

// NewSlogAuditLogger creates an audit logger that writes to slog.
func NewSlogAuditLogger(logger *slog.Logger) *SlogAuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAuditLogger{logger: logger}
}

// LogDecision writes an authorization decision to structured logging.
func (l *SlogAuditLogger) LogDecision(ctx context.Context, entry DecisionAuditEntry) error {
	attrs := []slog.Attr{
		slog.String("event", "authorization_decision"),
		slog.String("request_id", entry.RequestID),
		slog.String("operation", entry.Operation),
		slog.String("principal", entry.Principal),
		slog.String("action", entry.Action),
		slog.String("resource", entry.Resource),
		slog.String("decision", entry.Decision),
		slog.Any("reasons", entry.Reasons),
		slog.Int64("duration_us", entry.DurationUS),
	}
	if len(entry.Errors) > 0 {
		attrs = append(attrs, slog.Any("errors", entry.Errors))
	}

	l.logger.LogAttrs(ctx, slog.LevelInfo, "authorization decision", attrs...)
	return nil
}

// MultiAuditLogger writes to multiple audit loggers.
type MultiAuditLogger struct {
	loggers []AuditLogger
}

// NewMultiAuditLogger creates an audit logger that writes to multiple destinations.
func NewMultiAuditLogger(loggers ...AuditLogger) *MultiAuditLogger {
	return &MultiAuditLogger{loggers: loggers}
}

// LogDecision writes to all configured loggers.
func (l *MultiAuditLogger) LogDecision(ctx context.Context, entry DecisionAuditEntry) error {
	var firstErr error
	for _, logger := range l.loggers {
		if err := logger.LogDecision(ctx, entry); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NopAuditLogger discards all audit entries. Use for testing.
type NopAuditLogger struct{}

// LogDecision does nothing.
func (NopAuditLogger) LogDecision(ctx context.Context, entry DecisionAuditEntry) error {
	return nil
}
