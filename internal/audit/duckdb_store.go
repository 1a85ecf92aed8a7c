// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

// Package audit provides the security audit trail with DuckDB persistence.
package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/ushadow-io/ushadow/internal/logging"
)

// DuckDBStore implements Store using DuckDB for durable audit logging.
type DuckDBStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewDuckDBStore creates a DuckDB-backed audit store. Call CreateTable
// before first use.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the audit_events table and indexes if they don't exist.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			outcome TEXT NOT NULL,

			actor_id TEXT NOT NULL,
			actor_type TEXT NOT NULL,
			actor_name TEXT,
			actor_roles JSON,
			actor_session_id TEXT,
			actor_auth_method TEXT,

			target_id TEXT,
			target_type TEXT,
			target_name TEXT,

			source_ip TEXT NOT NULL,
			source_user_agent TEXT,
			source_hostname TEXT,
			source_port INTEGER,

			action TEXT NOT NULL,
			description TEXT NOT NULL,
			metadata JSON,

			correlation_id TEXT,
			request_id TEXT,

			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_type ON audit_events(type);
		CREATE INDEX IF NOT EXISTS idx_audit_severity ON audit_events(severity);
		CREATE INDEX IF NOT EXISTS idx_audit_outcome ON audit_events(outcome);
		CREATE INDEX IF NOT EXISTS idx_audit_actor_id ON audit_events(actor_id);
		CREATE INDEX IF NOT EXISTS idx_audit_target_id ON audit_events(target_id);
		CREATE INDEX IF NOT EXISTS idx_audit_request_id ON audit_events(request_id);
	`

	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	logging.Debug().Msg("Audit events table created/verified")
	return nil
}

// Save persists an audit event.
func (s *DuckDBStore) Save(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	query := `
		INSERT INTO audit_events (
			id, timestamp, type, severity, outcome,
			actor_id, actor_type, actor_name, actor_roles, actor_session_id, actor_auth_method,
			target_id, target_type, target_name,
			source_ip, source_user_agent, source_hostname, source_port,
			action, description, metadata,
			correlation_id, request_id, created_at
		) VALUES (
			?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?,
			?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?,
			?, ?, ?
		)
	`

	targetID, targetType, targetName := targetFields(event.Target)

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.Timestamp,
		string(event.Type),
		string(event.Severity),
		string(event.Outcome),
		event.Actor.ID,
		event.Actor.Type,
		event.Actor.Name,
		marshalRoles(event.Actor.Roles),
		event.Actor.SessionID,
		event.Actor.AuthMethod,
		targetID,
		targetType,
		targetName,
		event.Source.IPAddress,
		event.Source.UserAgent,
		event.Source.Hostname,
		event.Source.Port,
		event.Action,
		event.Description,
		metadataString(event.Metadata),
		event.CorrelationID,
		event.RequestID,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save audit event: %w", err)
	}

	return nil
}

func marshalRoles(roles []string) string {
	if len(roles) == 0 {
		return "[]"
	}
	if data, err := json.Marshal(roles); err == nil {
		return string(data)
	}
	return "[]"
}

func targetFields(target *Target) (*string, *string, *string) {
	if target == nil {
		return nil, nil, nil
	}
	return &target.ID, &target.Type, &target.Name
}

func metadataString(metadata json.RawMessage) *string {
	if len(metadata) == 0 {
		return nil
	}
	s := string(metadata)
	return &s
}

// Get retrieves an event by ID.
func (s *DuckDBStore) Get(ctx context.Context, id string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, s.baseQuery(false)+" WHERE id = ?", id)

	var data scannedEvent
	if err := row.Scan(data.destinations()...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("event not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get audit event: %w", err)
	}

	return data.toEvent(), nil
}

// Query retrieves events matching the filter.
func (s *DuckDBStore) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args := s.buildQuery(filter, false)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var data scannedEvent
		if err := rows.Scan(data.destinations()...); err != nil {
			logging.Warn().Err(err).Msg("Failed to scan audit event row")
			continue
		}
		events = append(events, *data.toEvent())
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}

	return events, nil
}

// Count returns the number of events matching the filter.
func (s *DuckDBStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args := s.buildQuery(filter, true)

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}

	return count, nil
}

// Delete removes events older than the given time.
func (s *DuckDBStore) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM audit_events WHERE timestamp < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit events: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted count: %w", err)
	}

	if count > 0 {
		logging.Info().Int64("deleted", count).Time("older_than", olderThan).Msg("Deleted old audit events")
	}

	return count, nil
}

// GetStats returns aggregate statistics about the audit store.
func (s *DuckDBStore) GetStats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{
		EventsByType:     make(map[string]int64),
		EventsBySeverity: make(map[string]int64),
		EventsByOutcome:  make(map[string]int64),
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events").Scan(&stats.TotalEvents); err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}

	for column, dest := range map[string]map[string]int64{
		"type":     stats.EventsByType,
		"severity": stats.EventsBySeverity,
		"outcome":  stats.EventsByOutcome,
	} {
		counts, err := s.countByColumn(ctx, column)
		if err != nil {
			return nil, err
		}
		for k, v := range counts {
			dest[k] = v
		}
	}

	var oldest, newest sql.NullTime
	if err := s.db.QueryRowContext(ctx, "SELECT MIN(timestamp), MAX(timestamp) FROM audit_events").Scan(&oldest, &newest); err == nil {
		if oldest.Valid {
			stats.OldestEvent = &oldest.Time
		}
		if newest.Valid {
			stats.NewestEvent = &newest.Time
		}
	}

	return stats, nil
}

func (s *DuckDBStore) countByColumn(ctx context.Context, column string) (map[string]int64, error) {
	result := make(map[string]int64)
	query := fmt.Sprintf("SELECT %s, COUNT(*) FROM audit_events GROUP BY %s", column, column)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s counts: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err == nil {
			result[key] = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s counts: %w", column, err)
	}
	return result, nil
}

func (s *DuckDBStore) buildQuery(filter QueryFilter, countOnly bool) (string, []interface{}) {
	conditions, args := buildFilterConditions(filter)

	query := s.baseQuery(countOnly)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	if !countOnly {
		query = appendOrderAndLimit(query, filter)
	}

	return query, args
}

func (s *DuckDBStore) baseQuery(countOnly bool) string {
	if countOnly {
		return "SELECT COUNT(*) FROM audit_events"
	}
	// JSON columns cast to VARCHAR for scanning
	return `
		SELECT
			id, timestamp, type, severity, outcome,
			actor_id, actor_type, actor_name,
			CAST(actor_roles AS VARCHAR) as actor_roles,
			actor_session_id, actor_auth_method,
			target_id, target_type, target_name,
			source_ip, source_user_agent, source_hostname, source_port,
			action, description,
			CAST(metadata AS VARCHAR) as metadata,
			correlation_id, request_id
		FROM audit_events
	`
}

func buildFilterConditions(filter QueryFilter) ([]string, []interface{}) {
	var conditions []string
	var args []interface{}

	if cond := sliceCondition("type", filter.Types, &args); cond != "" {
		conditions = append(conditions, cond)
	}
	if cond := sliceCondition("severity", filter.Severities, &args); cond != "" {
		conditions = append(conditions, cond)
	}
	if cond := sliceCondition("outcome", filter.Outcomes, &args); cond != "" {
		conditions = append(conditions, cond)
	}

	conditions, args = stringCondition(conditions, args, "actor_id", filter.ActorID)
	conditions, args = stringCondition(conditions, args, "actor_type", filter.ActorType)
	conditions, args = stringCondition(conditions, args, "target_id", filter.TargetID)
	conditions, args = stringCondition(conditions, args, "target_type", filter.TargetType)
	conditions, args = stringCondition(conditions, args, "source_ip", filter.SourceIP)
	conditions, args = stringCondition(conditions, args, "correlation_id", filter.CorrelationID)
	conditions, args = stringCondition(conditions, args, "request_id", filter.RequestID)

	if filter.StartTime != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, *filter.StartTime)
	}
	if filter.EndTime != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, *filter.EndTime)
	}

	if filter.SearchText != "" {
		conditions = append(conditions, "(LOWER(description) LIKE ? OR LOWER(action) LIKE ?)")
		pattern := "%" + strings.ToLower(filter.SearchText) + "%"
		args = append(args, pattern, pattern)
	}

	return conditions, args
}

func sliceCondition[T ~string](column string, values []T, args *[]interface{}) string {
	if len(values) == 0 {
		return ""
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		*args = append(*args, string(v))
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ","))
}

func stringCondition(conditions []string, args []interface{}, column, value string) ([]string, []interface{}) {
	if value != "" {
		conditions = append(conditions, column+" = ?")
		args = append(args, value)
	}
	return conditions, args
}

func appendOrderAndLimit(query string, filter QueryFilter) string {
	orderBy := "timestamp"
	validFields := map[string]bool{
		"timestamp": true, "type": true, "severity": true,
		"outcome": true, "actor_id": true, "created_at": true,
	}
	if filter.OrderBy != "" && validFields[filter.OrderBy] {
		orderBy = filter.OrderBy
	}

	if filter.OrderDesc {
		query += fmt.Sprintf(" ORDER BY %s DESC", orderBy)
	} else {
		query += fmt.Sprintf(" ORDER BY %s ASC", orderBy)
	}

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	return query
}

// scannedEvent holds raw scanned values from the database.
type scannedEvent struct {
	event      Event
	eventType  string
	severity   string
	outcome    string
	actorName  sql.NullString
	actorRoles sql.NullString
	sessionID  sql.NullString
	authMethod sql.NullString
	targetID   sql.NullString
	targetType sql.NullString
	targetName sql.NullString
	userAgent  sql.NullString
	hostname   sql.NullString
	sourcePort sql.NullInt64
	metadata   sql.NullString
	corrID     sql.NullString
	requestID  sql.NullString
}

func (d *scannedEvent) destinations() []interface{} {
	return []interface{}{
		&d.event.ID,
		&d.event.Timestamp,
		&d.eventType,
		&d.severity,
		&d.outcome,
		&d.event.Actor.ID,
		&d.event.Actor.Type,
		&d.actorName,
		&d.actorRoles,
		&d.sessionID,
		&d.authMethod,
		&d.targetID,
		&d.targetType,
		&d.targetName,
		&d.event.Source.IPAddress,
		&d.userAgent,
		&d.hostname,
		&d.sourcePort,
		&d.event.Action,
		&d.event.Description,
		&d.metadata,
		&d.corrID,
		&d.requestID,
	}
}

func (d *scannedEvent) toEvent() *Event {
	d.event.Type = EventType(d.eventType)
	d.event.Severity = Severity(d.severity)
	d.event.Outcome = Outcome(d.outcome)
	d.event.Actor.Name = d.actorName.String
	d.event.Actor.SessionID = d.sessionID.String
	d.event.Actor.AuthMethod = d.authMethod.String
	d.event.Source.UserAgent = d.userAgent.String
	d.event.Source.Hostname = d.hostname.String
	d.event.CorrelationID = d.corrID.String
	d.event.RequestID = d.requestID.String

	if d.actorRoles.Valid && d.actorRoles.String != "" {
		if err := json.Unmarshal([]byte(d.actorRoles.String), &d.event.Actor.Roles); err != nil {
			logging.Debug().Err(err).Str("roles", d.actorRoles.String).Msg("Failed to parse actor roles JSON")
		}
	}
	if d.sourcePort.Valid {
		d.event.Source.Port = int(d.sourcePort.Int64)
	}
	if d.targetID.Valid {
		d.event.Target = &Target{
			ID:   d.targetID.String,
			Type: d.targetType.String,
			Name: d.targetName.String,
		}
	}
	if d.metadata.Valid && d.metadata.String != "" {
		d.event.Metadata = json.RawMessage(d.metadata.String)
	}

	return &d.event
}
