// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package audit

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// EventType categorizes audit events.
type EventType string

// Event type constants.
const (
	// Authentication events
	EventTypeAuthSuccess EventType = "auth.success"
	EventTypeAuthFailure EventType = "auth.failure"
	EventTypeLogout      EventType = "auth.logout"

	// Authorization events
	EventTypeAuthzDenied EventType = "authz.denied"

	// Share token events
	EventTypeShareCreated EventType = "share.created"
	EventTypeShareGranted EventType = "share.granted"
	EventTypeShareDenied  EventType = "share.denied"
	EventTypeShareRevoked EventType = "share.revoked"

	// Service registry events
	EventTypeServiceRegistered   EventType = "service.registered"
	EventTypeServiceDeregistered EventType = "service.deregistered"
	EventTypeServiceHealth       EventType = "service.health"

	// Provider events
	EventTypeProviderChanged EventType = "provider.changed"
	EventTypeProviderDefault EventType = "provider.default_changed"

	// Node and instance events
	EventTypeNodeRegistered   EventType = "node.registered"
	EventTypeNodeOffline      EventType = "node.offline"
	EventTypeInstanceDeployed EventType = "instance.deployed"
	EventTypeInstanceStopped  EventType = "instance.stopped"

	// Configuration events
	EventTypeConfigChanged EventType = "config.changed"

	// Administrative events
	EventTypeAdminAction EventType = "admin.action"
)

// Severity indicates the importance of an audit event.
type Severity string

// Severity levels.
const (
	SeverityDebug    Severity = "debug"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Outcome indicates whether the audited action succeeded.
type Outcome string

// Outcome values.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeUnknown Outcome = "unknown"
)

// Event represents a single audit log entry.
type Event struct {
	// ID is a unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// Severity indicates importance.
	Severity Severity `json:"severity"`

	// Outcome indicates success or failure.
	Outcome Outcome `json:"outcome"`

	// Actor is who performed the action.
	Actor Actor `json:"actor"`

	// Target is what was acted upon (optional).
	Target *Target `json:"target,omitempty"`

	// Source is where the action originated.
	Source Source `json:"source"`

	// Action is a short verb describing what was done.
	Action string `json:"action"`

	// Description is a human-readable summary.
	Description string `json:"description"`

	// Metadata holds additional structured data.
	Metadata json.RawMessage `json:"metadata,omitempty"`

	// CorrelationID links related events.
	CorrelationID string `json:"correlation_id,omitempty"`

	// RequestID links to the HTTP request.
	RequestID string `json:"request_id,omitempty"`
}

// Actor identifies who performed an action.
type Actor struct {
	// ID is the actor's unique identifier.
	ID string `json:"id"`

	// Type is "user", "service", "share", or "system".
	Type string `json:"type"`

	// Name is the actor's display name.
	Name string `json:"name,omitempty"`

	// Roles are the actor's roles at the time of the event.
	Roles []string `json:"roles,omitempty"`

	// SessionID is the actor's session, if any.
	SessionID string `json:"session_id,omitempty"`

	// AuthMethod is how the actor authenticated (keycloak, jwt, share_token).
	AuthMethod string `json:"auth_method,omitempty"`
}

// Target identifies what was acted upon.
type Target struct {
	// ID is the target's unique identifier.
	ID string `json:"id"`

	// Type is the target kind (service, provider, share_token, node,
	// instance, config, session).
	Type string `json:"type"`

	// Name is the target's display name.
	Name string `json:"name,omitempty"`
}

// Source identifies where an action originated.
type Source struct {
	// IPAddress is the client IP.
	IPAddress string `json:"ip_address"`

	// UserAgent is the client user agent.
	UserAgent string `json:"user_agent,omitempty"`

	// Hostname is the host the request arrived on.
	Hostname string `json:"hostname,omitempty"`

	// Port is the source port, if known.
	Port int `json:"port,omitempty"`
}

// Store persists audit events.
type Store interface {
	// Save persists an audit event.
	Save(ctx context.Context, event *Event) error

	// Get retrieves an event by ID.
	Get(ctx context.Context, id string) (*Event, error)

	// Query retrieves events matching the filter.
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)

	// Count returns the number of events matching the filter.
	Count(ctx context.Context, filter QueryFilter) (int64, error)

	// Delete removes events older than the given time.
	Delete(ctx context.Context, olderThan time.Time) (int64, error)
}

// QueryFilter specifies criteria for querying audit events.
type QueryFilter struct {
	// Types filters by event types (OR).
	Types []EventType `json:"types,omitempty"`

	// Severities filters by severity levels (OR).
	Severities []Severity `json:"severities,omitempty"`

	// Outcomes filters by outcomes (OR).
	Outcomes []Outcome `json:"outcomes,omitempty"`

	// ActorID filters by actor.
	ActorID string `json:"actor_id,omitempty"`

	// ActorType filters by actor type.
	ActorType string `json:"actor_type,omitempty"`

	// TargetID filters by target.
	TargetID string `json:"target_id,omitempty"`

	// TargetType filters by target type.
	TargetType string `json:"target_type,omitempty"`

	// SourceIP filters by source IP.
	SourceIP string `json:"source_ip,omitempty"`

	// CorrelationID filters by correlation.
	CorrelationID string `json:"correlation_id,omitempty"`

	// RequestID filters by request.
	RequestID string `json:"request_id,omitempty"`

	// StartTime filters events after this time.
	StartTime *time.Time `json:"start_time,omitempty"`

	// EndTime filters events before this time.
	EndTime *time.Time `json:"end_time,omitempty"`

	// SearchText searches descriptions and actions.
	SearchText string `json:"search_text,omitempty"`

	// Limit caps the number of results.
	Limit int `json:"limit,omitempty"`

	// Offset skips results for pagination.
	Offset int `json:"offset,omitempty"`

	// OrderBy is the sort field (default timestamp).
	OrderBy string `json:"order_by,omitempty"`

	// OrderDesc sorts descending when true.
	OrderDesc bool `json:"order_desc,omitempty"`
}

// DefaultQueryFilter returns a filter with sensible defaults.
func DefaultQueryFilter() QueryFilter {
	return QueryFilter{
		Limit:     100,
		OrderBy:   "timestamp",
		OrderDesc: true,
	}
}

// Stats holds audit store statistics.
type Stats struct {
	TotalEvents      int64            `json:"total_events"`
	EventsByType     map[string]int64 `json:"events_by_type"`
	EventsBySeverity map[string]int64 `json:"events_by_severity"`
	EventsByOutcome  map[string]int64 `json:"events_by_outcome"`
	OldestEvent      *time.Time       `json:"oldest_event,omitempty"`
	NewestEvent      *time.Time       `json:"newest_event,omitempty"`
}
