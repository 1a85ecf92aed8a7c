// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package audit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/ushadow-io/ushadow/internal/config"
	"github.com/ushadow-io/ushadow/internal/logging"
	"github.com/ushadow-io/ushadow/internal/metrics"
)

// Config holds configuration for the audit logger.
type Config struct {
	// Enabled controls whether audit logging is active.
	Enabled bool `json:"enabled"`

	// LogLevel filters events by minimum severity.
	LogLevel Severity `json:"log_level"`

	// RetentionDays is how long to keep audit events.
	RetentionDays int `json:"retention_days"`

	// CleanupInterval is how often to run retention cleanup.
	CleanupInterval time.Duration `json:"cleanup_interval"`

	// BufferSize is the size of the async write buffer.
	BufferSize int `json:"buffer_size"`

	// IncludeDebug includes debug-level events.
	IncludeDebug bool `json:"include_debug"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		LogLevel:        SeverityInfo,
		RetentionDays:   90,
		CleanupInterval: 24 * time.Hour,
		BufferSize:      1024,
		IncludeDebug:    false,
	}
}

// ConfigFromApp derives a logger Config from the application audit settings.
func ConfigFromApp(cfg config.AuditConfig) *Config {
	c := DefaultConfig()
	c.Enabled = cfg.Enabled
	if cfg.BufferSize > 0 {
		c.BufferSize = cfg.BufferSize
	}
	if cfg.RetentionDays > 0 {
		c.RetentionDays = cfg.RetentionDays
	}
	return c
}

// Logger is the audit logging service. Events are written asynchronously;
// when the buffer is full events are dropped and counted rather than
// blocking request handling.
type Logger struct {
	config    *Config
	store     Store
	eventChan chan *Event
	mu        sync.RWMutex
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewLogger creates an audit logger and starts its async writer.
func NewLogger(store Store, cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	l := &Logger{
		config:    cfg,
		store:     store,
		eventChan: make(chan *Event, cfg.BufferSize),
		stopChan:  make(chan struct{}),
	}

	l.wg.Add(1)
	go l.asyncWriter()

	return l
}

func (l *Logger) asyncWriter() {
	defer l.wg.Done()

	for {
		select {
		case <-l.stopChan:
			// Drain remaining events
			for {
				select {
				case event := <-l.eventChan:
					l.writeEvent(event)
				default:
					return
				}
			}
		case event := <-l.eventChan:
			l.writeEvent(event)
		}
	}
}

func (l *Logger) writeEvent(event *Event) {
	if l.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := l.store.Save(ctx, event); err != nil {
		logging.Error().Err(err).Str("event_type", string(event.Type)).Msg("Failed to save audit event")
		return
	}
	metrics.RecordAuditEvent(string(event.Type), time.Since(start))
}

// Log records an audit event. Non-blocking.
func (l *Logger) Log(event *Event) {
	l.mu.RLock()
	cfg := l.config
	l.mu.RUnlock()

	if !cfg.Enabled {
		return
	}
	if !shouldLog(event.Severity, cfg) {
		return
	}

	if event.ID == "" {
		event.ID = generateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case l.eventChan <- event:
	default:
		metrics.AuditEventsDropped.Inc()
		logging.Warn().Str("event_id", event.ID).Msg("Audit event buffer full, dropping event")
	}
}

func shouldLog(severity Severity, cfg *Config) bool {
	if severity == SeverityDebug && !cfg.IncludeDebug {
		return false
	}

	severityOrder := map[Severity]int{
		SeverityDebug:    0,
		SeverityInfo:     1,
		SeverityWarning:  2,
		SeverityError:    3,
		SeverityCritical: 4,
	}

	return severityOrder[severity] >= severityOrder[cfg.LogLevel]
}

// Close shuts down the logger, draining buffered events. Safe to call
// more than once.
func (l *Logger) Close() error {
	l.stopOnce.Do(func() {
		close(l.stopChan)
	})
	l.wg.Wait()
	return nil
}

// StartCleanupRoutine starts the retention cleanup loop. It stops when
// the context is canceled.
func (l *Logger) StartCleanupRoutine(ctx context.Context) {
	l.mu.RLock()
	interval := l.config.CleanupInterval
	retention := l.config.RetentionDays
	l.mu.RUnlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().AddDate(0, 0, -retention)
				count, err := l.store.Delete(ctx, cutoff)
				if err != nil {
					logging.Error().Err(err).Msg("Audit cleanup error")
				} else if count > 0 {
					logging.Info().Int64("count", count).Msg("Cleaned up old audit events")
				}
			}
		}
	}()
}

// Query retrieves events matching the filter.
func (l *Logger) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	return l.store.Query(ctx, filter)
}

// Count returns the number of events matching the filter.
func (l *Logger) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	return l.store.Count(ctx, filter)
}

// SetEnabled enables or disables audit logging at runtime.
func (l *Logger) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Enabled = enabled
}

// Enabled returns whether audit logging is enabled.
func (l *Logger) Enabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config.Enabled
}

func generateEventID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return time.Now().Format("20060102150405.000000000")
	}
	return hex.EncodeToString(b)
}

// Helper methods for common audit events

// LogAuthSuccess logs a successful authentication.
//
//nolint:gocritic // hugeParam: Actor passed by value for API simplicity
func (l *Logger) LogAuthSuccess(ctx context.Context, actor Actor, source Source, authMethod string) {
	l.Log(&Event{
		Type:        EventTypeAuthSuccess,
		Severity:    SeverityInfo,
		Outcome:     OutcomeSuccess,
		Actor:       actor,
		Source:      source,
		Action:      "authenticate",
		Description: "User authenticated successfully",
		Metadata:    mustJSON(map[string]string{"method": authMethod}),
		RequestID:   logging.RequestIDFromContext(ctx),
	})
}

// LogAuthFailure logs a failed authentication attempt.
func (l *Logger) LogAuthFailure(ctx context.Context, actorID, actorName string, source Source, reason string) {
	l.Log(&Event{
		Type:     EventTypeAuthFailure,
		Severity: SeverityWarning,
		Outcome:  OutcomeFailure,
		Actor: Actor{
			ID:   actorID,
			Type: "user",
			Name: actorName,
		},
		Source:      source,
		Action:      "authenticate",
		Description: "Authentication failed: " + reason,
		Metadata:    mustJSON(map[string]string{"reason": reason}),
		RequestID:   logging.RequestIDFromContext(ctx),
	})
}

// LogLogout logs a logout event.
//
//nolint:gocritic // hugeParam: Actor passed by value for API simplicity
func (l *Logger) LogLogout(ctx context.Context, actor Actor, source Source, sessionID string) {
	l.Log(&Event{
		Type:     EventTypeLogout,
		Severity: SeverityInfo,
		Outcome:  OutcomeSuccess,
		Actor:    actor,
		Source:   source,
		Action:   "logout",
		Target: &Target{
			ID:   sessionID,
			Type: "session",
		},
		Description: "User logged out",
		RequestID:   logging.RequestIDFromContext(ctx),
	})
}

// LogAuthzDenied logs an authorization denial.
//
//nolint:gocritic // hugeParam: Actor passed by value for API simplicity
func (l *Logger) LogAuthzDenied(ctx context.Context, actor Actor, source Source, resource, action string) {
	l.Log(&Event{
		Type:     EventTypeAuthzDenied,
		Severity: SeverityWarning,
		Outcome:  OutcomeFailure,
		Actor:    actor,
		Source:   source,
		Action:   "authorize",
		Target: &Target{
			ID:   resource,
			Type: "resource",
		},
		Description: "Authorization denied for " + action + " on " + resource,
		Metadata: mustJSON(map[string]string{
			"resource":         resource,
			"requested_action": action,
		}),
		RequestID: logging.RequestIDFromContext(ctx),
	})
}

// LogShareCreated logs creation of a share token.
//
//nolint:gocritic // hugeParam: Actor passed by value for API simplicity
func (l *Logger) LogShareCreated(ctx context.Context, actor Actor, source Source, tokenID, resourceType, resourceID string) {
	l.Log(&Event{
		Type:     EventTypeShareCreated,
		Severity: SeverityInfo,
		Outcome:  OutcomeSuccess,
		Actor:    actor,
		Source:   source,
		Action:   "create",
		Target: &Target{
			ID:   tokenID,
			Type: "share_token",
		},
		Description: "Share token created for " + resourceType + "/" + resourceID,
		Metadata: mustJSON(map[string]string{
			"resource_type": resourceType,
			"resource_id":   resourceID,
		}),
		RequestID: logging.RequestIDFromContext(ctx),
	})
}

// LogShareRedemption logs a share token redemption attempt. Result is
// "granted" when access was allowed, otherwise a denial reason such as
// "expired", "revoked", "views_exhausted", "capability", or "not_found".
func (l *Logger) LogShareRedemption(ctx context.Context, tokenID string, source Source, result string) {
	event := &Event{
		Actor: Actor{
			ID:         tokenID,
			Type:       "share",
			AuthMethod: "share_token",
		},
		Source: source,
		Action: "redeem",
		Target: &Target{
			ID:   tokenID,
			Type: "share_token",
		},
		Metadata:  mustJSON(map[string]string{"result": result}),
		RequestID: logging.RequestIDFromContext(ctx),
	}

	if result == "granted" {
		event.Type = EventTypeShareGranted
		event.Severity = SeverityInfo
		event.Outcome = OutcomeSuccess
		event.Description = "Share token redeemed"
	} else {
		event.Type = EventTypeShareDenied
		event.Severity = SeverityWarning
		event.Outcome = OutcomeFailure
		event.Description = "Share token redemption denied: " + result
	}

	l.Log(event)
}

// LogShareRevoked logs revocation of a share token.
//
//nolint:gocritic // hugeParam: Actor passed by value for API simplicity
func (l *Logger) LogShareRevoked(ctx context.Context, actor Actor, source Source, tokenID string) {
	l.Log(&Event{
		Type:     EventTypeShareRevoked,
		Severity: SeverityWarning,
		Outcome:  OutcomeSuccess,
		Actor:    actor,
		Source:   source,
		Action:   "revoke",
		Target: &Target{
			ID:   tokenID,
			Type: "share_token",
		},
		Description: "Share token revoked",
		RequestID:   logging.RequestIDFromContext(ctx),
	})
}

// LogServiceEvent logs a service registry lifecycle event.
func (l *Logger) LogServiceEvent(ctx context.Context, eventType EventType, serviceID, serviceName, action, description string) {
	l.Log(&Event{
		Type:     eventType,
		Severity: SeverityInfo,
		Outcome:  OutcomeSuccess,
		Actor:    SystemActor(),
		Action:   action,
		Target: &Target{
			ID:   serviceID,
			Type: "service",
			Name: serviceName,
		},
		Description: description,
		RequestID:   logging.RequestIDFromContext(ctx),
	})
}

// LogNodeEvent logs a u-node lifecycle event.
func (l *Logger) LogNodeEvent(ctx context.Context, eventType EventType, nodeID, nodeName, description string) {
	severity := SeverityInfo
	if eventType == EventTypeNodeOffline {
		severity = SeverityWarning
	}
	l.Log(&Event{
		Type:     eventType,
		Severity: severity,
		Outcome:  OutcomeSuccess,
		Actor:    SystemActor(),
		Action:   "node_lifecycle",
		Target: &Target{
			ID:   nodeID,
			Type: "node",
			Name: nodeName,
		},
		Description: description,
		RequestID:   logging.RequestIDFromContext(ctx),
	})
}

// LogProviderChange logs a provider configuration change.
//
//nolint:gocritic // hugeParam: Actor passed by value for API simplicity
func (l *Logger) LogProviderChange(ctx context.Context, actor Actor, source Source, eventType EventType, providerID, category, description string) {
	l.Log(&Event{
		Type:     eventType,
		Severity: SeverityWarning,
		Outcome:  OutcomeSuccess,
		Actor:    actor,
		Source:   source,
		Action:   "update",
		Target: &Target{
			ID:   providerID,
			Type: "provider",
		},
		Description: description,
		Metadata:    mustJSON(map[string]string{"category": category}),
		RequestID:   logging.RequestIDFromContext(ctx),
	})
}

// LogConfigChange logs a configuration or settings change.
//
//nolint:gocritic // hugeParam: Actor passed by value for API simplicity
func (l *Logger) LogConfigChange(ctx context.Context, actor Actor, source Source, configKey, oldValue, newValue string) {
	l.Log(&Event{
		Type:     EventTypeConfigChanged,
		Severity: SeverityWarning,
		Outcome:  OutcomeSuccess,
		Actor:    actor,
		Source:   source,
		Action:   "update",
		Target: &Target{
			ID:   configKey,
			Type: "config",
		},
		Description: "Configuration changed: " + configKey,
		Metadata: mustJSON(map[string]string{
			"key":       configKey,
			"old_value": oldValue,
			"new_value": newValue,
		}),
		RequestID: logging.RequestIDFromContext(ctx),
	})
}

// LogAdminAction logs an administrative action.
//
//nolint:gocritic // hugeParam: Actor passed by value for API simplicity
func (l *Logger) LogAdminAction(ctx context.Context, actor Actor, source Source, action, description string, metadata map[string]interface{}) {
	l.Log(&Event{
		Type:        EventTypeAdminAction,
		Severity:    SeverityWarning,
		Outcome:     OutcomeSuccess,
		Actor:       actor,
		Source:      source,
		Action:      action,
		Description: description,
		Metadata:    mustJSON(metadata),
		RequestID:   logging.RequestIDFromContext(ctx),
	})
}

// mustJSON converts a value to JSON, returning an empty object on error.
func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

// SourceFromRequest creates a Source from an HTTP request.
func SourceFromRequest(r *http.Request) Source {
	ip := r.RemoteAddr
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip = xff
	} else if xri := r.Header.Get("X-Real-IP"); xri != "" {
		ip = xri
	}

	return Source{
		IPAddress: ip,
		UserAgent: r.UserAgent(),
		Hostname:  r.Host,
	}
}

// ActorFromUser creates an Actor from user information.
func ActorFromUser(id, name string, roles []string, authMethod, sessionID string) Actor {
	return Actor{
		ID:         id,
		Type:       "user",
		Name:       name,
		Roles:      roles,
		AuthMethod: authMethod,
		SessionID:  sessionID,
	}
}

// SystemActor returns an Actor representing the system itself.
func SystemActor() Actor {
	return Actor{
		ID:   "system",
		Type: "system",
		Name: "ushadow",
	}
}
