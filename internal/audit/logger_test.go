// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package audit

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ushadow-io/ushadow/internal/config"
)

func newTestLogger(t *testing.T, cfg *Config) (*Logger, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore(1000)
	logger := NewLogger(store, cfg)
	t.Cleanup(func() { logger.Close() })
	return logger, store
}

// waitForCount polls the store until the async writer has persisted
// the expected number of events.
func waitForCount(t *testing.T, store *MemoryStore, want int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		count, err := store.Count(context.Background(), QueryFilter{})
		if err != nil {
			t.Fatalf("Count() error = %v", err)
		}
		if count == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("store did not reach %d events in time", want)
}

func TestLoggerWritesEvents(t *testing.T) {
	logger, store := newTestLogger(t, nil)

	logger.Log(&Event{
		Type:        EventTypeAuthSuccess,
		Severity:    SeverityInfo,
		Outcome:     OutcomeSuccess,
		Actor:       Actor{ID: "alice", Type: "user"},
		Source:      Source{IPAddress: "10.0.0.1"},
		Action:      "authenticate",
		Description: "test",
	})

	waitForCount(t, store, 1)

	events, err := store.Query(context.Background(), QueryFilter{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if events[0].ID == "" {
		t.Error("event ID should be generated")
	}
	if events[0].Timestamp.IsZero() {
		t.Error("event timestamp should be set")
	}
}

func TestLoggerDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	logger, store := newTestLogger(t, cfg)

	logger.Log(&Event{Type: EventTypeAuthSuccess, Severity: SeverityInfo})
	logger.Close()

	count, _ := store.Count(context.Background(), QueryFilter{})
	if count != 0 {
		t.Errorf("disabled logger wrote %d events, want 0", count)
	}
}

func TestLoggerSeverityFilter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = SeverityWarning
	logger, store := newTestLogger(t, cfg)

	logger.Log(&Event{Type: EventTypeAuthSuccess, Severity: SeverityInfo})
	logger.Log(&Event{Type: EventTypeAuthFailure, Severity: SeverityWarning})
	logger.Close()

	count, _ := store.Count(context.Background(), QueryFilter{})
	if count != 1 {
		t.Errorf("logger wrote %d events, want 1 (info filtered)", count)
	}
}

func TestLoggerDebugExcludedByDefault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = SeverityDebug
	logger, store := newTestLogger(t, cfg)

	logger.Log(&Event{Type: EventTypeAuthSuccess, Severity: SeverityDebug})
	logger.Close()

	count, _ := store.Count(context.Background(), QueryFilter{})
	if count != 0 {
		t.Errorf("debug event written without IncludeDebug, count = %d", count)
	}
}

func TestLoggerCloseDrains(t *testing.T) {
	logger, store := newTestLogger(t, nil)

	for i := 0; i < 50; i++ {
		logger.Log(&Event{
			Type:     EventTypeServiceHealth,
			Severity: SeverityInfo,
			Actor:    SystemActor(),
		})
	}
	logger.Close()

	count, _ := store.Count(context.Background(), QueryFilter{})
	if count != 50 {
		t.Errorf("Count() after close = %d, want 50", count)
	}
}

func TestLogShareRedemption(t *testing.T) {
	tests := []struct {
		result       string
		wantType     EventType
		wantOutcome  Outcome
		wantSeverity Severity
	}{
		{"granted", EventTypeShareGranted, OutcomeSuccess, SeverityInfo},
		{"expired", EventTypeShareDenied, OutcomeFailure, SeverityWarning},
		{"revoked", EventTypeShareDenied, OutcomeFailure, SeverityWarning},
		{"views_exhausted", EventTypeShareDenied, OutcomeFailure, SeverityWarning},
	}

	for _, tt := range tests {
		t.Run(tt.result, func(t *testing.T) {
			logger, store := newTestLogger(t, nil)

			logger.LogShareRedemption(context.Background(), "tok-1", Source{IPAddress: "10.0.0.1"}, tt.result)
			logger.Close()

			events, err := store.Query(context.Background(), QueryFilter{})
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(events) != 1 {
				t.Fatalf("got %d events, want 1", len(events))
			}
			e := events[0]
			if e.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", e.Type, tt.wantType)
			}
			if e.Outcome != tt.wantOutcome {
				t.Errorf("Outcome = %q, want %q", e.Outcome, tt.wantOutcome)
			}
			if e.Severity != tt.wantSeverity {
				t.Errorf("Severity = %q, want %q", e.Severity, tt.wantSeverity)
			}
			if e.Target == nil || e.Target.ID != "tok-1" {
				t.Error("Target should be the share token")
			}
		})
	}
}

func TestLogAuthHelpers(t *testing.T) {
	logger, store := newTestLogger(t, nil)
	ctx := context.Background()
	source := Source{IPAddress: "10.0.0.1"}

	logger.LogAuthSuccess(ctx, ActorFromUser("alice", "Alice", []string{"admin"}, "keycloak", "sess-1"), source, "keycloak")
	logger.LogAuthFailure(ctx, "bob", "Bob", source, "invalid credentials")
	logger.LogAuthzDenied(ctx, Actor{ID: "carol", Type: "user"}, source, "providers", "write")
	logger.Close()

	ctxQ := context.Background()
	for _, tt := range []struct {
		eventType EventType
		want      int64
	}{
		{EventTypeAuthSuccess, 1},
		{EventTypeAuthFailure, 1},
		{EventTypeAuthzDenied, 1},
	} {
		count, err := store.Count(ctxQ, QueryFilter{Types: []EventType{tt.eventType}})
		if err != nil {
			t.Fatalf("Count() error = %v", err)
		}
		if count != tt.want {
			t.Errorf("Count(%s) = %d, want %d", tt.eventType, count, tt.want)
		}
	}
}

func TestSourceFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		wantIP  string
	}{
		{"remote addr", nil, "192.168.1.5:1234", "192.168.1.5:1234"},
		{"x-forwarded-for", map[string]string{"X-Forwarded-For": "203.0.113.9"}, "10.0.0.1:80", "203.0.113.9"},
		{"x-real-ip", map[string]string{"X-Real-IP": "198.51.100.2"}, "10.0.0.1:80", "198.51.100.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "http://example.com/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			source := SourceFromRequest(r)
			if source.IPAddress != tt.wantIP {
				t.Errorf("IPAddress = %q, want %q", source.IPAddress, tt.wantIP)
			}
		})
	}
}

func TestConfigFromApp(t *testing.T) {
	cfg := ConfigFromApp(config.AuditConfig{
		Enabled:       true,
		BufferSize:    64,
		RetentionDays: 30,
	})
	if !cfg.Enabled {
		t.Error("Enabled should carry over")
	}
	if cfg.BufferSize != 64 {
		t.Errorf("BufferSize = %d, want 64", cfg.BufferSize)
	}
	if cfg.RetentionDays != 30 {
		t.Errorf("RetentionDays = %d, want 30", cfg.RetentionDays)
	}

	// Zero values fall back to defaults
	cfg = ConfigFromApp(config.AuditConfig{Enabled: true})
	if cfg.BufferSize != 1024 || cfg.RetentionDays != 90 {
		t.Errorf("defaults not applied: buffer=%d retention=%d", cfg.BufferSize, cfg.RetentionDays)
	}
}
