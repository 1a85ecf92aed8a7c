// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := context.Background()

	if got := RequestIDFromContext(ctx); got != "" {
		t.Errorf("empty context returned request ID %q", got)
	}

	ctx = ContextWithRequestID(ctx, "req-123")
	if got := RequestIDFromContext(ctx); got != "req-123" {
		t.Errorf("RequestIDFromContext = %q, want %q", got, "req-123")
	}
}

func TestGenerateRequestIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateRequestID()
		if id == "" {
			t.Fatal("GenerateRequestID returned empty string")
		}
		if seen[id] {
			t.Fatalf("duplicate request ID %q", id)
		}
		seen[id] = true
	}
}

func TestCtxAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	ctx := ContextWithRequestID(context.Background(), "req-456")
	Ctx(ctx).Info().Msg("handling")

	if !strings.Contains(buf.String(), `"request_id":"req-456"`) {
		t.Errorf("expected request_id field, got %q", buf.String())
	}
}

func TestLoggerFromContextFallback(t *testing.T) {
	var buf bytes.Buffer
	stored := NewTestLogger(&buf)

	ctx := ContextWithLogger(context.Background(), stored)
	got := LoggerFromContext(ctx)
	got.Info().Msg("from context")

	if !strings.Contains(buf.String(), "from context") {
		t.Errorf("context logger not used: %q", buf.String())
	}
}
