// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestInitJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf, Timestamp: true})
	defer Init(DefaultConfig())

	Info().Str("service", "whisper").Msg("service registered")

	out := buf.String()
	if !strings.Contains(out, `"service":"whisper"`) {
		t.Errorf("expected structured field in output, got %q", out)
	}
	if !strings.Contains(out, `"message":"service registered"`) {
		t.Errorf("expected message in output, got %q", out)
	}
	if !strings.Contains(out, `"time":`) {
		t.Errorf("expected timestamp in output, got %q", out)
	}
}

func TestInitLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "warn", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	Debug().Msg("suppressed")
	Info().Msg("suppressed")
	Warn().Msg("emitted")

	out := buf.String()
	if strings.Contains(out, "suppressed") {
		t.Errorf("below-threshold messages were emitted: %q", out)
	}
	if !strings.Contains(out, "emitted") {
		t.Errorf("warn message missing from output: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"INFO", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"disabled", zerolog.Disabled},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	relayLog := WithComponent("relay")
	relayLog.Info().Msg("stream opened")

	if !strings.Contains(buf.String(), `"component":"relay"`) {
		t.Errorf("expected component field, got %q", buf.String())
	}
}

func TestSetLogger(t *testing.T) {
	var buf bytes.Buffer
	orig := Logger()
	defer SetLogger(orig)

	SetLogger(NewTestLogger(&buf))
	Info().Msg("replaced")

	if !strings.Contains(buf.String(), "replaced") {
		t.Errorf("replacement logger not in effect: %q", buf.String())
	}
}
