// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package logging

import "testing"

func TestRedactToken(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"short", "abc123", "***"},
		{"boundary", "123456789012", "***"},
		{"share token", "ush_a1b2c3d4_secretvalue", "ush_...alue"},
		{"api key", "sk-proj-abcdefghijklmnop", "sk-p...mnop"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RedactToken(tt.input); got != tt.want {
				t.Errorf("RedactToken(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRedactEmail(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"normal", "alice@example.com", "al***@example.com"},
		{"short local", "ab@example.com", "***@example.com"},
		{"no at sign", "not-an-email", "***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RedactEmail(tt.input); got != tt.want {
				t.Errorf("RedactEmail(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRedactValue(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"api key redacted", "api_key", "sk-proj-abcdefghijklmnop", "sk-p...mnop"},
		{"case insensitive key", "API_KEY", "sk-proj-abcdefghijklmnop", "sk-p...mnop"},
		{"email value", "contact", "alice@example.com", "al***@example.com"},
		{"plain value untouched", "endpoint", "http://localhost:8100", "http://localhost:8100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RedactValue(tt.key, tt.value); got != tt.want {
				t.Errorf("RedactValue(%q, %q) = %q, want %q", tt.key, tt.value, got, tt.want)
			}
		})
	}
}
