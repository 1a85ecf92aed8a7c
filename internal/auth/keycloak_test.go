// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package auth

import (
	"reflect"
	"testing"
)

func TestExtractClaimPath(t *testing.T) {
	claims := map[string]interface{}{
		"roles":  []interface{}{"admin", "viewer"},
		"groups": []string{"ops"},
		"single": "operator",
		"realm_access": map[string]interface{}{
			"roles": []interface{}{"admin", 42, "operator"},
		},
		"not_a_map": "x",
	}

	tests := []struct {
		name string
		path string
		want []string
	}{
		{"flat interface slice", "roles", []string{"admin", "viewer"}},
		{"flat string slice", "groups", []string{"ops"}},
		{"single string", "single", []string{"operator"}},
		{"nested keycloak path", "realm_access.roles", []string{"admin", "operator"}},
		{"missing claim", "nope", nil},
		{"missing nested", "realm_access.nope", nil},
		{"path through non-map", "not_a_map.roles", nil},
		{"empty path", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractClaimPath(claims, tt.path)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("extractClaimPath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}

	if extractClaimPath(nil, "roles") != nil {
		t.Error("nil claims should return nil")
	}
}

func TestMapVerificationError(t *testing.T) {
	if mapVerificationError(nil) != nil {
		t.Error("nil error should map to nil")
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "", "alice", "bob"); got != "alice" {
		t.Errorf("firstNonEmpty = %q, want alice", got)
	}
	if got := firstNonEmpty(); got != "" {
		t.Errorf("firstNonEmpty() = %q, want empty", got)
	}
}
