// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package validation

import (
	"strings"
	"testing"
)

type registerRequest struct {
	Name     string `validate:"required,min=2,max=64"`
	URL      string `validate:"required,url"`
	Kind     string `validate:"omitempty,oneof=backend frontend integration"`
	TTLSecs  int    `validate:"omitempty,gte=5,lte=3600"`
	Hostname string `validate:"omitempty,hostname"`
}

func TestValidateStructPasses(t *testing.T) {
	req := registerRequest{Name: "whisper", URL: "http://localhost:9090", Kind: "backend", TTLSecs: 30}
	if err := ValidateStruct(&req); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestValidateStructFailures(t *testing.T) {
	tests := []struct {
		name    string
		req     registerRequest
		wantMsg string
	}{
		{
			name:    "missing name",
			req:     registerRequest{URL: "http://localhost:9090"},
			wantMsg: "Name is required",
		},
		{
			name:    "bad url",
			req:     registerRequest{Name: "whisper", URL: "not a url"},
			wantMsg: "URL must be a valid URL",
		},
		{
			name:    "bad kind",
			req:     registerRequest{Name: "whisper", URL: "http://x", Kind: "daemon"},
			wantMsg: "Kind must be one of: backend frontend integration",
		},
		{
			name:    "ttl too large",
			req:     registerRequest{Name: "whisper", URL: "http://x", TTLSecs: 9000},
			wantMsg: "TTLSecs must be less than or equal to 3600",
		},
		{
			name:    "name too short",
			req:     registerRequest{Name: "w", URL: "http://x"},
			wantMsg: "Name must be at least 2 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.req)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want substring %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestRequestErrorDetails(t *testing.T) {
	err := ValidateStruct(&registerRequest{})
	if err == nil {
		t.Fatal("expected validation error")
	}

	details := err.Details()
	if len(err.Fields) == 1 {
		if details["field"] != "Name" {
			t.Errorf("details = %v", details)
		}
		return
	}
	if _, ok := details["fields"]; !ok {
		t.Errorf("multi-field details missing fields list: %v", details)
	}
}
