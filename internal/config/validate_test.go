// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package config

import (
	"strings"
	"testing"
	"time"
)

// validTestConfig returns a config that passes validation, for tests to
// break one field at a time.
func validTestConfig() *Config {
	cfg := defaultConfig()
	cfg.Auth.Mode = "none"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults with auth none",
			mutate: func(c *Config) {},
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.port",
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.Server.Timeout = 0 },
			wantErr: "server.timeout",
		},
		{
			name:    "bad base url",
			mutate:  func(c *Config) { c.Server.BaseURL = "not a url" },
			wantErr: "server.base_url",
		},
		{
			name:    "unknown environment",
			mutate:  func(c *Config) { c.Server.Environment = "staging" },
			wantErr: "server.environment",
		},
		{
			name:    "unknown auth mode",
			mutate:  func(c *Config) { c.Auth.Mode = "basic" },
			wantErr: "auth.mode",
		},
		{
			name: "jwt mode requires secret",
			mutate: func(c *Config) {
				c.Auth.Mode = "jwt"
				c.Auth.JWTSecret = ""
			},
			wantErr: "auth.jwt_secret",
		},
		{
			name: "jwt secret too short",
			mutate: func(c *Config) {
				c.Auth.Mode = "jwt"
				c.Auth.JWTSecret = "short"
			},
			wantErr: "at least 32",
		},
		{
			name: "jwt mode requires admin credentials",
			mutate: func(c *Config) {
				c.Auth.Mode = "jwt"
				c.Auth.JWTSecret = strings.Repeat("s", 32)
			},
			wantErr: "admin_username",
		},
		{
			name: "admin password too short",
			mutate: func(c *Config) {
				c.Auth.Mode = "jwt"
				c.Auth.JWTSecret = strings.Repeat("s", 32)
				c.Auth.AdminUsername = "admin"
				c.Auth.AdminPassword = "short"
			},
			wantErr: "at least 8",
		},
		{
			name: "keycloak mode requires issuer",
			mutate: func(c *Config) {
				c.Auth.Mode = "keycloak"
				c.Auth.Keycloak.URL = ""
				c.Auth.Keycloak.IssuerURL = ""
			},
			wantErr: "auth.keycloak",
		},
		{
			name: "keycloak mode requires client id",
			mutate: func(c *Config) {
				c.Auth.Mode = "keycloak"
				c.Auth.Keycloak.URL = "http://localhost:8080"
				c.Auth.Keycloak.ClientID = ""
			},
			wantErr: "client_id",
		},
		{
			name: "auth none forbidden in production",
			mutate: func(c *Config) {
				c.Server.Environment = "production"
			},
			wantErr: "not allowed",
		},
		{
			name:    "relay listeners below one",
			mutate:  func(c *Config) { c.Relay.MaxListeners = 0 },
			wantErr: "relay.max_listeners",
		},
		{
			name:    "relay frame cap too small",
			mutate:  func(c *Config) { c.Relay.MaxFrameBytes = 512 },
			wantErr: "relay.max_frame_bytes",
		},
		{
			name:    "registry ttl must be positive",
			mutate:  func(c *Config) { c.Registry.DefaultTTL = 0 },
			wantErr: "registry.default_ttl",
		},
		{
			name:    "max page below default",
			mutate:  func(c *Config) { c.API.MaxPageSize = 5 },
			wantErr: "api.max_page_size",
		},
		{
			name: "share max expiry below default",
			mutate: func(c *Config) {
				c.Share.DefaultExpiry = 48 * time.Hour
				c.Share.MaxExpiry = 24 * time.Hour
			},
			wantErr: "share.max_expiry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err.Error(), tt.wantErr)
			}
		})
	}
}
