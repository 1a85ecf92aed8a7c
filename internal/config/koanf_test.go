// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// pointConfigPathAway keeps a developer's local config.yaml from leaking
// into test runs.
func pointConfigPathAway(t *testing.T) {
	t.Helper()
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "no-such-config.yaml"))
	t.Setenv("AUTH_MODE", "none")
}

func TestLoadDefaults(t *testing.T) {
	pointConfigPathAway(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 8300 {
		t.Errorf("Server.Port = %d, want 8300", cfg.Server.Port)
	}
	if cfg.Registry.DefaultTTL != 30*time.Second {
		t.Errorf("Registry.DefaultTTL = %v, want 30s", cfg.Registry.DefaultTTL)
	}
	if cfg.Relay.BreakerFailures != 5 {
		t.Errorf("Relay.BreakerFailures = %d, want 5", cfg.Relay.BreakerFailures)
	}
	if cfg.Share.DefaultExpiry != 24*time.Hour {
		t.Errorf("Share.DefaultExpiry = %v, want 24h", cfg.Share.DefaultExpiry)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	pointConfigPathAway(t)
	t.Setenv("HTTP_PORT", "9100")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("RELAY_MAX_LISTENERS", "4")
	t.Setenv("REGISTRY_DEFAULT_TTL", "45s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Relay.MaxListeners != 4 {
		t.Errorf("Relay.MaxListeners = %d, want 4", cfg.Relay.MaxListeners)
	}
	if cfg.Registry.DefaultTTL != 45*time.Second {
		t.Errorf("Registry.DefaultTTL = %v, want 45s", cfg.Registry.DefaultTTL)
	}
}

func TestLoadUshadowPrefixedEnv(t *testing.T) {
	pointConfigPathAway(t)
	t.Setenv("USHADOW_HTTP_PORT", "9200")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 9200 {
		t.Errorf("Server.Port = %d, want 9200", cfg.Server.Port)
	}
}

func TestLoadSliceFromEnv(t *testing.T) {
	pointConfigPathAway(t)
	t.Setenv("CORS_ORIGINS", "http://a.local, http://b.local")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	want := []string{"http://a.local", "http://b.local"}
	if len(cfg.API.CORSOrigins) != len(want) {
		t.Fatalf("CORSOrigins = %v, want %v", cfg.API.CORSOrigins, want)
	}
	for i, origin := range want {
		if cfg.API.CORSOrigins[i] != origin {
			t.Errorf("CORSOrigins[%d] = %q, want %q", i, cfg.API.CORSOrigins[i], origin)
		}
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("server:\n  port: 9300\nauth:\n  mode: none\nlogging:\n  level: warn\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9300 {
		t.Errorf("Server.Port = %d, want 9300", cfg.Server.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
	if cfg.SourceFile != path {
		t.Errorf("SourceFile = %q, want %q", cfg.SourceFile, path)
	}
}

func TestWatchConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9300\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	changed := make(chan struct{}, 1)
	if err := WatchConfigFile(path, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("WatchConfigFile() error: %v", err)
	}

	// Give the watcher a moment to arm before rewriting the file.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("server:\n  port: 9301\n"), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("callback did not fire after the file changed")
	}
}

func TestEnvTransformFuncDropsUnknown(t *testing.T) {
	if got := envTransformFunc("PATH"); got != "" {
		t.Errorf("envTransformFunc(PATH) = %q, want empty", got)
	}
	if got := envTransformFunc("HTTP_PORT"); got != "server.port" {
		t.Errorf("envTransformFunc(HTTP_PORT) = %q, want server.port", got)
	}
	if got := envTransformFunc("USHADOW_JWT_SECRET"); got != "auth.jwt_secret" {
		t.Errorf("envTransformFunc(USHADOW_JWT_SECRET) = %q, want auth.jwt_secret", got)
	}
}

func TestKeycloakIssuer(t *testing.T) {
	tests := []struct {
		name string
		cfg  KeycloakConfig
		want string
	}{
		{
			name: "derived from url and realm",
			cfg:  KeycloakConfig{URL: "http://localhost:8080", Realm: "ushadow"},
			want: "http://localhost:8080/realms/ushadow",
		},
		{
			name: "explicit issuer wins",
			cfg:  KeycloakConfig{URL: "http://localhost:8080", Realm: "ushadow", IssuerURL: "https://id.example.com/realms/u"},
			want: "https://id.example.com/realms/u",
		},
		{
			name: "incomplete",
			cfg:  KeycloakConfig{Realm: "ushadow"},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Issuer(); got != tt.want {
				t.Errorf("Issuer() = %q, want %q", got, tt.want)
			}
		})
	}
}
