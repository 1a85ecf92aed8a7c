// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/ushadow/config.yaml",
	"/etc/ushadow/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. Defaults load
// first, then the config file, then environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8300,
			Host:        "0.0.0.0",
			Timeout:     30 * time.Second,
			BaseURL:     "http://localhost:8300",
			Environment: "development",
		},
		Database: DatabaseConfig{
			Path:      "/data/ushadow/audit.duckdb",
			MaxMemory: "512MB",
			Threads:   0,
		},
		Store: StoreConfig{
			Path:     "/data/ushadow/state",
			InMemory: false,
		},
		Registry: RegistryConfig{
			DefaultTTL:      30 * time.Second,
			MonitorInterval: 10 * time.Second,
		},
		Providers: ProvidersConfig{
			ProbeTimeout: 10 * time.Second,
		},
		Relay: RelayConfig{
			MaxListeners:    16,
			MaxFrameBytes:   1 << 20, // 1MB
			SendBuffer:      64,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Share: ShareConfig{
			DefaultExpiry: 24 * time.Hour,
			MaxExpiry:     30 * 24 * time.Hour,
		},
		Auth: AuthConfig{
			Mode:           "jwt",
			JWTSecret:      "",
			SessionTimeout: 24 * time.Hour,
			AdminUsername:  "",
			AdminPassword:  "",
			Keycloak: KeycloakConfig{
				URL:          "",
				Realm:        "ushadow",
				ClientID:     "ushadow-backend",
				ClientSecret: "",
				RedirectURL:  "",
				Scopes:       []string{"openid", "profile", "email"},
				PKCEEnabled:  true,
				JWKSCacheTTL: time.Hour,
				RolesClaim:   "realm_access.roles",
				DefaultRoles: []string{"viewer"},
			},
			Casbin: CasbinConfig{
				DefaultRole: "viewer",
			},
		},
		Tailscale: TailscaleConfig{
			Enabled: false,
			Binary:  "tailscale",
			Timeout: 15 * time.Second,
		},
		Docker: DockerConfig{
			Host:       "",
			APIVersion: "",
		},
		UNode: UNodeConfig{
			HeartbeatInterval: 15 * time.Second,
			MonitorInterval:   10 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:       true,
			BufferSize:    1024,
			RetentionDays: 90,
			FlushInterval: 5 * time.Second,
		},
		API: APIConfig{
			DefaultPageSize:   20,
			MaxPageSize:       100,
			CORSOrigins:       []string{"*"},
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
		},
		Settings: SettingsConfig{
			Path: "/data/ushadow/settings.yaml",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if present)
//  3. Environment variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	cfg.SourceFile = configPath

	return cfg, nil
}

// findConfigFile searches the env override and default paths and returns
// the first existing file, or empty string.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices
// when supplied via environment variables.
var sliceConfigPaths = []string{
	"api.cors_origins",
	"auth.keycloak.scopes",
	"auth.keycloak.default_roles",
}

// processSliceFields converts comma-separated env strings to slices for
// the known slice fields. YAML-sourced slices pass through untouched.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to config
// paths. Unmapped variables are dropped so random environment noise
// never pollutes the config.
var envMappings = map[string]string{
	// Server
	"http_port":    "server.port",
	"http_host":    "server.host",
	"http_timeout": "server.timeout",
	"base_url":     "server.base_url",
	"environment":  "server.environment",

	// Database (audit store)
	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	// Key-value store
	"store_path":      "store.path",
	"store_in_memory": "store.in_memory",

	// Registry
	"registry_default_ttl":      "registry.default_ttl",
	"registry_monitor_interval": "registry.monitor_interval",

	// Relay
	"relay_max_listeners":    "relay.max_listeners",
	"relay_max_frame_bytes":  "relay.max_frame_bytes",
	"relay_send_buffer":      "relay.send_buffer",
	"relay_breaker_failures": "relay.breaker_failures",
	"relay_breaker_timeout":  "relay.breaker_timeout",

	// Share tokens
	"share_default_expiry": "share.default_expiry",
	"share_max_expiry":     "share.max_expiry",

	// Auth
	"auth_mode":       "auth.mode",
	"jwt_secret":      "auth.jwt_secret",
	"session_timeout": "auth.session_timeout",
	"admin_username":  "auth.admin_username",
	"admin_password":  "auth.admin_password",

	// Keycloak
	"keycloak_url":            "auth.keycloak.url",
	"keycloak_realm":          "auth.keycloak.realm",
	"keycloak_issuer_url":     "auth.keycloak.issuer_url",
	"keycloak_client_id":      "auth.keycloak.client_id",
	"keycloak_client_secret":  "auth.keycloak.client_secret",
	"keycloak_redirect_url":   "auth.keycloak.redirect_url",
	"keycloak_scopes":         "auth.keycloak.scopes",
	"keycloak_pkce_enabled":   "auth.keycloak.pkce_enabled",
	"keycloak_jwks_cache_ttl": "auth.keycloak.jwks_cache_ttl",
	"keycloak_roles_claim":    "auth.keycloak.roles_claim",
	"keycloak_default_roles":  "auth.keycloak.default_roles",

	// Casbin
	"casbin_default_role": "auth.casbin.default_role",

	// Tailscale
	"tailscale_enabled":  "tailscale.enabled",
	"tailscale_binary":   "tailscale.binary",
	"tailscale_timeout":  "tailscale.timeout",
	"tailscale_hostname": "tailscale.hostname",

	// Docker
	"docker_host":        "docker.host",
	"docker_api_version": "docker.api_version",

	// u-nodes
	"unode_heartbeat_interval": "unode.heartbeat_interval",
	"unode_monitor_interval":   "unode.monitor_interval",

	// Audit
	"audit_enabled":        "audit.enabled",
	"audit_buffer_size":    "audit.buffer_size",
	"audit_retention_days": "audit.retention_days",
	"audit_flush_interval": "audit.flush_interval",

	// API
	"api_default_page_size": "api.default_page_size",
	"api_max_page_size":     "api.max_page_size",
	"cors_origins":          "api.cors_origins",
	"rate_limit_requests":   "api.rate_limit_reqs",
	"rate_limit_window":     "api.rate_limit_window",
	"disable_rate_limit":    "api.rate_limit_disabled",

	// Settings overlay
	"settings_path": "settings.path",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps environment variable names to koanf paths.
// Variables may carry a USHADOW_ prefix to avoid clashes with other
// software on the host.
//
//	HTTP_PORT          -> server.port
//	USHADOW_JWT_SECRET -> auth.jwt_secret
//	KEYCLOAK_REALM     -> auth.keycloak.realm
func envTransformFunc(key string) string {
	key = strings.ToLower(key)
	key = strings.TrimPrefix(key, "ushadow_")

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}

// WatchConfigFile watches the config file for changes and invokes the
// callback on each change. The caller guards concurrent config access.
func WatchConfigFile(path string, callback func()) error {
	provider := file.Provider(path)

	return provider.Watch(func(event interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
