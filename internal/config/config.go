// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

// Package config provides configuration management for ushadow.
//
// Configuration is loaded in layers with clear precedence:
//  1. Built-in defaults
//  2. Optional YAML config file (config.yaml)
//  3. Environment variables (highest priority)
//
// Runtime-mutable settings live in a separate overlay file managed by
// Manager; the layered Config itself is immutable after Load and safe for
// concurrent reads.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Store     StoreConfig     `koanf:"store"`
	Registry  RegistryConfig  `koanf:"registry"`
	Providers ProvidersConfig `koanf:"providers"`
	Relay     RelayConfig     `koanf:"relay"`
	Share     ShareConfig     `koanf:"share"`
	Auth      AuthConfig      `koanf:"auth"`
	Tailscale TailscaleConfig `koanf:"tailscale"`
	Docker    DockerConfig    `koanf:"docker"`
	UNode     UNodeConfig     `koanf:"unode"`
	Audit     AuditConfig     `koanf:"audit"`
	API       APIConfig       `koanf:"api"`
	Settings  SettingsConfig  `koanf:"settings"`
	Logging   LoggingConfig   `koanf:"logging"`

	// SourceFile is the config file Load read, empty when running on
	// defaults and environment variables only.
	SourceFile string `koanf:"-"`
}

// ServerConfig holds HTTP server settings.
//
// Environment Variables:
//   - HTTP_PORT: listen port (default: 8300)
//   - HTTP_HOST: bind address (default: 0.0.0.0)
//   - HTTP_TIMEOUT: request timeout (default: 30s)
//   - BASE_URL: externally reachable URL, used in share links and OIDC
//     redirects (default: http://localhost:8300)
//   - ENVIRONMENT: development or production
type ServerConfig struct {
	Port        int           `koanf:"port"`
	Host        string        `koanf:"host"`
	Timeout     time.Duration `koanf:"timeout"`
	BaseURL     string        `koanf:"base_url"`
	Environment string        `koanf:"environment"`
}

// DatabaseConfig holds DuckDB settings for the audit trail store.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	// Threads is the DuckDB thread count. 0 uses runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// StoreConfig holds Badger key-value store settings. The store persists
// services, providers, share tokens, sessions, u-nodes, and instances.
type StoreConfig struct {
	Path string `koanf:"path"`
	// InMemory runs Badger without persistence. Tests only.
	InMemory bool `koanf:"in_memory"`
}

// RegistryConfig holds service registry settings.
//
// A service whose last heartbeat is older than 2x its TTL is marked
// unhealthy; older than 4x its TTL, unknown.
type RegistryConfig struct {
	// DefaultTTL applies to registrations that do not declare their own.
	DefaultTTL time.Duration `koanf:"default_ttl"`
	// MonitorInterval is how often heartbeat ages are evaluated.
	MonitorInterval time.Duration `koanf:"monitor_interval"`
}

// ProvidersConfig seeds the provider registry. Seeded providers are created
// on first start when no provider with the same name exists; runtime edits
// win afterwards.
type ProvidersConfig struct {
	Seed []ProviderSeed `koanf:"seed"`
	// ProbeTimeout bounds a single validation probe.
	ProbeTimeout time.Duration `koanf:"probe_timeout"`
}

// ProviderSeed describes one provider in the config file.
type ProviderSeed struct {
	Type    string `koanf:"type"` // llm, audio, memory
	Name    string `koanf:"name"`
	BaseURL string `koanf:"base_url"`
	APIKey  string `koanf:"api_key"`
	Model   string `koanf:"model"`
	Enabled bool   `koanf:"enabled"`
	Default bool   `koanf:"default"`
}

// RelayConfig holds audio relay settings.
type RelayConfig struct {
	// MaxListeners caps the number of listeners per stream.
	MaxListeners int `koanf:"max_listeners"`
	// MaxFrameBytes caps a single audio frame.
	MaxFrameBytes int64 `koanf:"max_frame_bytes"`
	// SendBuffer is the per-listener outbound frame queue depth.
	SendBuffer int `koanf:"send_buffer"`
	// BreakerFailures is the consecutive send failures that open a
	// listener's circuit breaker and force its disconnect.
	BreakerFailures int `koanf:"breaker_failures"`
	// BreakerTimeout is how long an opened breaker stays open.
	BreakerTimeout time.Duration `koanf:"breaker_timeout"`
}

// ShareConfig holds share token settings.
type ShareConfig struct {
	// DefaultExpiry applies when a create request omits expiry.
	DefaultExpiry time.Duration `koanf:"default_expiry"`
	// MaxExpiry caps requested expiries. Zero disables the cap.
	MaxExpiry time.Duration `koanf:"max_expiry"`
}

// AuthConfig holds authentication and authorization settings.
//
// Mode selects the authentication strategy:
//   - "keycloak": validate bearer tokens against a Keycloak realm via OIDC
//   - "jwt": locally issued HS256 tokens with admin credentials
//   - "none": no authentication (single-user trusted network)
type AuthConfig struct {
	Mode           string        `koanf:"mode"`
	JWTSecret      string        `koanf:"jwt_secret"`
	SessionTimeout time.Duration `koanf:"session_timeout"`
	AdminUsername  string        `koanf:"admin_username"`
	AdminPassword  string        `koanf:"admin_password"`

	Keycloak KeycloakConfig `koanf:"keycloak"`
	Casbin   CasbinConfig   `koanf:"casbin"`
}

// KeycloakConfig holds Keycloak OIDC settings.
type KeycloakConfig struct {
	// URL is the Keycloak base URL, e.g. http://localhost:8080.
	URL string `koanf:"url"`
	// Realm is the Keycloak realm name. The OIDC issuer is derived as
	// <url>/realms/<realm> unless IssuerURL overrides it.
	Realm        string        `koanf:"realm"`
	IssuerURL    string        `koanf:"issuer_url"`
	ClientID     string        `koanf:"client_id"`
	ClientSecret string        `koanf:"client_secret"`
	RedirectURL  string        `koanf:"redirect_url"`
	Scopes       []string      `koanf:"scopes"`
	PKCEEnabled  bool          `koanf:"pkce_enabled"`
	JWKSCacheTTL time.Duration `koanf:"jwks_cache_ttl"`
	// RolesClaim is the token claim holding realm roles.
	RolesClaim   string   `koanf:"roles_claim"`
	DefaultRoles []string `koanf:"default_roles"`
}

// Issuer returns the effective OIDC issuer URL.
func (k KeycloakConfig) Issuer() string {
	if k.IssuerURL != "" {
		return k.IssuerURL
	}
	if k.URL == "" || k.Realm == "" {
		return ""
	}
	return k.URL + "/realms/" + k.Realm
}

// CasbinConfig holds RBAC enforcement settings.
type CasbinConfig struct {
	// DefaultRole is assigned to authenticated users with no roles.
	DefaultRole string `koanf:"default_role"`
}

// TailscaleConfig holds tailnet integration settings. The local tailscale
// CLI is the control surface; ushadow never speaks to the coordination
// server directly.
type TailscaleConfig struct {
	Enabled bool `koanf:"enabled"`
	// Binary is the tailscale executable name or path.
	Binary  string        `koanf:"binary"`
	Timeout time.Duration `koanf:"timeout"`
	// Hostname is passed to tailscale up when non-empty.
	Hostname string `koanf:"hostname"`
}

// DockerConfig holds Docker Engine connection settings for instance and
// u-node deployments.
type DockerConfig struct {
	// Host is the Docker daemon address. Empty uses the environment
	// (DOCKER_HOST) or the default unix socket.
	Host string `koanf:"host"`
	// APIVersion pins the negotiated engine API version when non-empty.
	APIVersion string `koanf:"api_version"`
}

// UNodeConfig holds u-node cluster settings.
type UNodeConfig struct {
	// HeartbeatInterval is the expected node heartbeat cadence. A node
	// missing 3 consecutive intervals is marked offline.
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`
	MonitorInterval   time.Duration `koanf:"monitor_interval"`
}

// AuditConfig holds audit trail settings.
type AuditConfig struct {
	Enabled bool `koanf:"enabled"`
	// BufferSize is the async writer queue depth. Events beyond it are
	// dropped and counted.
	BufferSize    int           `koanf:"buffer_size"`
	RetentionDays int           `koanf:"retention_days"`
	FlushInterval time.Duration `koanf:"flush_interval"`
}

// APIConfig holds API behavior settings.
type APIConfig struct {
	DefaultPageSize   int           `koanf:"default_page_size"`
	MaxPageSize       int           `koanf:"max_page_size"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// SettingsConfig locates the runtime settings overlay file.
type SettingsConfig struct {
	Path string `koanf:"path"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
