// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package client

import (
	"time"

	"github.com/goccy/go-json"
)

// Service is a registered platform service.
type Service struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Kind          string        `json:"kind"`
	URL           string        `json:"url"`
	Tags          []string      `json:"tags,omitempty"`
	TTL           time.Duration `json:"ttl"`
	LastHeartbeat time.Time     `json:"last_heartbeat"`
	Health        string        `json:"health"`
	RegisteredAt  time.Time     `json:"registered_at"`
}

// ServiceRegistration describes a service to register.
type ServiceRegistration struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind,omitempty"`
	URL     string   `json:"url"`
	Tags    []string `json:"tags,omitempty"`
	TTLSecs int      `json:"ttl_secs,omitempty"`
}

// Provider is a configured model/audio/memory provider.
type Provider struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Name      string    `json:"name"`
	BaseURL   string    `json:"base_url"`
	APIKeyRef string    `json:"api_key_ref,omitempty"`
	Model     string    `json:"model,omitempty"`
	Enabled   bool      `json:"enabled"`
	Default   bool      `json:"default"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProviderInput configures a provider. An empty APIKey keeps the stored key.
type ProviderInput struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key,omitempty"`
	Model   string `json:"model,omitempty"`
	Enabled bool   `json:"enabled"`
	Default bool   `json:"default"`
}

// ProviderValidation is the outcome of a provider probe.
type ProviderValidation struct {
	Reachable  bool     `json:"reachable"`
	StatusCode int      `json:"status_code,omitempty"`
	LatencyMS  int64    `json:"latency_ms"`
	Models     []string `json:"models,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Share is a stored share token record. The plaintext token is only ever
// returned inside CreatedShare.
type Share struct {
	ID           string     `json:"id"`
	TokenPrefix  string     `json:"token_prefix"`
	ResourceType string     `json:"resource_type"`
	ResourceID   string     `json:"resource_id"`
	Capabilities []string   `json:"capabilities"`
	CreatedBy    string     `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	MaxViews     int        `json:"max_views"`
	ViewCount    int        `json:"view_count"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	RevokeReason string     `json:"revoke_reason,omitempty"`
}

// ShareRequest describes a new share.
type ShareRequest struct {
	ResourceType string        `json:"resource_type"`
	ResourceID   string        `json:"resource_id"`
	Capabilities []string      `json:"capabilities"`
	ExpiresAt    *time.Time    `json:"expires_at,omitempty"`
	ExpiresIn    time.Duration `json:"expires_in,omitempty"`
	MaxViews     int           `json:"max_views,omitempty"`
	NoExpiry     bool          `json:"no_expiry,omitempty"`
}

// CreatedShare pairs the stored record with the one-time plaintext token.
type CreatedShare struct {
	Share *Share `json:"share"`
	Token string `json:"token"`
}

// Grant is a successful share redemption.
type Grant struct {
	TokenID        string     `json:"token_id"`
	ResourceType   string     `json:"resource_type"`
	ResourceID     string     `json:"resource_id"`
	Capabilities   []string   `json:"capabilities"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	RemainingViews int        `json:"remaining_views"`
}

// Node is a registered u-node.
type Node struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Hostname      string    `json:"hostname"`
	TailscaleIP   string    `json:"tailscale_ip,omitempty"`
	Roles         []string  `json:"roles,omitempty"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	Status        string    `json:"status"`
	RegisteredAt  time.Time `json:"registered_at"`
}

// NodeRegistration describes a node to register.
type NodeRegistration struct {
	Name        string   `json:"name"`
	Hostname    string   `json:"hostname"`
	TailscaleIP string   `json:"tailscale_ip,omitempty"`
	Roles       []string `json:"roles,omitempty"`
}

// NodeDeployment describes a container to run on behalf of a node.
type NodeDeployment struct {
	Image   string            `json:"image"`
	Name    string            `json:"name,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Ports   map[int]int       `json:"ports,omitempty"`
	Volumes map[string]string `json:"volumes,omitempty"`
}

// TemplateField describes one configurable template value.
type TemplateField struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Required    bool   `json:"required"`
	Secret      bool   `json:"secret"`
	Default     string `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
}

// Template is an instance blueprint.
type Template struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Image       string            `json:"image,omitempty"`
	Ports       map[int]int       `json:"ports,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	Fields      []TemplateField   `json:"fields,omitempty"`
}

// Instance is a deployed (or configured) template instance.
type Instance struct {
	ID          string            `json:"id"`
	TemplateID  string            `json:"template_id"`
	Name        string            `json:"name"`
	Config      map[string]string `json:"config,omitempty"`
	Status      string            `json:"status"`
	ContainerID string            `json:"container_id,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// InstanceRequest creates an instance from a template.
type InstanceRequest struct {
	TemplateID string            `json:"template_id"`
	Name       string            `json:"name,omitempty"`
	Config     map[string]string `json:"config,omitempty"`
}

// MemorySource is a registered memory plugin.
type MemorySource struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Endpoint    string          `json:"endpoint"`
	ToolSchema  json.RawMessage `json:"tool_schema,omitempty"`
	Enabled     bool            `json:"enabled"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// MemorySourceRegistration registers a memory source.
type MemorySourceRegistration struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Endpoint    string          `json:"endpoint"`
	ToolSchema  json.RawMessage `json:"tool_schema,omitempty"`
}

// SourceTools is one enabled source's contribution to the tool set.
type SourceTools struct {
	SourceID string          `json:"source_id"`
	Name     string          `json:"name"`
	Schema   json.RawMessage `json:"schema"`
}

// TailscaleDevice is a node on the tailnet. Field names follow the
// tailscale CLI's JSON output, which the server passes through.
type TailscaleDevice struct {
	HostName     string   `json:"HostName"`
	DNSName      string   `json:"DNSName"`
	TailscaleIPs []string `json:"TailscaleIPs"`
	OS           string   `json:"OS"`
	Online       bool     `json:"Online"`
}

// TailscaleStatus is the local tailnet state.
type TailscaleStatus struct {
	BackendState string                     `json:"BackendState"`
	MagicDNS     string                     `json:"MagicDNSSuffix"`
	Self         TailscaleDevice            `json:"Self"`
	Peers        map[string]TailscaleDevice `json:"Peer"`
}

// Connected reports whether the node is up on the tailnet.
func (s *TailscaleStatus) Connected() bool {
	return s.BackendState == "Running"
}

// AuditEvent is one audit trail entry.
type AuditEvent struct {
	ID            string          `json:"id"`
	Timestamp     time.Time       `json:"timestamp"`
	Type          string          `json:"type"`
	Severity      string          `json:"severity"`
	Outcome       string          `json:"outcome"`
	Action        string          `json:"action"`
	Description   string          `json:"description"`
	Actor         json.RawMessage `json:"actor,omitempty"`
	Target        json.RawMessage `json:"target,omitempty"`
	Source        json.RawMessage `json:"source,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	RequestID     string          `json:"request_id,omitempty"`
}

// AuditQuery filters an audit trail query. Zero values are unfiltered.
type AuditQuery struct {
	Types      []string
	Severities []string
	Outcomes   []string
	ActorID    string
	TargetID   string
	TargetType string
	Search     string
	StartTime  *time.Time
	EndTime    *time.Time
	Limit      int
	Offset     int
}

// HealthReport is the server's component health summary.
type HealthReport struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version"`
	UptimeSecs int64                      `json:"uptime_secs"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth describes one subsystem in a HealthReport.
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// UserInfo is the authenticated identity.
type UserInfo struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	Issuer   string   `json:"issuer,omitempty"`
}
