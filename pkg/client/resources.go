// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package client

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Health returns the server's component health report.
func (c *Client) Health(ctx context.Context) (*HealthReport, error) {
	var report HealthReport
	if _, err := c.get(ctx, "/api/v1/health", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Login exchanges admin credentials for a bearer token and installs it on
// the client.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	_, err := c.post(ctx, "/api/v1/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &out)
	if err != nil {
		return "", err
	}
	c.token = out.Token
	return out.Token, nil
}

// UserInfo returns the authenticated identity.
func (c *Client) UserInfo(ctx context.Context) (*UserInfo, error) {
	var info UserInfo
	if _, err := c.get(ctx, "/api/v1/auth/me", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// RegisterService registers or re-registers a service by name.
func (c *Client) RegisterService(ctx context.Context, reg ServiceRegistration) (*Service, error) {
	var svc Service
	if _, err := c.post(ctx, "/api/v1/services", reg, &svc); err != nil {
		return nil, err
	}
	return &svc, nil
}

// ListServices lists services. Empty kind/health match everything.
func (c *Client) ListServices(ctx context.Context, kind, health string) ([]Service, error) {
	q := url.Values{}
	if kind != "" {
		q.Set("kind", kind)
	}
	if health != "" {
		q.Set("health", health)
	}
	var services []Service
	if _, err := c.get(ctx, "/api/v1/services", q, &services); err != nil {
		return nil, err
	}
	return services, nil
}

// GetService fetches a service by ID.
func (c *Client) GetService(ctx context.Context, id string) (*Service, error) {
	var svc Service
	if _, err := c.get(ctx, "/api/v1/services/"+url.PathEscape(id), nil, &svc); err != nil {
		return nil, err
	}
	return &svc, nil
}

// HeartbeatService refreshes a service's TTL.
func (c *Client) HeartbeatService(ctx context.Context, id string) (*Service, error) {
	var svc Service
	if _, err := c.post(ctx, "/api/v1/services/"+url.PathEscape(id)+"/heartbeat", nil, &svc); err != nil {
		return nil, err
	}
	return &svc, nil
}

// DeregisterService removes a service.
func (c *Client) DeregisterService(ctx context.Context, id string) error {
	return c.delete(ctx, "/api/v1/services/"+url.PathEscape(id))
}

// ConfigureProvider creates or updates a provider.
func (c *Client) ConfigureProvider(ctx context.Context, input ProviderInput) (*Provider, error) {
	var p Provider
	if _, err := c.post(ctx, "/api/v1/providers", input, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProviders lists providers, optionally filtered by type.
func (c *Client) ListProviders(ctx context.Context, typ string) ([]Provider, error) {
	q := url.Values{}
	if typ != "" {
		q.Set("type", typ)
	}
	var providers []Provider
	if _, err := c.get(ctx, "/api/v1/providers", q, &providers); err != nil {
		return nil, err
	}
	return providers, nil
}

// GetProvider fetches a provider by ID.
func (c *Client) GetProvider(ctx context.Context, id string) (*Provider, error) {
	var p Provider
	if _, err := c.get(ctx, "/api/v1/providers/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DefaultProvider returns the default provider for a type.
func (c *Client) DefaultProvider(ctx context.Context, typ string) (*Provider, error) {
	var p Provider
	if _, err := c.get(ctx, "/api/v1/providers/defaults/"+url.PathEscape(typ), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SetDefaultProvider promotes a provider to the default for its type.
func (c *Client) SetDefaultProvider(ctx context.Context, id string) (*Provider, error) {
	var p Provider
	if _, err := c.post(ctx, "/api/v1/providers/"+url.PathEscape(id)+"/default", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ValidateProvider probes a provider's endpoint.
func (c *Client) ValidateProvider(ctx context.Context, id string) (*ProviderValidation, error) {
	var result ProviderValidation
	if _, err := c.post(ctx, "/api/v1/providers/"+url.PathEscape(id)+"/validate", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteProvider removes a provider.
func (c *Client) DeleteProvider(ctx context.Context, id string) error {
	return c.delete(ctx, "/api/v1/providers/"+url.PathEscape(id))
}

// CreateShare creates a share token. The returned plaintext token is shown
// exactly once; store it or lose it.
func (c *Client) CreateShare(ctx context.Context, req ShareRequest) (*CreatedShare, error) {
	var created CreatedShare
	if _, err := c.post(ctx, "/api/v1/shares", req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ListShares lists shares, optionally filtered by creator.
func (c *Client) ListShares(ctx context.Context, creator string) ([]Share, error) {
	q := url.Values{}
	if creator != "" {
		q.Set("creator", creator)
	}
	var shares []Share
	if _, err := c.get(ctx, "/api/v1/shares", q, &shares); err != nil {
		return nil, err
	}
	return shares, nil
}

// GetShare fetches a share record by ID.
func (c *Client) GetShare(ctx context.Context, id string) (*Share, error) {
	var s Share
	if _, err := c.get(ctx, "/api/v1/shares/"+url.PathEscape(id), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// RevokeShare revokes a share immediately.
func (c *Client) RevokeShare(ctx context.Context, id, reason string) (*Share, error) {
	var s Share
	body := map[string]string{}
	if reason != "" {
		body["reason"] = reason
	}
	if _, err := c.post(ctx, "/api/v1/shares/"+url.PathEscape(id)+"/revoke", body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// RedeemShare redeems a plaintext share token for a grant. The capability
// defaults to "view" when empty. No authentication is required.
func (c *Client) RedeemShare(ctx context.Context, token, capability string) (*Grant, error) {
	q := url.Values{}
	if capability != "" {
		q.Set("capability", capability)
	}
	var grant Grant
	if _, err := c.get(ctx, "/api/v1/shared/"+url.PathEscape(token), q, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

// RegisterNode registers a u-node, or refreshes one of the same name.
func (c *Client) RegisterNode(ctx context.Context, reg NodeRegistration) (*Node, error) {
	var node Node
	if _, err := c.post(ctx, "/api/v1/nodes", reg, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// ListNodes lists registered u-nodes.
func (c *Client) ListNodes(ctx context.Context) ([]Node, error) {
	var nodes []Node
	if _, err := c.get(ctx, "/api/v1/nodes", nil, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// GetNode fetches a node by ID.
func (c *Client) GetNode(ctx context.Context, id string) (*Node, error) {
	var node Node
	if _, err := c.get(ctx, "/api/v1/nodes/"+url.PathEscape(id), nil, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// HeartbeatNode refreshes a node's liveness.
func (c *Client) HeartbeatNode(ctx context.Context, id string) (*Node, error) {
	var node Node
	if _, err := c.post(ctx, "/api/v1/nodes/"+url.PathEscape(id)+"/heartbeat", nil, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// RemoveNode removes a node from the cluster.
func (c *Client) RemoveNode(ctx context.Context, id string) error {
	return c.delete(ctx, "/api/v1/nodes/"+url.PathEscape(id))
}

// DeployToNode runs a container on behalf of a node and returns the
// container ID.
func (c *Client) DeployToNode(ctx context.Context, id string, dep NodeDeployment) (string, error) {
	var out struct {
		ContainerID string `json:"container_id"`
	}
	if _, err := c.post(ctx, "/api/v1/nodes/"+url.PathEscape(id)+"/deploy", dep, &out); err != nil {
		return "", err
	}
	return out.ContainerID, nil
}

// ListTemplates lists the instance template catalog.
func (c *Client) ListTemplates(ctx context.Context) ([]Template, error) {
	var templates []Template
	if _, err := c.get(ctx, "/api/v1/templates", nil, &templates); err != nil {
		return nil, err
	}
	return templates, nil
}

// GetTemplate fetches a template by ID.
func (c *Client) GetTemplate(ctx context.Context, id string) (*Template, error) {
	var tpl Template
	if _, err := c.get(ctx, "/api/v1/templates/"+url.PathEscape(id), nil, &tpl); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// CreateInstance creates an instance from a template.
func (c *Client) CreateInstance(ctx context.Context, req InstanceRequest) (*Instance, error) {
	var inst Instance
	if _, err := c.post(ctx, "/api/v1/instances", req, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

// ListInstances lists instances, newest first.
func (c *Client) ListInstances(ctx context.Context) ([]Instance, error) {
	var instances []Instance
	if _, err := c.get(ctx, "/api/v1/instances", nil, &instances); err != nil {
		return nil, err
	}
	return instances, nil
}

// GetInstance fetches an instance by ID.
func (c *Client) GetInstance(ctx context.Context, id string) (*Instance, error) {
	var inst Instance
	if _, err := c.get(ctx, "/api/v1/instances/"+url.PathEscape(id), nil, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

// StartInstance launches the instance's container.
func (c *Client) StartInstance(ctx context.Context, id string) (*Instance, error) {
	var inst Instance
	if _, err := c.post(ctx, "/api/v1/instances/"+url.PathEscape(id)+"/start", nil, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

// StopInstance stops the instance's container.
func (c *Client) StopInstance(ctx context.Context, id string) (*Instance, error) {
	var inst Instance
	if _, err := c.post(ctx, "/api/v1/instances/"+url.PathEscape(id)+"/stop", nil, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

// DeleteInstance stops a running instance and removes it.
func (c *Client) DeleteInstance(ctx context.Context, id string) error {
	return c.delete(ctx, "/api/v1/instances/"+url.PathEscape(id))
}

// RegisterMemorySource registers a memory source plugin.
func (c *Client) RegisterMemorySource(ctx context.Context, reg MemorySourceRegistration) (*MemorySource, error) {
	var src MemorySource
	if _, err := c.post(ctx, "/api/v1/memory/sources", reg, &src); err != nil {
		return nil, err
	}
	return &src, nil
}

// ListMemorySources lists registered memory sources.
func (c *Client) ListMemorySources(ctx context.Context) ([]MemorySource, error) {
	var sources []MemorySource
	if _, err := c.get(ctx, "/api/v1/memory/sources", nil, &sources); err != nil {
		return nil, err
	}
	return sources, nil
}

// SetMemorySourceEnabled toggles a source in or out of the tool set.
func (c *Client) SetMemorySourceEnabled(ctx context.Context, id string, enabled bool) (*MemorySource, error) {
	var src MemorySource
	if _, err := c.put(ctx, "/api/v1/memory/sources/"+url.PathEscape(id)+"/enabled",
		map[string]bool{"enabled": enabled}, &src); err != nil {
		return nil, err
	}
	return &src, nil
}

// RemoveMemorySource removes a memory source.
func (c *Client) RemoveMemorySource(ctx context.Context, id string) error {
	return c.delete(ctx, "/api/v1/memory/sources/"+url.PathEscape(id))
}

// MemoryTools returns the aggregated tool schemas of enabled sources.
func (c *Client) MemoryTools(ctx context.Context) ([]SourceTools, error) {
	var tools []SourceTools
	if _, err := c.get(ctx, "/api/v1/memory/tools", nil, &tools); err != nil {
		return nil, err
	}
	return tools, nil
}

// Settings returns the whole runtime settings overlay.
func (c *Client) Settings(ctx context.Context) (map[string]interface{}, error) {
	var settings map[string]interface{}
	if _, err := c.get(ctx, "/api/v1/settings", nil, &settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// SetSetting writes one runtime setting.
func (c *Client) SetSetting(ctx context.Context, key string, value interface{}) error {
	_, err := c.put(ctx, "/api/v1/settings/"+url.PathEscape(key),
		map[string]interface{}{"value": value}, nil)
	return err
}

// UnsetSetting removes one runtime setting.
func (c *Client) UnsetSetting(ctx context.Context, key string) error {
	return c.delete(ctx, "/api/v1/settings/"+url.PathEscape(key))
}

// TailscaleStatus returns the local tailnet state.
func (c *Client) TailscaleStatus(ctx context.Context) (*TailscaleStatus, error) {
	var status TailscaleStatus
	if _, err := c.get(ctx, "/api/v1/tailscale/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// TailscaleUp joins the tailnet. The auth key is used once, never stored.
func (c *Client) TailscaleUp(ctx context.Context, authKey, hostname string) error {
	body := map[string]string{}
	if authKey != "" {
		body["auth_key"] = authKey
	}
	if hostname != "" {
		body["hostname"] = hostname
	}
	_, err := c.post(ctx, "/api/v1/tailscale/up", body, nil)
	return err
}

// TailscaleDown leaves the tailnet.
func (c *Client) TailscaleDown(ctx context.Context) error {
	_, err := c.post(ctx, "/api/v1/tailscale/down", nil, nil)
	return err
}

// TailscaleIP returns the node's tailnet IPv4 address.
func (c *Client) TailscaleIP(ctx context.Context) (string, error) {
	var out struct {
		IP string `json:"ip"`
	}
	if _, err := c.get(ctx, "/api/v1/tailscale/ip", nil, &out); err != nil {
		return "", err
	}
	return out.IP, nil
}

// AuditEvents queries the audit trail. The returned total counts all
// matches, not just the returned page.
func (c *Client) AuditEvents(ctx context.Context, query AuditQuery) ([]AuditEvent, int64, error) {
	q := url.Values{}
	if len(query.Types) > 0 {
		q.Set("types", strings.Join(query.Types, ","))
	}
	if len(query.Severities) > 0 {
		q.Set("severities", strings.Join(query.Severities, ","))
	}
	if len(query.Outcomes) > 0 {
		q.Set("outcomes", strings.Join(query.Outcomes, ","))
	}
	if query.ActorID != "" {
		q.Set("actor_id", query.ActorID)
	}
	if query.TargetID != "" {
		q.Set("target_id", query.TargetID)
	}
	if query.TargetType != "" {
		q.Set("target_type", query.TargetType)
	}
	if query.Search != "" {
		q.Set("search", query.Search)
	}
	if query.StartTime != nil {
		q.Set("start_time", query.StartTime.Format(time.RFC3339))
	}
	if query.EndTime != nil {
		q.Set("end_time", query.EndTime.Format(time.RFC3339))
	}
	if query.Limit > 0 {
		q.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.Offset > 0 {
		q.Set("offset", strconv.Itoa(query.Offset))
	}

	var events []AuditEvent
	meta, err := c.get(ctx, "/api/v1/audit/events", q, &events)
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if meta.Total != nil {
		total = *meta.Total
	}
	return events, total, nil
}
