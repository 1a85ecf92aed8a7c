// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

// Package api exposes the orchestration REST and WebSocket surface: service
// registry, providers, shares, u-nodes, instances, memory sources, tailnet
// control, settings, and the audit trail. Handlers hold references to the
// domain managers and translate HTTP into manager calls; all business rules
// live below this package.
package api

import (
	"context"
	"net/http"

	"github.com/ushadow-io/ushadow/internal/audit"
	"github.com/ushadow-io/ushadow/internal/auth"
	"github.com/ushadow-io/ushadow/internal/authz"
	"github.com/ushadow-io/ushadow/internal/config"
	"github.com/ushadow-io/ushadow/internal/instance"
	"github.com/ushadow-io/ushadow/internal/memory"
	"github.com/ushadow-io/ushadow/internal/provider"
	"github.com/ushadow-io/ushadow/internal/registry"
	"github.com/ushadow-io/ushadow/internal/relay"
	"github.com/ushadow-io/ushadow/internal/share"
	"github.com/ushadow-io/ushadow/internal/tailscale"
	"github.com/ushadow-io/ushadow/internal/unode"
	"github.com/ushadow-io/ushadow/internal/websocket"
)

// StatsProvider reports audit store statistics. The DuckDB store implements
// it; the in-memory test store does not need to.
type StatsProvider interface {
	GetStats(ctx context.Context) (*audit.Stats, error)
}

// Handlers bundles every dependency the HTTP surface needs. Optional fields
// may be nil; the affected endpoints then return 503.
type Handlers struct {
	Config *config.Config

	Registry  *registry.Registry
	Providers *provider.Manager
	Shares    *share.Service
	Nodes     *unode.Manager
	Instances *instance.Manager
	Memory    *memory.Manager
	Settings  *config.Manager

	RelayHub     *relay.Hub
	RelayHandler *relay.Handler
	EventsHub    *websocket.Hub

	Tailscale *tailscale.Client

	Audit      *audit.Logger
	AuditStats StatsProvider

	AuthMW       *auth.Middleware
	AuthzMW      *authz.Middleware
	JWT          *auth.JWTManager
	Admin        *auth.AdminCredentials
	Sessions     auth.SessionStore
	LoginLimiter *auth.LoginLimiter
}

// pageParams clamps limit/offset against the configured API bounds.
func (h *Handlers) pageParams(limit, offset int) (int, int) {
	defaultSize, maxSize := 50, 500
	if h.Config != nil {
		if h.Config.API.DefaultPageSize > 0 {
			defaultSize = h.Config.API.DefaultPageSize
		}
		if h.Config.API.MaxPageSize > 0 {
			maxSize = h.Config.API.MaxPageSize
		}
	}
	if limit <= 0 {
		limit = defaultSize
	}
	if limit > maxSize {
		limit = maxSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// authSubjectActor converts the request's authenticated subject to an audit
// actor, or nil when the request is anonymous.
func authSubjectActor(r *http.Request) *audit.Actor {
	subject := auth.GetAuthSubject(r.Context())
	if subject == nil {
		return nil
	}
	actor := audit.ActorFromUser(subject.ID, subject.Username, subject.Roles,
		subject.AuthMethod.String(), subject.SessionID)
	return &actor
}

// requestActor returns the audit actor for a request, falling back to the
// system actor for anonymous requests.
func requestActor(r *http.Request) audit.Actor {
	if actor := authSubjectActor(r); actor != nil {
		return *actor
	}
	return audit.SystemActor()
}
