// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ushadow-io/ushadow/internal/registry"
)

var startTime = time.Now()

// HealthReport is the full health payload.
type HealthReport struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version"`
	UptimeSecs int64                      `json:"uptime_secs"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth describes one subsystem.
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Version is stamped at build time via -ldflags.
var Version = "dev"

// handleLiveness is the bare liveness probe.
func (h *Handlers) handleLiveness(w http.ResponseWriter, r *http.Request) {
	respondData(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadiness reports whether the server can take traffic: the core
// managers must be wired. Load balancers use this to gate rollout.
func (h *Handlers) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if h.Registry == nil || h.Providers == nil || h.Shares == nil {
		respondError(w, r, http.StatusServiceUnavailable, CodeUnavailable,
			"server is still starting", nil)
		return
	}
	respondData(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// handleHealth reports per-component health. Degraded components turn the
// overall status "degraded" but the endpoint still returns 200; orchestration
// keeps running with reduced capability.
func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := HealthReport{
		Status:     "ok",
		Version:    Version,
		UptimeSecs: int64(time.Since(startTime).Seconds()),
		Components: map[string]ComponentHealth{},
	}

	degrade := func(name, msg string) {
		report.Status = "degraded"
		report.Components[name] = ComponentHealth{Status: "degraded", Message: msg}
	}
	healthy := func(name string) {
		report.Components[name] = ComponentHealth{Status: "ok"}
	}

	if h.Registry != nil {
		unhealthy := len(h.Registry.List(registry.ListFilter{Health: registry.HealthUnhealthy}))
		if unhealthy > 0 {
			degrade("registry", "registered services are missing heartbeats")
		} else {
			healthy("registry")
		}
	}

	if h.RelayHub != nil {
		healthy("relay")
	}

	if h.Audit != nil {
		if h.Audit.Enabled() {
			healthy("audit")
		} else {
			report.Components["audit"] = ComponentHealth{Status: "disabled"}
		}
	}

	if h.Tailscale != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if status, err := h.Tailscale.Status(ctx); err != nil {
			degrade("tailscale", "tailscale CLI unavailable")
		} else if !status.Connected() {
			degrade("tailscale", "not connected to tailnet")
		} else {
			healthy("tailscale")
		}
	}

	respondData(w, r, http.StatusOK, report)
}
