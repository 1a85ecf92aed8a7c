// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package api

import (
	"errors"
	"net/http"

	"github.com/ushadow-io/ushadow/internal/audit"
	"github.com/ushadow-io/ushadow/internal/tailscale"
)

type tailscaleUpRequest struct {
	AuthKey  string `json:"auth_key,omitempty"`
	Hostname string `json:"hostname,omitempty" validate:"omitempty,hostname"`
}

func (h *Handlers) handleTailscaleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.Tailscale.Status(r.Context())
	if err != nil {
		respondTailscaleError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, status)
}

// handleTailscaleUp brings the node onto the tailnet. The auth key is used
// once and never stored.
func (h *Handlers) handleTailscaleUp(w http.ResponseWriter, r *http.Request) {
	var req tailscaleUpRequest
	if r.ContentLength > 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
		if !validateRequest(w, r, &req) {
			return
		}
	}

	if err := h.Tailscale.Up(r.Context(), req.AuthKey, req.Hostname); err != nil {
		respondTailscaleError(w, r, err)
		return
	}

	if h.Audit != nil {
		h.Audit.LogAdminAction(r.Context(), requestActor(r), audit.SourceFromRequest(r),
			"tailscale.up", "node joined the tailnet", nil)
	}

	respondData(w, r, http.StatusOK, map[string]string{"status": "up"})
}

func (h *Handlers) handleTailscaleDown(w http.ResponseWriter, r *http.Request) {
	if err := h.Tailscale.Down(r.Context()); err != nil {
		respondTailscaleError(w, r, err)
		return
	}

	if h.Audit != nil {
		h.Audit.LogAdminAction(r.Context(), requestActor(r), audit.SourceFromRequest(r),
			"tailscale.down", "node left the tailnet", nil)
	}

	respondData(w, r, http.StatusOK, map[string]string{"status": "down"})
}

func (h *Handlers) handleTailscaleIP(w http.ResponseWriter, r *http.Request) {
	ip, err := h.Tailscale.IP(r.Context())
	if err != nil {
		respondTailscaleError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, map[string]string{"ip": ip})
}

func respondTailscaleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tailscale.ErrDisabled):
		respondError(w, r, http.StatusServiceUnavailable, CodeUnavailable,
			"tailscale integration is disabled", nil)
	case errors.Is(err, tailscale.ErrNotInstalled):
		respondError(w, r, http.StatusServiceUnavailable, CodeUnavailable,
			"tailscale CLI is not installed", nil)
	default:
		respondError(w, r, http.StatusBadGateway, CodeUnavailable,
			"tailscale command failed", err)
	}
}
