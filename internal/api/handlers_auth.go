// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package api

import (
	"net"
	"net/http"
	"time"

	"github.com/ushadow-io/ushadow/internal/audit"
	"github.com/ushadow-io/ushadow/internal/auth"
)

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// handleLogin exchanges admin credentials for a locally issued JWT. Only
// available in jwt mode; Keycloak logins happen against Keycloak directly.
func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	if h.JWT == nil || h.Admin == nil {
		respondError(w, r, http.StatusServiceUnavailable, CodeUnavailable,
			"local login is not available in this auth mode", nil)
		return
	}

	if h.LoginLimiter != nil && !h.LoginLimiter.Allow(clientIP(r)) {
		respondError(w, r, http.StatusTooManyRequests, CodeRateLimited,
			"too many login attempts, try again later", nil)
		return
	}

	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validateRequest(w, r, &req) {
		return
	}

	if !h.Admin.Verify(req.Username, req.Password) {
		if h.Audit != nil {
			h.Audit.LogAuthFailure(r.Context(), req.Username, req.Username,
				audit.SourceFromRequest(r), "invalid credentials")
		}
		respondError(w, r, http.StatusUnauthorized, CodeUnauthorized,
			"invalid username or password", nil)
		return
	}

	// A server-side session backs the token so logout can revoke it
	// before expiry.
	var sessionID string
	if h.Sessions != nil {
		timeout := h.Config.Auth.SessionTimeout
		if timeout <= 0 {
			timeout = 24 * time.Hour
		}
		session := auth.NewSession(&auth.AuthSubject{
			ID:         req.Username,
			Username:   req.Username,
			Roles:      []string{"admin"},
			AuthMethod: auth.AuthModeJWT,
		}, timeout)
		if err := h.Sessions.Create(r.Context(), session); err != nil {
			respondError(w, r, http.StatusInternalServerError, CodeInternal,
				"failed to create session", err)
			return
		}
		sessionID = session.ID
	}

	token, err := h.JWT.GenerateSessionToken(req.Username, "admin", sessionID)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternal,
			"failed to issue token", err)
		return
	}

	if h.Audit != nil {
		actor := audit.ActorFromUser(req.Username, req.Username, []string{"admin"}, "jwt", sessionID)
		h.Audit.LogAuthSuccess(r.Context(), actor, audit.SourceFromRequest(r), "jwt")
	}

	respondData(w, r, http.StatusOK, loginResponse{
		Token:    token,
		Username: req.Username,
		Role:     "admin",
	})
}

// clientIP returns the request's remote IP. RealIP middleware has already
// resolved proxy headers into RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// handleLogout revokes the server-side session backing the caller's token
// and records the logout in the audit trail.
func (h *Handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	subject := auth.GetAuthSubject(r.Context())
	if subject != nil && subject.SessionID != "" && h.Sessions != nil {
		if err := h.Sessions.Delete(r.Context(), subject.SessionID); err != nil {
			respondError(w, r, http.StatusInternalServerError, CodeInternal,
				"failed to revoke session", err)
			return
		}
	}
	if subject != nil && h.Audit != nil {
		actor := audit.ActorFromUser(subject.ID, subject.Username, subject.Roles,
			subject.AuthMethod.String(), subject.SessionID)
		h.Audit.LogLogout(r.Context(), actor, audit.SourceFromRequest(r), subject.SessionID)
	}
	respondData(w, r, http.StatusOK, map[string]string{"status": "logged_out"})
}

// handleUserInfo returns the authenticated subject.
func (h *Handlers) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	subject := auth.GetAuthSubject(r.Context())
	if subject == nil {
		// Auth mode none has no subject; report the anonymous identity so
		// the UI can render consistently.
		respondData(w, r, http.StatusOK, &auth.AuthSubject{
			ID:         "anonymous",
			Username:   "anonymous",
			Roles:      []string{"admin"},
			AuthMethod: auth.AuthModeNone,
		})
		return
	}
	respondData(w, r, http.StatusOK, subject)
}
