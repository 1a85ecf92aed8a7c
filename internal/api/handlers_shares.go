// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ushadow-io/ushadow/internal/audit"
	"github.com/ushadow-io/ushadow/internal/share"
)

// createShareResponse carries the plaintext token. It is returned exactly
// once; only the bcrypt hash is stored.
type createShareResponse struct {
	Share *share.ShareToken `json:"share"`
	Token string            `json:"token"`
}

type revokeShareRequest struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=256"`
}

func (h *Handlers) handleShareCreate(w http.ResponseWriter, r *http.Request) {
	var req share.CreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validateRequest(w, r, &req) {
		return
	}

	token, plaintext, err := h.Shares.Create(r.Context(), &req,
		requestActor(r), audit.SourceFromRequest(r))
	if err != nil {
		if errors.Is(err, share.ErrInvalidRequest) {
			respondError(w, r, http.StatusBadRequest, CodeValidation, err.Error(), nil)
			return
		}
		respondError(w, r, http.StatusInternalServerError, CodeInternal,
			"failed to create share", err)
		return
	}

	respondData(w, r, http.StatusCreated, createShareResponse{
		Share: token,
		Token: plaintext,
	})
}

// handleShareList lists shares. ?creator= filters by creating user.
func (h *Handlers) handleShareList(w http.ResponseWriter, r *http.Request) {
	shares, err := h.Shares.List(r.URL.Query().Get("creator"))
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternal,
			"failed to list shares", err)
		return
	}
	respondList(w, r, shares, int64(len(shares)), len(shares), 0)
}

func (h *Handlers) handleShareGet(w http.ResponseWriter, r *http.Request) {
	token, err := h.Shares.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "share not found", nil)
		return
	}
	respondData(w, r, http.StatusOK, token)
}

// handleShareRevoke revokes a share. Revocation is immediate and final;
// it wins over remaining views and unexpired time.
func (h *Handlers) handleShareRevoke(w http.ResponseWriter, r *http.Request) {
	var req revokeShareRequest
	if r.ContentLength > 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
		if !validateRequest(w, r, &req) {
			return
		}
	}

	token, err := h.Shares.Revoke(r.Context(), chi.URLParam(r, "id"), req.Reason,
		requestActor(r), audit.SourceFromRequest(r))
	if err != nil {
		if errors.Is(err, share.ErrNotFound) {
			respondError(w, r, http.StatusNotFound, CodeNotFound, "share not found", nil)
			return
		}
		respondError(w, r, http.StatusInternalServerError, CodeInternal,
			"failed to revoke share", err)
		return
	}
	respondData(w, r, http.StatusOK, token)
}

// handleShareRedeem is the unauthenticated redemption endpoint. The token
// travels in the path; the requested capability defaults to "view". Denials
// are deliberately uniform: a guesser learns only that the token does not
// currently grant access, not why.
func (h *Handlers) handleShareRedeem(w http.ResponseWriter, r *http.Request) {
	capability := r.URL.Query().Get("capability")
	if capability == "" {
		capability = "view"
	}

	grant, err := h.Shares.Redeem(r.Context(), chi.URLParam(r, "token"),
		capability, audit.SourceFromRequest(r))
	if err != nil {
		switch {
		case errors.Is(err, share.ErrCapability):
			respondError(w, r, http.StatusForbidden, CodeForbidden,
				"capability not granted", nil)
		case errors.Is(err, share.ErrNotFound),
			errors.Is(err, share.ErrRevoked),
			errors.Is(err, share.ErrExpired),
			errors.Is(err, share.ErrViewsExhausted):
			respondError(w, r, http.StatusNotFound, CodeNotFound,
				"share not found or no longer valid", nil)
		default:
			respondError(w, r, http.StatusInternalServerError, CodeInternal,
				"failed to redeem share", err)
		}
		return
	}

	respondData(w, r, http.StatusOK, grant)
}
