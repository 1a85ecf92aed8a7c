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
	"github.com/ushadow-io/ushadow/internal/provider"
)

type configureProviderRequest struct {
	Type    string `json:"type" validate:"required,oneof=llm audio memory"`
	Name    string `json:"name" validate:"required,min=1,max=128"`
	BaseURL string `json:"base_url" validate:"required,url"`
	APIKey  string `json:"api_key,omitempty"`
	Model   string `json:"model,omitempty"`
	Enabled bool   `json:"enabled"`
	Default bool   `json:"default"`
}

// handleProviderList lists providers, optionally filtered by type.
func (h *Handlers) handleProviderList(w http.ResponseWriter, r *http.Request) {
	var typ provider.Type
	if raw := r.URL.Query().Get("type"); raw != "" {
		parsed, err := provider.ParseType(raw)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, CodeValidation, err.Error(), nil)
			return
		}
		typ = parsed
	}
	providers := h.Providers.List(typ)
	respondList(w, r, providers, int64(len(providers)), len(providers), 0)
}

func (h *Handlers) handleProviderGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.Providers.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "provider not found", nil)
		return
	}
	respondData(w, r, http.StatusOK, p)
}

// handleProviderConfigure creates or updates a provider. An omitted api_key
// keeps the stored key so updates never require re-entering secrets.
func (h *Handlers) handleProviderConfigure(w http.ResponseWriter, r *http.Request) {
	var req configureProviderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validateRequest(w, r, &req) {
		return
	}

	typ, err := provider.ParseType(req.Type)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return
	}

	p, err := h.Providers.Configure(r.Context(), provider.Input{
		Type:    typ,
		Name:    req.Name,
		BaseURL: req.BaseURL,
		APIKey:  req.APIKey,
		Model:   req.Model,
		Enabled: req.Enabled,
		Default: req.Default,
	})
	if err != nil {
		if errors.Is(err, provider.ErrInvalidProvider) {
			respondError(w, r, http.StatusBadRequest, CodeValidation, err.Error(), nil)
			return
		}
		respondError(w, r, http.StatusInternalServerError, CodeInternal,
			"failed to configure provider", err)
		return
	}

	h.auditProviderChange(r, audit.EventTypeProviderChanged, p, "provider configured")

	respondData(w, r, http.StatusOK, p)
}

// handleProviderSetDefault promotes a provider to the default for its type.
// The previous default for that type is demoted atomically.
func (h *Handlers) handleProviderSetDefault(w http.ResponseWriter, r *http.Request) {
	p, err := h.Providers.SetDefault(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, provider.ErrNotFound):
			respondError(w, r, http.StatusNotFound, CodeNotFound, "provider not found", nil)
		case errors.Is(err, provider.ErrDisabled):
			respondError(w, r, http.StatusConflict, CodeConflict,
				"cannot make a disabled provider the default", nil)
		default:
			respondError(w, r, http.StatusInternalServerError, CodeInternal,
				"failed to set default provider", err)
		}
		return
	}

	h.auditProviderChange(r, audit.EventTypeProviderDefault, p, "default provider changed")

	respondData(w, r, http.StatusOK, p)
}

// handleProviderDefault returns the default provider for a type.
func (h *Handlers) handleProviderDefault(w http.ResponseWriter, r *http.Request) {
	typ, err := provider.ParseType(chi.URLParam(r, "type"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return
	}
	p, err := h.Providers.GetDefault(typ)
	if err != nil {
		respondError(w, r, http.StatusNotFound, CodeNotFound,
			"no default provider configured for type "+string(typ), nil)
		return
	}
	respondData(w, r, http.StatusOK, p)
}

// handleProviderValidate probes the provider endpoint and reports
// reachability, latency, and discovered models.
func (h *Handlers) handleProviderValidate(w http.ResponseWriter, r *http.Request) {
	result, err := h.Providers.Validate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, provider.ErrNotFound):
			respondError(w, r, http.StatusNotFound, CodeNotFound, "provider not found", nil)
		case errors.Is(err, provider.ErrDisabled):
			respondError(w, r, http.StatusConflict, CodeConflict,
				"provider is disabled", nil)
		default:
			respondError(w, r, http.StatusInternalServerError, CodeInternal,
				"provider validation failed", err)
		}
		return
	}
	respondData(w, r, http.StatusOK, result)
}

func (h *Handlers) handleProviderDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Providers.Delete(r.Context(), id); err != nil {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "provider not found", nil)
		return
	}
	respondData(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handlers) auditProviderChange(r *http.Request, eventType audit.EventType, p *provider.Provider, description string) {
	if h.Audit == nil {
		return
	}
	actor := audit.SystemActor()
	if subject := authSubjectActor(r); subject != nil {
		actor = *subject
	}
	h.Audit.LogProviderChange(r.Context(), actor, audit.SourceFromRequest(r),
		eventType, p.ID, string(p.Type), description)
}
