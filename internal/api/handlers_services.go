// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ushadow-io/ushadow/internal/registry"
)

type registerServiceRequest struct {
	Name    string   `json:"name" validate:"required,min=1,max=128"`
	Kind    string   `json:"kind,omitempty" validate:"omitempty,oneof=backend frontend integration"`
	URL     string   `json:"url" validate:"required,url"`
	Tags    []string `json:"tags,omitempty"`
	TTLSecs int      `json:"ttl_secs,omitempty" validate:"omitempty,gte=5,lte=3600"`
}

// handleServiceRegister registers or re-registers a service by name.
func (h *Handlers) handleServiceRegister(w http.ResponseWriter, r *http.Request) {
	var req registerServiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validateRequest(w, r, &req) {
		return
	}

	svc := &registry.Service{
		Name: req.Name,
		Kind: req.Kind,
		URL:  req.URL,
		Tags: req.Tags,
		TTL:  time.Duration(req.TTLSecs) * time.Second,
	}

	registered, err := h.Registry.Register(r.Context(), svc)
	if err != nil {
		if errors.Is(err, registry.ErrInvalidService) {
			respondError(w, r, http.StatusBadRequest, CodeValidation, err.Error(), nil)
			return
		}
		respondError(w, r, http.StatusInternalServerError, CodeInternal,
			"failed to register service", err)
		return
	}

	respondData(w, r, http.StatusCreated, registered)
}

// handleServiceList lists services, optionally filtered by kind and health.
func (h *Handlers) handleServiceList(w http.ResponseWriter, r *http.Request) {
	filter := registry.ListFilter{
		Kind:   r.URL.Query().Get("kind"),
		Health: registry.Health(r.URL.Query().Get("health")),
	}
	services := h.Registry.List(filter)
	respondList(w, r, services, int64(len(services)), len(services), 0)
}

func (h *Handlers) handleServiceGet(w http.ResponseWriter, r *http.Request) {
	svc, err := h.Registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "service not found", nil)
		return
	}
	respondData(w, r, http.StatusOK, svc)
}

// handleServiceHeartbeat refreshes a service's TTL and returns its state.
func (h *Handlers) handleServiceHeartbeat(w http.ResponseWriter, r *http.Request) {
	svc, err := h.Registry.Heartbeat(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "service not found", nil)
		return
	}
	respondData(w, r, http.StatusOK, svc)
}

func (h *Handlers) handleServiceDeregister(w http.ResponseWriter, r *http.Request) {
	if err := h.Registry.Deregister(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "service not found", nil)
		return
	}
	respondData(w, r, http.StatusOK, map[string]string{"status": "deregistered"})
}
