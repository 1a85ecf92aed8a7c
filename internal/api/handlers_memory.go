// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/ushadow-io/ushadow/internal/memory"
)

type registerMemorySourceRequest struct {
	Name        string          `json:"name" validate:"required,min=1,max=128"`
	Description string          `json:"description,omitempty" validate:"omitempty,max=512"`
	Endpoint    string          `json:"endpoint" validate:"required,url"`
	ToolSchema  json.RawMessage `json:"tool_schema,omitempty"`
}

type setEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// handleMemorySourceRegister registers a memory source plugin. Re-registering
// the same name updates endpoint and schema but keeps the enabled state.
func (h *Handlers) handleMemorySourceRegister(w http.ResponseWriter, r *http.Request) {
	var req registerMemorySourceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validateRequest(w, r, &req) {
		return
	}

	src, err := h.Memory.Register(r.Context(), &memory.Source{
		Name:        req.Name,
		Description: req.Description,
		Endpoint:    req.Endpoint,
		ToolSchema:  req.ToolSchema,
	})
	if err != nil {
		if errors.Is(err, memory.ErrInvalidSource) {
			respondError(w, r, http.StatusBadRequest, CodeValidation, err.Error(), nil)
			return
		}
		respondError(w, r, http.StatusInternalServerError, CodeInternal,
			"failed to register memory source", err)
		return
	}
	respondData(w, r, http.StatusCreated, src)
}

func (h *Handlers) handleMemorySourceList(w http.ResponseWriter, r *http.Request) {
	sources := h.Memory.List()
	respondList(w, r, sources, int64(len(sources)), len(sources), 0)
}

func (h *Handlers) handleMemorySourceGet(w http.ResponseWriter, r *http.Request) {
	src, err := h.Memory.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "memory source not found", nil)
		return
	}
	respondData(w, r, http.StatusOK, src)
}

// handleMemorySourceSetEnabled toggles a source in or out of the aggregated
// tool set.
func (h *Handlers) handleMemorySourceSetEnabled(w http.ResponseWriter, r *http.Request) {
	var req setEnabledRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	src, err := h.Memory.SetEnabled(r.Context(), chi.URLParam(r, "id"), req.Enabled)
	if err != nil {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "memory source not found", nil)
		return
	}
	respondData(w, r, http.StatusOK, src)
}

func (h *Handlers) handleMemorySourceRemove(w http.ResponseWriter, r *http.Request) {
	if err := h.Memory.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "memory source not found", nil)
		return
	}
	respondData(w, r, http.StatusOK, map[string]string{"status": "removed"})
}

// handleMemoryTools returns the aggregated tool schemas of enabled sources,
// the set an assistant runtime feeds to its model.
func (h *Handlers) handleMemoryTools(w http.ResponseWriter, r *http.Request) {
	tools := h.Memory.Tools()
	respondList(w, r, tools, int64(len(tools)), len(tools), 0)
}
