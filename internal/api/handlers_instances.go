// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ushadow-io/ushadow/internal/instance"
)

type createInstanceRequest struct {
	TemplateID string            `json:"template_id" validate:"required"`
	Name       string            `json:"name,omitempty" validate:"omitempty,max=128"`
	Config     map[string]string `json:"config,omitempty"`
}

func (h *Handlers) handleTemplateList(w http.ResponseWriter, r *http.Request) {
	templates := h.Instances.ListTemplates()
	respondList(w, r, templates, int64(len(templates)), len(templates), 0)
}

func (h *Handlers) handleTemplateGet(w http.ResponseWriter, r *http.Request) {
	tpl, err := h.Instances.GetTemplate(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "template not found", nil)
		return
	}
	respondData(w, r, http.StatusOK, tpl)
}

// handleInstanceCreate creates an instance from a template. Template
// defaults fill omitted config keys before required fields are checked.
func (h *Handlers) handleInstanceCreate(w http.ResponseWriter, r *http.Request) {
	var req createInstanceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validateRequest(w, r, &req) {
		return
	}

	inst, err := h.Instances.Create(r.Context(), req.TemplateID, req.Name, req.Config)
	if err != nil {
		switch {
		case errors.Is(err, instance.ErrTemplateNotFound):
			respondError(w, r, http.StatusNotFound, CodeNotFound, "template not found", nil)
		case errors.Is(err, instance.ErrMissingField):
			respondError(w, r, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		default:
			respondError(w, r, http.StatusInternalServerError, CodeInternal,
				"failed to create instance", err)
		}
		return
	}
	respondData(w, r, http.StatusCreated, inst)
}

func (h *Handlers) handleInstanceList(w http.ResponseWriter, r *http.Request) {
	instances := h.Instances.List()
	respondList(w, r, instances, int64(len(instances)), len(instances), 0)
}

func (h *Handlers) handleInstanceGet(w http.ResponseWriter, r *http.Request) {
	inst, err := h.Instances.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "instance not found", nil)
		return
	}
	respondData(w, r, http.StatusOK, inst)
}

// handleInstanceStart launches the instance's container. Config-only
// templates cannot start; they exist to hold integration settings.
func (h *Handlers) handleInstanceStart(w http.ResponseWriter, r *http.Request) {
	inst, err := h.Instances.Start(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, instance.ErrNotFound):
			respondError(w, r, http.StatusNotFound, CodeNotFound, "instance not found", nil)
		case errors.Is(err, instance.ErrNotRunnable):
			respondError(w, r, http.StatusConflict, CodeConflict,
				"template is configuration-only and cannot be started", nil)
		case errors.Is(err, instance.ErrNoDocker):
			respondError(w, r, http.StatusServiceUnavailable, CodeUnavailable,
				"docker is not available", nil)
		default:
			respondError(w, r, http.StatusInternalServerError, CodeInternal,
				"failed to start instance", err)
		}
		return
	}
	respondData(w, r, http.StatusOK, inst)
}

func (h *Handlers) handleInstanceStop(w http.ResponseWriter, r *http.Request) {
	inst, err := h.Instances.Stop(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, instance.ErrNotFound) {
			respondError(w, r, http.StatusNotFound, CodeNotFound, "instance not found", nil)
			return
		}
		respondError(w, r, http.StatusInternalServerError, CodeInternal,
			"failed to stop instance", err)
		return
	}
	respondData(w, r, http.StatusOK, inst)
}

// handleInstanceDelete stops a running instance before removing it.
func (h *Handlers) handleInstanceDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.Instances.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, instance.ErrNotFound) {
			respondError(w, r, http.StatusNotFound, CodeNotFound, "instance not found", nil)
			return
		}
		respondError(w, r, http.StatusInternalServerError, CodeInternal,
			"failed to delete instance", err)
		return
	}
	respondData(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}
