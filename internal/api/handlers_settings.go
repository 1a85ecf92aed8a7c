// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ushadow-io/ushadow/internal/audit"
)

type setSettingRequest struct {
	Value interface{} `json:"value" validate:"required"`
}

// handleSettingsList returns the whole runtime settings overlay.
func (h *Handlers) handleSettingsList(w http.ResponseWriter, r *http.Request) {
	respondData(w, r, http.StatusOK, h.Settings.All())
}

func (h *Handlers) handleSettingGet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, ok := h.Settings.Get(key)
	if !ok {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "setting not found", nil)
		return
	}
	respondData(w, r, http.StatusOK, map[string]interface{}{"key": key, "value": value})
}

// handleSettingSet writes a runtime setting. Changes persist across restarts
// and are recorded in the audit trail.
func (h *Handlers) handleSettingSet(w http.ResponseWriter, r *http.Request) {
	var req setSettingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Value == nil {
		respondError(w, r, http.StatusBadRequest, CodeValidation, "value is required", nil)
		return
	}

	key := chi.URLParam(r, "key")
	old, _ := h.Settings.Get(key)

	if err := h.Settings.Set(key, req.Value); err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternal,
			"failed to persist setting", err)
		return
	}

	if h.Audit != nil {
		h.Audit.LogConfigChange(r.Context(), requestActor(r), audit.SourceFromRequest(r),
			key, settingString(old), settingString(req.Value))
	}

	respondData(w, r, http.StatusOK, map[string]interface{}{"key": key, "value": req.Value})
}

func (h *Handlers) handleSettingUnset(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	old, ok := h.Settings.Get(key)
	if !ok {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "setting not found", nil)
		return
	}

	if err := h.Settings.Unset(key); err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternal,
			"failed to remove setting", err)
		return
	}

	if h.Audit != nil {
		h.Audit.LogConfigChange(r.Context(), requestActor(r), audit.SourceFromRequest(r),
			key, settingString(old), "")
	}

	respondData(w, r, http.StatusOK, map[string]string{"status": "removed"})
}

// settingString renders a setting value for the audit trail. Secrets do not
// live in the settings overlay, so plain rendering is acceptable.
func settingString(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
