// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package api

import (
	"net/http"
	"time"

	"github.com/ushadow-io/ushadow/internal/audit"
)

// handleAuditEvents queries the audit trail. All filter fields are optional;
// results are newest first unless order_desc=false.
func (h *Handlers) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, offset := h.pageParams(getIntParam(r, "limit", 0), getIntParam(r, "offset", 0))

	filter := audit.QueryFilter{
		ActorID:       q.Get("actor_id"),
		ActorType:     q.Get("actor_type"),
		TargetID:      q.Get("target_id"),
		TargetType:    q.Get("target_type"),
		SourceIP:      q.Get("source_ip"),
		CorrelationID: q.Get("correlation_id"),
		RequestID:     q.Get("request_id"),
		SearchText:    q.Get("search"),
		Limit:         limit,
		Offset:        offset,
		OrderBy:       "timestamp",
		OrderDesc:     getBoolParam(r, "order_desc", true),
	}

	for _, t := range parseCommaSeparated(q.Get("types")) {
		filter.Types = append(filter.Types, audit.EventType(t))
	}
	for _, s := range parseCommaSeparated(q.Get("severities")) {
		filter.Severities = append(filter.Severities, audit.Severity(s))
	}
	for _, o := range parseCommaSeparated(q.Get("outcomes")) {
		filter.Outcomes = append(filter.Outcomes, audit.Outcome(o))
	}

	if raw := q.Get("start_time"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, CodeValidation,
				"start_time must be RFC3339", nil)
			return
		}
		filter.StartTime = &ts
	}
	if raw := q.Get("end_time"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, CodeValidation,
				"end_time must be RFC3339", nil)
			return
		}
		filter.EndTime = &ts
	}

	events, err := h.Audit.Query(r.Context(), filter)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternal,
			"audit query failed", err)
		return
	}

	total, err := h.Audit.Count(r.Context(), filter)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternal,
			"audit count failed", err)
		return
	}

	respondList(w, r, events, total, limit, offset)
}

// handleAuditStats reports store-level statistics. Only available when the
// backing store computes them.
func (h *Handlers) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	if h.AuditStats == nil {
		respondError(w, r, http.StatusServiceUnavailable, CodeUnavailable,
			"audit statistics are not available", nil)
		return
	}
	stats, err := h.AuditStats.GetStats(r.Context())
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternal,
			"failed to compute audit statistics", err)
		return
	}
	respondData(w, r, http.StatusOK, stats)
}

// handleAuditTypes lists every event type the trail records, for filter UIs.
func (h *Handlers) handleAuditTypes(w http.ResponseWriter, r *http.Request) {
	types := []audit.EventType{
		audit.EventTypeAuthSuccess,
		audit.EventTypeAuthFailure,
		audit.EventTypeLogout,
		audit.EventTypeAuthzDenied,
		audit.EventTypeShareCreated,
		audit.EventTypeShareGranted,
		audit.EventTypeShareDenied,
		audit.EventTypeShareRevoked,
		audit.EventTypeServiceRegistered,
		audit.EventTypeServiceDeregistered,
		audit.EventTypeServiceHealth,
		audit.EventTypeProviderChanged,
		audit.EventTypeProviderDefault,
		audit.EventTypeNodeRegistered,
		audit.EventTypeNodeOffline,
		audit.EventTypeInstanceDeployed,
		audit.EventTypeInstanceStopped,
		audit.EventTypeConfigChanged,
		audit.EventTypeAdminAction,
	}
	respondData(w, r, http.StatusOK, types)
}
