// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/ushadow-io/ushadow/internal/logging"
	"github.com/ushadow-io/ushadow/internal/middleware"
	"github.com/ushadow-io/ushadow/internal/validation"
)

// Response is the envelope every JSON endpoint returns.
type Response struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data,omitempty"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries per-response bookkeeping.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
	// Total and Limit/Offset appear on paginated list responses.
	Total  *int64 `json:"total,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// APIError is the error payload inside an error envelope.
type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Stable error codes returned in the envelope.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeGone         = "GONE"
	CodeRateLimited  = "RATE_LIMITED"
	CodeUnavailable  = "UNAVAILABLE"
	CodeInternal     = "INTERNAL_ERROR"
)

// sanitizeLogValue strips control characters so attacker-supplied strings
// cannot forge log entries.
func sanitizeLogValue(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			result.WriteString(fmt.Sprintf("\\x%02x", r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// respondJSON writes the envelope with content headers and an FNV-1a ETag.
func respondJSON(w http.ResponseWriter, status int, response *Response) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Vary", "Accept-Encoding")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("ETag", generateETag(data))

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func generateETag(data []byte) string {
	hash := uint32(2166136261)
	for _, b := range data {
		hash ^= uint32(b)
		hash *= 16777619
	}
	return strconv.FormatUint(uint64(hash), 16)
}

// respondData wraps data in a success envelope.
func respondData(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	respondJSON(w, status, &Response{
		Status: "success",
		Data:   data,
		Metadata: Metadata{
			Timestamp: time.Now().UTC(),
			RequestID: middleware.GetRequestID(r.Context()),
		},
	})
}

// respondList wraps a list in a success envelope with pagination metadata.
func respondList(w http.ResponseWriter, r *http.Request, data interface{}, total int64, limit, offset int) {
	respondJSON(w, http.StatusOK, &Response{
		Status: "success",
		Data:   data,
		Metadata: Metadata{
			Timestamp: time.Now().UTC(),
			RequestID: middleware.GetRequestID(r.Context()),
			Total:     &total,
			Limit:     limit,
			Offset:    offset,
		},
	})
}

// respondError writes an error envelope and logs the underlying error.
func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, err error) {
	if err != nil {
		logging.Error().
			Str("code", sanitizeLogValue(code)).
			Str("error", sanitizeLogValue(err.Error())).
			Msg("API error")
	}

	respondJSON(w, status, &Response{
		Status: "error",
		Metadata: Metadata{
			Timestamp: time.Now().UTC(),
			RequestID: middleware.GetRequestID(r.Context()),
		},
		Error: &APIError{
			Code:    code,
			Message: message,
		},
	})
}

// respondValidationError writes a 400 with per-field details.
func respondValidationError(w http.ResponseWriter, r *http.Request, reqErr *validation.RequestError) {
	respondJSON(w, http.StatusBadRequest, &Response{
		Status: "error",
		Metadata: Metadata{
			Timestamp: time.Now().UTC(),
			RequestID: middleware.GetRequestID(r.Context()),
		},
		Error: &APIError{
			Code:    CodeValidation,
			Message: reqErr.Error(),
			Details: reqErr.Details(),
		},
	})
}

// decodeJSON decodes a request body into v, rejecting unknown fields.
// A false return means the error response has already been written.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeValidation, "invalid JSON body", err)
		return false
	}
	return true
}

// validateRequest runs struct validation and writes the 400 itself.
// A false return means the caller should stop.
func validateRequest(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if reqErr := validation.ValidateStruct(v); reqErr != nil {
		respondValidationError(w, r, reqErr)
		return false
	}
	return true
}

// getIntParam extracts an integer query parameter with a default.
func getIntParam(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// getBoolParam extracts a boolean query parameter with a default.
func getBoolParam(r *http.Request, key string, defaultValue bool) bool {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

// parseCommaSeparated splits a comma separated query value, trimming blanks.
func parseCommaSeparated(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
