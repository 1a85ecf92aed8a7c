// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/ushadow-io/ushadow/internal/audit"
	"github.com/ushadow-io/ushadow/internal/logging"
)

type contextKey string

// AuthSubjectContextKey is the context key for the authenticated subject.
const AuthSubjectContextKey contextKey = "auth_subject"

// Middleware authenticates requests according to the configured mode and
// places the resulting AuthSubject in the request context.
type Middleware struct {
	mode          AuthMode
	authenticator Authenticator
	auditLogger   *audit.Logger
}

// NewMiddleware creates the authentication middleware. The authenticator
// may be nil only for AuthModeNone.
func NewMiddleware(mode AuthMode, authenticator Authenticator, auditLogger *audit.Logger) (*Middleware, error) {
	if mode != AuthModeNone && authenticator == nil {
		return nil, errors.New("authenticator is required for mode " + mode.String())
	}
	return &Middleware{
		mode:          mode,
		authenticator: authenticator,
		auditLogger:   auditLogger,
	}, nil
}

// Mode returns the configured authentication mode.
func (m *Middleware) Mode() AuthMode {
	return m.mode
}

// Authenticate is a chi-compatible middleware that validates credentials
// and injects the AuthSubject into the request context. In none mode an
// anonymous admin subject is injected so downstream authorization still
// has a subject to evaluate.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.mode == AuthModeNone {
			subject := &AuthSubject{
				ID:         "anonymous",
				Username:   "anonymous",
				Roles:      []string{"admin"},
				AuthMethod: AuthModeNone,
			}
			next.ServeHTTP(w, r.WithContext(ContextWithSubject(r.Context(), subject)))
			return
		}

		subject, err := m.authenticator.Authenticate(r.Context(), r)
		if err != nil {
			m.handleAuthError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithSubject(r.Context(), subject)))
	})
}

func (m *Middleware) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	message := "authentication required"
	switch {
	case errors.Is(err, ErrNoCredentials):
		// Default message
	case errors.Is(err, ErrExpiredCredentials):
		message = "credentials expired"
	case errors.Is(err, ErrAuthenticatorUnavailable):
		logging.Error().Err(err).Msg("Authenticator unavailable")
		writeAuthError(w, http.StatusServiceUnavailable, "authentication service unavailable")
		return
	default:
		message = "invalid credentials"
	}

	if m.auditLogger != nil && !errors.Is(err, ErrNoCredentials) {
		m.auditLogger.LogAuthFailure(r.Context(), "", "", audit.SourceFromRequest(r), message)
	}

	logging.Debug().Err(err).Str("path", r.URL.Path).Msg("Authentication failed")
	writeAuthError(w, http.StatusUnauthorized, message)
}

// ContextWithSubject returns a context carrying the AuthSubject.
func ContextWithSubject(ctx context.Context, subject *AuthSubject) context.Context {
	return context.WithValue(ctx, AuthSubjectContextKey, subject)
}

// GetAuthSubject returns the AuthSubject from the context, or nil.
func GetAuthSubject(ctx context.Context) *AuthSubject {
	subject, _ := ctx.Value(AuthSubjectContextKey).(*AuthSubject)
	return subject
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // Best-effort error response
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
