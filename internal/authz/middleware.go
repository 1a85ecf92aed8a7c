// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package authz

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/ushadow-io/ushadow/internal/audit"
	"github.com/ushadow-io/ushadow/internal/auth"
	"github.com/ushadow-io/ushadow/internal/logging"
)

// Middleware enforces role-based authorization for API routes. It must
// run after authentication.
type Middleware struct {
	enforcer    *Enforcer
	auditLogger *audit.Logger
}

// NewMiddleware creates the authorization middleware. The audit logger
// may be nil.
func NewMiddleware(enforcer *Enforcer, auditLogger *audit.Logger) *Middleware {
	return &Middleware{
		enforcer:    enforcer,
		auditLogger: auditLogger,
	}
}

// Require returns chi middleware enforcing the given object/action pair.
// The action is derived from the HTTP method when empty.
func (m *Middleware) Require(object, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := auth.GetAuthSubject(r.Context())
			if subject == nil {
				writeAuthzError(w, http.StatusForbidden, "no authentication context")
				return
			}

			act := action
			if act == "" {
				act = MethodToAction(r.Method)
			}

			// Groups participate in role resolution alongside roles
			allRoles := make([]string, 0, len(subject.Roles)+len(subject.Groups))
			allRoles = append(allRoles, subject.Roles...)
			allRoles = append(allRoles, subject.Groups...)

			allowed, err := m.enforcer.EnforceWithRoles(subject.ID, allRoles, object, act)
			if err != nil {
				logging.Error().Err(err).Msg("Authorization error")
				writeAuthzError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			if !allowed {
				if m.auditLogger != nil {
					m.auditLogger.LogAuthzDenied(r.Context(),
						audit.ActorFromUser(subject.ID, subject.Username, subject.Roles, subject.AuthMethod.String(), subject.SessionID),
						audit.SourceFromRequest(r), object, act)
				}
				logging.Debug().
					Str("user", subject.Username).
					Str("object", object).
					Str("action", act).
					Msg("Authorization denied")
				writeAuthzError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// MethodToAction maps HTTP methods to policy actions.
func MethodToAction(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return "read"
	default:
		return "write"
	}
}

func writeAuthzError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // Best-effort error response
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
