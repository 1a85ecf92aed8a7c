// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

// Package auth provides authentication for the API: Keycloak OIDC bearer
// tokens, locally issued JWTs, and a disabled mode for development.
package auth

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// AuthMode represents the authentication strategy.
type AuthMode string

const (
	// AuthModeNone disables authentication. Development only.
	AuthModeNone AuthMode = "none"

	// AuthModeJWT uses locally issued JWT bearer tokens.
	AuthModeJWT AuthMode = "jwt"

	// AuthModeKeycloak validates Keycloak-issued OIDC ID tokens.
	AuthModeKeycloak AuthMode = "keycloak"
)

// ParseAuthMode converts a string to AuthMode.
func ParseAuthMode(s string) (AuthMode, error) {
	switch s {
	case "none", "":
		return AuthModeNone, nil
	case "jwt":
		return AuthModeJWT, nil
	case "keycloak":
		return AuthModeKeycloak, nil
	default:
		return "", errors.New("invalid auth mode: " + s)
	}
}

// String returns the string representation of AuthMode.
func (m AuthMode) String() string {
	return string(m)
}

// Standard authentication errors
var (
	// ErrNoCredentials indicates no credentials were provided.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrInvalidCredentials indicates credentials were invalid.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrExpiredCredentials indicates credentials have expired.
	ErrExpiredCredentials = errors.New("credentials expired")

	// ErrAuthenticatorUnavailable indicates the auth provider is unreachable.
	ErrAuthenticatorUnavailable = errors.New("authenticator unavailable")
)

// Authenticator defines the interface for authentication providers.
type Authenticator interface {
	// Authenticate extracts and validates credentials from the request.
	Authenticate(ctx context.Context, r *http.Request) (*AuthSubject, error)

	// Name returns the authenticator's name for logging.
	Name() string
}

// AuthSubject represents an authenticated user or entity. It normalizes
// claims from the different auth sources.
type AuthSubject struct {
	// ID is the unique identifier: the 'sub' claim for Keycloak, the
	// username for local JWTs.
	ID string `json:"id"`

	// Username is the human-readable username.
	Username string `json:"username"`

	// Email is the subject's email address, if available.
	Email string `json:"email,omitempty"`

	// EmailVerified indicates if the email has been verified.
	EmailVerified bool `json:"email_verified,omitempty"`

	// Roles are the subject's roles, consumed by the authorizer.
	Roles []string `json:"roles,omitempty"`

	// Groups contains group memberships from the OIDC 'groups' claim.
	Groups []string `json:"groups,omitempty"`

	// Issuer identifies the auth source: the OIDC 'iss' claim, or
	// "local" for JWT mode.
	Issuer string `json:"issuer,omitempty"`

	// AuthMethod indicates how the subject was authenticated.
	AuthMethod AuthMode `json:"auth_method"`

	// IssuedAt is when the authentication token was issued (unix).
	IssuedAt int64 `json:"issued_at,omitempty"`

	// ExpiresAt is when the authentication expires (unix).
	ExpiresAt int64 `json:"expires_at,omitempty"`

	// SessionID is the session identifier, if a session backs this subject.
	SessionID string `json:"session_id,omitempty"`

	// RawClaims contains the original claims. Not serialized.
	RawClaims map[string]interface{} `json:"-"`

	// Metadata holds additional key-value data for the session.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// HasRole checks if the subject has a specific role.
func (s *AuthSubject) HasRole(role string) bool {
	if role == "" {
		return false
	}
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsExpired checks if the authentication has expired.
func (s *AuthSubject) IsExpired() bool {
	if s.ExpiresAt == 0 {
		return false
	}
	return time.Now().Unix() > s.ExpiresAt
}
