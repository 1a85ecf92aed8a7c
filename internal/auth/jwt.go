// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ushadow-io/ushadow/internal/config"
)

// Claims represents locally issued JWT claims.
type Claims struct {
	Username  string `json:"username"`
	Role      string `json:"role"`
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// JWTManager creates and validates locally issued JWT tokens signed with
// HMAC-SHA256.
type JWTManager struct {
	secret  []byte
	timeout time.Duration
}

// NewJWTManager creates a JWT token manager. The secret must be set; the
// config validator enforces a 32-character minimum.
func NewJWTManager(cfg config.AuthConfig) (*JWTManager, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required but was empty")
	}

	timeout := cfg.SessionTimeout
	if timeout <= 0 {
		timeout = 24 * time.Hour
	}

	return &JWTManager{
		secret:  []byte(cfg.JWTSecret),
		timeout: timeout,
	}, nil
}

// GenerateToken creates a signed token for an authenticated user, valid
// for the configured session timeout.
func (m *JWTManager) GenerateToken(username, role string) (string, error) {
	return m.GenerateSessionToken(username, role, "")
}

// GenerateSessionToken creates a signed token bound to a server-side
// session. Tokens carrying a session ID become invalid once the session
// is deleted, which is how logout revokes them.
func (m *JWTManager) GenerateSessionToken(username, role, sessionID string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Username:  username,
		Role:      role,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.timeout)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, nil
}

// ValidateToken validates a token and extracts its claims. The signing
// method is pinned to HMAC to prevent algorithm confusion.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

// AuthSubjectFromClaims creates an AuthSubject from validated JWT claims.
func AuthSubjectFromClaims(claims *Claims) *AuthSubject {
	if claims == nil {
		return nil
	}

	subject := &AuthSubject{
		ID:         claims.Username,
		Username:   claims.Username,
		AuthMethod: AuthModeJWT,
		Issuer:     "local",
		SessionID:  claims.SessionID,
	}

	if claims.Role != "" {
		subject.Roles = []string{claims.Role}
	}
	if claims.ExpiresAt != nil {
		subject.ExpiresAt = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		subject.IssuedAt = claims.IssuedAt.Unix()
	}

	return subject
}

// JWTAuthenticator authenticates requests carrying locally issued JWTs.
type JWTAuthenticator struct {
	manager  *JWTManager
	sessions SessionStore
}

// NewJWTAuthenticator creates an authenticator backed by the given manager.
func NewJWTAuthenticator(manager *JWTManager) *JWTAuthenticator {
	return &JWTAuthenticator{manager: manager}
}

// NewJWTAuthenticatorWithSessions creates an authenticator that also
// checks tokens against the session store, so logged-out sessions are
// rejected before token expiry.
func NewJWTAuthenticatorWithSessions(manager *JWTManager, sessions SessionStore) *JWTAuthenticator {
	return &JWTAuthenticator{manager: manager, sessions: sessions}
}

// Authenticate validates the bearer token from the Authorization header.
func (a *JWTAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*AuthSubject, error) {
	tokenStr := extractBearerToken(r)
	if tokenStr == "" {
		return nil, ErrNoCredentials
	}

	claims, err := a.manager.ValidateToken(tokenStr)
	if err != nil {
		if strings.Contains(err.Error(), "expired") {
			return nil, ErrExpiredCredentials
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, err.Error())
	}

	if a.sessions != nil && claims.SessionID != "" {
		if _, err := a.sessions.Get(ctx, claims.SessionID); err != nil {
			if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionExpired) {
				return nil, ErrExpiredCredentials
			}
			return nil, fmt.Errorf("session lookup: %w", err)
		}
	}

	return AuthSubjectFromClaims(claims), nil
}

// Name returns the authenticator's name for logging.
func (a *JWTAuthenticator) Name() string {
	return string(AuthModeJWT)
}

// extractBearerToken returns the bearer token from the Authorization
// header, or an empty string.
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
