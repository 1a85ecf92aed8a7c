// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zitadel/oidc/v3/pkg/client/rp"
	"github.com/zitadel/oidc/v3/pkg/oidc"

	"github.com/ushadow-io/ushadow/internal/config"
	"github.com/ushadow-io/ushadow/internal/logging"
)

// KeycloakRelyingParty wraps the certified zitadel/oidc relying party
// configured against a Keycloak realm. Construction performs OIDC
// discovery against the realm issuer.
type KeycloakRelyingParty struct {
	rp           rp.RelyingParty
	rolesClaim   string
	defaultRoles []string
}

// NewKeycloakRelyingParty creates the relying party. The context bounds
// the discovery request.
func NewKeycloakRelyingParty(ctx context.Context, cfg config.KeycloakConfig) (*KeycloakRelyingParty, error) {
	issuer := cfg.Issuer()
	if issuer == "" {
		return nil, fmt.Errorf("keycloak issuer is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("keycloak client_id is required")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "profile", "email"}
	}
	hasOpenID := false
	for _, scope := range scopes {
		if scope == "openid" {
			hasOpenID = true
			break
		}
	}
	if !hasOpenID {
		return nil, fmt.Errorf("keycloak scopes must include 'openid'")
	}

	options := []rp.Option{
		rp.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	}
	if cfg.PKCEEnabled {
		options = append(options, rp.WithPKCE(nil))
	}

	relyingParty, err := rp.NewRelyingPartyOIDC(ctx,
		issuer,
		cfg.ClientID,
		cfg.ClientSecret,
		cfg.RedirectURL,
		scopes,
		options...,
	)
	if err != nil {
		return nil, fmt.Errorf("create relying party: %w", err)
	}

	rolesClaim := cfg.RolesClaim
	if rolesClaim == "" {
		rolesClaim = "realm_access.roles"
	}
	defaultRoles := cfg.DefaultRoles
	if len(defaultRoles) == 0 {
		defaultRoles = []string{"viewer"}
	}

	return &KeycloakRelyingParty{
		rp:           relyingParty,
		rolesClaim:   rolesClaim,
		defaultRoles: defaultRoles,
	}, nil
}

// RelyingParty returns the underlying zitadel relying party.
func (k *KeycloakRelyingParty) RelyingParty() rp.RelyingParty {
	return k.rp
}

// Issuer returns the discovered issuer URL.
func (k *KeycloakRelyingParty) Issuer() string {
	return k.rp.Issuer()
}

// EndSessionEndpoint returns the realm's logout endpoint, if advertised.
func (k *KeycloakRelyingParty) EndSessionEndpoint() string {
	return k.rp.GetEndSessionEndpoint()
}

// KeycloakAuthenticator validates Keycloak-issued ID tokens presented as
// bearer tokens.
type KeycloakAuthenticator struct {
	rp *KeycloakRelyingParty
}

// NewKeycloakAuthenticator creates an authenticator over the relying party.
func NewKeycloakAuthenticator(relyingParty *KeycloakRelyingParty) *KeycloakAuthenticator {
	return &KeycloakAuthenticator{rp: relyingParty}
}

// Authenticate verifies the bearer token against the realm's JWKS. The
// verifier checks signature, issuer, audience, expiry, and algorithm.
func (a *KeycloakAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*AuthSubject, error) {
	tokenStr := extractBearerToken(r)
	if tokenStr == "" {
		return nil, ErrNoCredentials
	}

	verifier := a.rp.rp.IDTokenVerifier()
	if verifier == nil {
		return nil, fmt.Errorf("%w: verifier not initialized", ErrAuthenticatorUnavailable)
	}

	claims, err := rp.VerifyIDToken[*oidc.IDTokenClaims](ctx, tokenStr, verifier)
	if err != nil {
		return nil, mapVerificationError(err)
	}

	subject := SubjectFromIDTokenClaims(claims, a.rp.rolesClaim, a.rp.defaultRoles)

	logging.Debug().
		Str("user", subject.Username).
		Str("issuer", subject.Issuer).
		Int("roles", len(subject.Roles)).
		Msg("Keycloak authentication successful")

	return subject, nil
}

// Name returns the authenticator's name for logging.
func (a *KeycloakAuthenticator) Name() string {
	return string(AuthModeKeycloak)
}

// SubjectFromIDTokenClaims maps verified OIDC claims onto an AuthSubject.
// Roles come from the configured roles claim, which may be a dotted path
// into nested claims such as Keycloak's "realm_access.roles".
func SubjectFromIDTokenClaims(claims *oidc.IDTokenClaims, rolesClaim string, defaultRoles []string) *AuthSubject {
	if claims == nil {
		return nil
	}

	subject := &AuthSubject{
		ID:            claims.Subject,
		Email:         claims.Email,
		EmailVerified: bool(claims.EmailVerified),
		Issuer:        claims.Issuer,
		AuthMethod:    AuthModeKeycloak,
	}

	if !claims.IssuedAt.AsTime().IsZero() {
		subject.IssuedAt = claims.IssuedAt.AsTime().Unix()
	}
	if !claims.Expiration.AsTime().IsZero() {
		subject.ExpiresAt = claims.Expiration.AsTime().Unix()
	}

	subject.Username = firstNonEmpty(claims.PreferredUsername, claims.Name, claims.Email, claims.Subject)

	subject.Roles = extractClaimPath(claims.Claims, rolesClaim)
	if len(subject.Roles) == 0 && len(defaultRoles) > 0 {
		subject.Roles = make([]string, len(defaultRoles))
		copy(subject.Roles, defaultRoles)
	}

	subject.Groups = extractClaimPath(claims.Claims, "groups")

	if claims.Claims != nil {
		subject.RawClaims = claims.Claims
	}

	return subject
}

// extractClaimPath extracts a string slice from raw claims, following
// dotted path segments through nested maps.
func extractClaimPath(claims map[string]interface{}, path string) []string {
	if claims == nil || path == "" {
		return nil
	}

	current := interface{}(claims)
	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current, ok = m[segment]
		if !ok {
			return nil
		}
	}

	switch v := current.(type) {
	case []string:
		result := make([]string, len(v))
		copy(result, v)
		return result
	case []interface{}:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		if len(result) == 0 {
			return nil
		}
		return result
	case string:
		return []string{v}
	default:
		return nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// mapVerificationError maps zitadel verification errors onto the
// package's error types.
func mapVerificationError(err error) error {
	if err == nil {
		return nil
	}

	errStr := err.Error()

	if strings.Contains(errStr, "expired") {
		return ErrExpiredCredentials
	}
	if strings.Contains(errStr, "issuer") {
		logging.Warn().Err(err).Msg("Token issuer mismatch")
		return fmt.Errorf("%w: issuer mismatch", ErrInvalidCredentials)
	}
	if strings.Contains(errStr, "audience") {
		logging.Warn().Err(err).Msg("Token audience mismatch")
		return fmt.Errorf("%w: audience mismatch", ErrInvalidCredentials)
	}

	logging.Debug().Err(err).Msg("Token validation failed")
	return fmt.Errorf("%w: %s", ErrInvalidCredentials, err.Error())
}
