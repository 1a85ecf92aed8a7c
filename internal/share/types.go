// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

// Package share implements capability-scoped share tokens: expirable,
// view-limited, revocable grants to a single resource. The plaintext token
// is returned exactly once at creation; only a bcrypt hash is stored.
package share

import (
	"errors"
	"time"
)

// Redemption denial reasons, from most to least authoritative. Revocation
// beats expiry, expiry beats view accounting; a capability mismatch never
// consumes a view.
var (
	ErrNotFound       = errors.New("share token not found")
	ErrRevoked        = errors.New("share token revoked")
	ErrExpired        = errors.New("share token expired")
	ErrCapability     = errors.New("capability not granted by share token")
	ErrViewsExhausted = errors.New("share token view limit reached")

	// ErrInvalidRequest is returned when a create request is malformed.
	ErrInvalidRequest = errors.New("invalid share request")
)

// ShareToken is the stored record of a share. TokenHash is
// bcrypt(sha256(plaintext)); TokenPrefix is the display prefix shown in
// listings so a creator can recognize a token without recovering it.
type ShareToken struct {
	ID           string     `json:"id"`
	TokenPrefix  string     `json:"token_prefix"`
	TokenHash    string     `json:"-"`
	ResourceType string     `json:"resource_type"`
	ResourceID   string     `json:"resource_id"`
	Capabilities []string   `json:"capabilities"`
	CreatedBy    string     `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	MaxViews     int        `json:"max_views"`
	ViewCount    int        `json:"view_count"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	RevokeReason string     `json:"revoke_reason,omitempty"`
}

// Revoked reports whether the token has been revoked.
func (t *ShareToken) Revoked() bool { return t.RevokedAt != nil }

// Expired reports whether the token is past its expiry at the given time.
// A nil ExpiresAt never expires.
func (t *ShareToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

// HasCapability reports whether the capability is in the token's set.
// Matching is exact-string.
func (t *ShareToken) HasCapability(capability string) bool {
	for _, c := range t.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// record is the persisted form; it carries the hash the public struct hides.
type record struct {
	ShareToken
	TokenHash string `json:"token_hash"`
}

// CreateRequest describes a new share.
type CreateRequest struct {
	ResourceType string     `json:"resource_type" validate:"required"`
	ResourceID   string     `json:"resource_id" validate:"required"`
	Capabilities []string   `json:"capabilities" validate:"required,min=1"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	// ExpiresIn is an alternative to ExpiresAt; ExpiresAt wins when both
	// are set. Zero means the configured default expiry.
	ExpiresIn time.Duration `json:"expires_in,omitempty"`
	// MaxViews caps redemptions. Zero means unlimited.
	MaxViews int `json:"max_views"`
	// NoExpiry creates a token that never expires, overriding the default.
	NoExpiry bool `json:"no_expiry,omitempty"`
}

// Grant is a successful redemption.
type Grant struct {
	TokenID        string     `json:"token_id"`
	ResourceType   string     `json:"resource_type"`
	ResourceID     string     `json:"resource_id"`
	Capabilities   []string   `json:"capabilities"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	RemainingViews int        `json:"remaining_views"` // -1 when unlimited
}
