// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package share

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ushadow-io/ushadow/internal/audit"
	"github.com/ushadow-io/ushadow/internal/config"
	"github.com/ushadow-io/ushadow/internal/eventbus"
	"github.com/ushadow-io/ushadow/internal/logging"
	"github.com/ushadow-io/ushadow/internal/metrics"
	"github.com/ushadow-io/ushadow/internal/store"
)

const (
	sharesBucket = "shares"

	// tokenPrefix marks every ushadow share token.
	tokenPrefix = "ush_"

	// secretLength is the random secret size in bytes before encoding.
	secretLength = 24

	// prefixDisplayLength is how many characters after the scheme prefix
	// are kept for display.
	prefixDisplayLength = 8

	// bcryptCost matches the cost used for admin passwords.
	bcryptCost = 12
)

// Service manages share tokens.
type Service struct {
	bucket *store.Bucket
	bus    *eventbus.Bus
	audit  *audit.Logger

	defaultExpiry time.Duration
	maxExpiry     time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// NewService creates the share service.
func NewService(db *store.DB, bus *eventbus.Bus, auditLogger *audit.Logger, cfg config.ShareConfig) *Service {
	return &Service{
		bucket:        db.Bucket(sharesBucket),
		bus:           bus,
		audit:         auditLogger,
		defaultExpiry: cfg.DefaultExpiry,
		maxExpiry:     cfg.MaxExpiry,
		now:           time.Now,
	}
}

// Create mints a share token. The returned string is the only time the
// plaintext token exists outside the caller; storage keeps a bcrypt hash.
func (s *Service) Create(ctx context.Context, req *CreateRequest, actor audit.Actor, source audit.Source) (*ShareToken, string, error) {
	if req == nil || req.ResourceType == "" || req.ResourceID == "" {
		return nil, "", fmt.Errorf("%w: resource_type and resource_id are required", ErrInvalidRequest)
	}
	if len(req.Capabilities) == 0 {
		return nil, "", fmt.Errorf("%w: at least one capability is required", ErrInvalidRequest)
	}
	if req.MaxViews < 0 {
		return nil, "", fmt.Errorf("%w: max_views cannot be negative", ErrInvalidRequest)
	}

	now := s.now()
	expiresAt, err := s.resolveExpiry(req, now)
	if err != nil {
		return nil, "", err
	}

	id := uuid.NewString()

	secretBytes := make([]byte, secretLength)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, "", fmt.Errorf("generate share secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)
	plaintext := tokenPrefix + id + "_" + secret

	hash, err := hashToken(plaintext)
	if err != nil {
		return nil, "", fmt.Errorf("hash share token: %w", err)
	}

	token := ShareToken{
		ID:           id,
		TokenPrefix:  plaintext[:len(tokenPrefix)+prefixDisplayLength],
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Capabilities: append([]string(nil), req.Capabilities...),
		CreatedBy:    actor.ID,
		CreatedAt:    now,
		ExpiresAt:    expiresAt,
		MaxViews:     req.MaxViews,
	}

	rec := record{ShareToken: token, TokenHash: hash}
	if err := s.bucket.Put(id, &rec); err != nil {
		return nil, "", fmt.Errorf("persist share token: %w", err)
	}

	metrics.ShareTokensCreated.Inc()
	s.updateActiveGauge()
	s.publish(eventbus.TopicShareCreated, &token)
	if s.audit != nil {
		s.audit.LogShareCreated(ctx, actor, source, token.ID, token.ResourceType, token.ResourceID)
	}

	logging.Info().
		Str("token_id", token.ID).
		Str("resource_type", token.ResourceType).
		Str("resource_id", token.ResourceID).
		Int("max_views", token.MaxViews).
		Msg("Share token created")

	return &token, plaintext, nil
}

func (s *Service) resolveExpiry(req *CreateRequest, now time.Time) (*time.Time, error) {
	var expiry time.Duration
	switch {
	case req.ExpiresAt != nil:
		if req.ExpiresAt.Before(now) {
			return nil, fmt.Errorf("%w: expires_at is in the past", ErrInvalidRequest)
		}
		expiry = req.ExpiresAt.Sub(now)
	case req.ExpiresIn > 0:
		expiry = req.ExpiresIn
	case req.NoExpiry:
		return nil, nil
	default:
		expiry = s.defaultExpiry
	}

	if expiry <= 0 {
		return nil, nil
	}
	if s.maxExpiry > 0 && expiry > s.maxExpiry {
		expiry = s.maxExpiry
	}
	at := now.Add(expiry)
	return &at, nil
}

// Get returns a token record by ID. The hash never leaves the package.
func (s *Service) Get(id string) (*ShareToken, error) {
	rec, err := s.get(id)
	if err != nil {
		return nil, err
	}
	token := rec.ShareToken
	return &token, nil
}

func (s *Service) get(id string) (*record, error) {
	var rec record
	if err := s.bucket.Get(id, &rec); err != nil {
		if err == store.ErrKeyNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load share token: %w", err)
	}
	rec.ShareToken.TokenHash = ""
	return &rec, nil
}

// List returns all tokens, newest first. An empty creator matches all.
func (s *Service) List(creator string) ([]*ShareToken, error) {
	var out []*ShareToken
	err := s.bucket.ForEach(func(key string, value []byte) error {
		var rec record
		if err := json.Unmarshal(value, &rec); err != nil {
			logging.Warn().Str("key", key).Err(err).Msg("Dropping corrupt share record")
			return nil
		}
		if creator != "" && rec.CreatedBy != creator {
			return nil
		}
		token := rec.ShareToken
		token.TokenHash = ""
		out = append(out, &token)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list share tokens: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Revoke marks a token revoked. Revoking an already revoked token is an
// error so audit trails show one revocation per token.
func (s *Service) Revoke(ctx context.Context, id, reason string, actor audit.Actor, source audit.Source) (*ShareToken, error) {
	now := s.now()

	var revoked ShareToken
	err := s.bucket.Mutate(id, func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, ErrNotFound
		}
		var rec record
		if err := json.Unmarshal(current, &rec); err != nil {
			return nil, fmt.Errorf("decode share token: %w", err)
		}
		if rec.Revoked() {
			return nil, ErrRevoked
		}
		rec.RevokedAt = &now
		rec.RevokeReason = reason
		revoked = rec.ShareToken
		revoked.TokenHash = ""
		return json.Marshal(&rec)
	})
	if err != nil {
		if err == store.ErrKeyNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}

	s.updateActiveGauge()
	s.publish(eventbus.TopicShareRevoked, &revoked)
	if s.audit != nil {
		s.audit.LogShareRevoked(ctx, actor, source, revoked.ID)
	}

	logging.Info().
		Str("token_id", revoked.ID).
		Str("reason", reason).
		Msg("Share token revoked")

	return &revoked, nil
}

// Redeem validates a plaintext token against a requested capability and, on
// success, consumes one view. Check order: existence and hash, revocation,
// expiry, capability, then view accounting. A denial at any step never
// increments the view count.
func (s *Service) Redeem(ctx context.Context, plaintext, capability string, source audit.Source) (*Grant, error) {
	id, ok := parseToken(plaintext)
	if !ok {
		return nil, s.deny(ctx, "", source, "not_found", ErrNotFound)
	}

	rec, err := s.get(id)
	if err != nil {
		if err == ErrNotFound {
			return nil, s.deny(ctx, id, source, "not_found", ErrNotFound)
		}
		return nil, err
	}

	sha := sha256.Sum256([]byte(plaintext))
	if bcrypt.CompareHashAndPassword([]byte(rec.TokenHash), sha[:]) != nil {
		return nil, s.deny(ctx, id, source, "not_found", ErrNotFound)
	}

	now := s.now()
	switch {
	case rec.Revoked():
		return nil, s.deny(ctx, id, source, "revoked", ErrRevoked)
	case rec.Expired(now):
		return nil, s.deny(ctx, id, source, "expired", ErrExpired)
	case !rec.HasCapability(capability):
		return nil, s.deny(ctx, id, source, "capability", ErrCapability)
	}

	// Consume a view atomically, re-checking the deny conditions against
	// the stored state in case a revoke or concurrent redeem raced us.
	var granted ShareToken
	err = s.bucket.Mutate(id, func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, ErrNotFound
		}
		var cur record
		if err := json.Unmarshal(current, &cur); err != nil {
			return nil, fmt.Errorf("decode share token: %w", err)
		}
		switch {
		case cur.Revoked():
			return nil, ErrRevoked
		case cur.Expired(now):
			return nil, ErrExpired
		case cur.MaxViews > 0 && cur.ViewCount >= cur.MaxViews:
			return nil, ErrViewsExhausted
		}
		cur.ViewCount++
		granted = cur.ShareToken
		granted.TokenHash = ""
		return json.Marshal(&cur)
	})
	if err != nil {
		switch err {
		case ErrRevoked:
			return nil, s.deny(ctx, id, source, "revoked", ErrRevoked)
		case ErrExpired:
			return nil, s.deny(ctx, id, source, "expired", ErrExpired)
		case ErrViewsExhausted:
			return nil, s.deny(ctx, id, source, "views_exhausted", ErrViewsExhausted)
		case store.ErrKeyNotFound, ErrNotFound:
			return nil, s.deny(ctx, id, source, "not_found", ErrNotFound)
		}
		return nil, err
	}

	metrics.RecordShareRedemption("granted")
	s.publish(eventbus.TopicShareRedeemed, &granted)
	if s.audit != nil {
		s.audit.LogShareRedemption(ctx, granted.ID, source, "granted")
	}

	remaining := -1
	if granted.MaxViews > 0 {
		remaining = granted.MaxViews - granted.ViewCount
	}
	return &Grant{
		TokenID:        granted.ID,
		ResourceType:   granted.ResourceType,
		ResourceID:     granted.ResourceID,
		Capabilities:   granted.Capabilities,
		ExpiresAt:      granted.ExpiresAt,
		RemainingViews: remaining,
	}, nil
}

// deny records a redemption denial and returns its sentinel.
func (s *Service) deny(ctx context.Context, tokenID string, source audit.Source, reason string, sentinel error) error {
	metrics.RecordShareRedemption(reason)
	if s.audit != nil {
		s.audit.LogShareRedemption(ctx, tokenID, source, reason)
	}
	return sentinel
}

func (s *Service) publish(topic string, token *ShareToken) {
	if s.bus == nil {
		return
	}
	evt := map[string]string{
		"id":            token.ID,
		"resource_type": token.ResourceType,
		"resource_id":   token.ResourceID,
	}
	if err := s.bus.Publish(topic, evt); err != nil {
		logging.Warn().Str("topic", topic).Err(err).Msg("Failed to publish share event")
	}
}

func (s *Service) updateActiveGauge() {
	now := s.now()
	active := 0
	err := s.bucket.ForEach(func(key string, value []byte) error {
		var rec record
		if err := json.Unmarshal(value, &rec); err != nil {
			return nil
		}
		if !rec.Revoked() && !rec.Expired(now) {
			active++
		}
		return nil
	})
	if err != nil {
		return
	}
	metrics.ShareActiveTokens.Set(float64(active))
}

// parseToken splits "ush_<id>_<secret>" and returns the embedded token ID.
func parseToken(plaintext string) (string, bool) {
	rest, ok := strings.CutPrefix(plaintext, tokenPrefix)
	if !ok {
		return "", false
	}
	id, secret, ok := strings.Cut(rest, "_")
	if !ok || id == "" || secret == "" {
		return "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

// hashToken is bcrypt over sha256 of the plaintext; the digest keeps the
// input under bcrypt's 72-byte limit.
func hashToken(plaintext string) (string, error) {
	sha := sha256.Sum256([]byte(plaintext))
	hash, err := bcrypt.GenerateFromPassword(sha[:], bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
