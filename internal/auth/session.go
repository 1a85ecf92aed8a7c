// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/goccy/go-json"

	"github.com/ushadow-io/ushadow/internal/logging"
	"github.com/ushadow-io/ushadow/internal/store"
)

// Session-related errors
var (
	// ErrSessionNotFound is returned when a session is not in the store.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when accessing an expired session.
	ErrSessionExpired = errors.New("session expired")
)

// Session represents an authenticated user session, created after a
// successful login and used to track state across requests.
type Session struct {
	// ID is the unique session identifier (opaque token).
	ID string `json:"id"`

	// UserID is the authenticated user's unique identifier.
	UserID string `json:"user_id"`

	// Username is the authenticated user's username.
	Username string `json:"username"`

	// Email is the authenticated user's email address.
	Email string `json:"email,omitempty"`

	// Roles are the user's roles for authorization.
	Roles []string `json:"roles,omitempty"`

	// Groups are the user's group memberships.
	Groups []string `json:"groups,omitempty"`

	// AuthMethod is the authentication mode that created this session.
	AuthMethod AuthMode `json:"auth_method"`

	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is when the session expires.
	ExpiresAt time.Time `json:"expires_at"`

	// LastAccessedAt is when the session was last accessed.
	LastAccessedAt time.Time `json:"last_accessed_at"`

	// Metadata holds additional session data such as provider tokens.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// ToAuthSubject converts the session to an AuthSubject.
func (s *Session) ToAuthSubject() *AuthSubject {
	return &AuthSubject{
		ID:         s.UserID,
		Username:   s.Username,
		Email:      s.Email,
		Roles:      s.Roles,
		Groups:     s.Groups,
		AuthMethod: s.AuthMethod,
		SessionID:  s.ID,
		ExpiresAt:  s.ExpiresAt.Unix(),
		Metadata:   s.Metadata,
	}
}

// NewSession creates a session from an AuthSubject with the given duration.
func NewSession(subject *AuthSubject, duration time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:             generateSessionID(),
		UserID:         subject.ID,
		Username:       subject.Username,
		Email:          subject.Email,
		Roles:          subject.Roles,
		Groups:         subject.Groups,
		AuthMethod:     subject.AuthMethod,
		CreatedAt:      now,
		ExpiresAt:      now.Add(duration),
		LastAccessedAt: now,
		Metadata:       subject.Metadata,
	}
}

// generateSessionID generates a cryptographically secure session ID.
func generateSessionID() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return hex.EncodeToString([]byte(time.Now().String()))
	}
	return hex.EncodeToString(bytes)
}

// SessionStore defines the interface for session storage backends.
type SessionStore interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// Get retrieves a session by ID. Returns ErrSessionNotFound if
	// missing, ErrSessionExpired if past expiry.
	Get(ctx context.Context, id string) (*Session, error)

	// Delete removes a session by ID.
	Delete(ctx context.Context, id string) error

	// DeleteByUserID removes all sessions for a user and returns how
	// many were deleted.
	DeleteByUserID(ctx context.Context, userID string) (int, error)

	// Touch updates the session's last access time and expiry.
	Touch(ctx context.Context, id string, newExpiry time.Time) error

	// CleanupExpired removes all expired sessions and returns how many
	// were removed.
	CleanupExpired(ctx context.Context) (int, error)
}

// BadgerSessionStore persists sessions in the embedded key-value store
// so logins survive restarts.
type BadgerSessionStore struct {
	bucket *store.Bucket
}

// NewBadgerSessionStore creates a session store over the given database.
func NewBadgerSessionStore(db *store.DB) *BadgerSessionStore {
	return &BadgerSessionStore{bucket: db.Bucket("sessions")}
}

// Create stores a new session.
func (s *BadgerSessionStore) Create(ctx context.Context, session *Session) error {
	if session == nil || session.ID == "" {
		return errors.New("session ID is required")
	}
	return s.bucket.Put(session.ID, session)
}

// Get retrieves a session by ID.
func (s *BadgerSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	var session Session
	if err := s.bucket.Get(id, &session); err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	if session.IsExpired() {
		// Expired sessions are removed lazily
		if err := s.bucket.Delete(id); err != nil {
			logging.Debug().Err(err).Str("session_id", logging.RedactToken(id)).Msg("Failed to delete expired session")
		}
		return nil, ErrSessionExpired
	}

	return &session, nil
}

// Delete removes a session by ID.
func (s *BadgerSessionStore) Delete(ctx context.Context, id string) error {
	return s.bucket.Delete(id)
}

// DeleteByUserID removes all sessions for a user.
func (s *BadgerSessionStore) DeleteByUserID(ctx context.Context, userID string) (int, error) {
	var ids []string
	err := s.bucket.ForEach(func(key string, value []byte) error {
		var session Session
		if err := json.Unmarshal(value, &session); err != nil {
			return nil // Skip corrupt entries
		}
		if session.UserID == userID {
			ids = append(ids, key)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, id := range ids {
		if err := s.bucket.Delete(id); err == nil {
			deleted++
		}
	}
	return deleted, nil
}

// Touch updates the session's last access time and expiry.
func (s *BadgerSessionStore) Touch(ctx context.Context, id string, newExpiry time.Time) error {
	return s.bucket.Mutate(id, func(current []byte) ([]byte, error) {
		var session Session
		if err := json.Unmarshal(current, &session); err != nil {
			return nil, err
		}
		session.LastAccessedAt = time.Now()
		session.ExpiresAt = newExpiry
		return json.Marshal(&session)
	})
}

// CleanupExpired removes all expired sessions.
func (s *BadgerSessionStore) CleanupExpired(ctx context.Context) (int, error) {
	var expired []string
	err := s.bucket.ForEach(func(key string, value []byte) error {
		var session Session
		if err := json.Unmarshal(value, &session); err != nil {
			expired = append(expired, key)
			return nil
		}
		if session.IsExpired() {
			expired = append(expired, key)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range expired {
		if err := s.bucket.Delete(id); err == nil {
			removed++
		}
	}

	if removed > 0 {
		logging.Debug().Int("count", removed).Msg("Cleaned up expired sessions")
	}
	return removed, nil
}

// StartCleanupRoutine periodically removes expired sessions until the
// context is canceled.
func (s *BadgerSessionStore) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.CleanupExpired(ctx); err != nil {
					logging.Error().Err(err).Msg("Session cleanup error")
				}
			}
		}
	}()
}
