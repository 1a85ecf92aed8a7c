// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package auth

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// AdminCredentials validates the configured admin username and password
// for JWT-mode logins. The password is stored as a bcrypt hash only.
type AdminCredentials struct {
	username     string
	passwordHash []byte
}

// NewAdminCredentials creates credentials from the configured username
// and plaintext password. The plaintext is hashed immediately and not
// retained.
func NewAdminCredentials(username, password string) (*AdminCredentials, error) {
	if username == "" {
		return nil, fmt.Errorf("admin username is required")
	}
	if password == "" {
		return nil, fmt.Errorf("admin password is required")
	}

	// Cost 12 balances security and login latency
	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	return &AdminCredentials{
		username:     username,
		passwordHash: hash,
	}, nil
}

// Verify checks a username/password pair. Comparison is timing-safe:
// the username uses constant-time compare and bcrypt is timing-safe by
// design.
func (c *AdminCredentials) Verify(username, password string) bool {
	usernameMatch := subtle.ConstantTimeCompare([]byte(c.username), []byte(username)) == 1
	passwordErr := bcrypt.CompareHashAndPassword(c.passwordHash, []byte(password))
	return usernameMatch && passwordErr == nil
}

// Username returns the configured admin username.
func (c *AdminCredentials) Username() string {
	return c.username
}
