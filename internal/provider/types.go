// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

// Package provider manages the configurable LLM, audio, and memory
// providers the assistant routes work to. Providers are persisted in
// badger with encrypted API keys; at most one provider per category is
// the default.
package provider

import (
	"errors"
	"time"
)

// Type is a provider category.
type Type string

const (
	TypeLLM    Type = "llm"
	TypeAudio  Type = "audio"
	TypeMemory Type = "memory"
)

// ParseType validates a category string.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeLLM, TypeAudio, TypeMemory:
		return Type(s), nil
	default:
		return "", ErrUnknownType
	}
}

var (
	// ErrNotFound is returned when no provider matches the given ID.
	ErrNotFound = errors.New("provider not found")

	// ErrUnknownType is returned for categories other than llm, audio,
	// or memory.
	ErrUnknownType = errors.New("unknown provider type")

	// ErrInvalidProvider is returned when a configuration is missing
	// required fields.
	ErrInvalidProvider = errors.New("invalid provider configuration")

	// ErrDisabled is returned when an operation requires an enabled
	// provider.
	ErrDisabled = errors.New("provider is disabled")
)

// Provider is a configured backend the assistant can route to.
//
// APIKeyRef holds the AES-GCM encrypted API key, never the plaintext; the
// plaintext is accepted on Configure and decrypted only for validation
// probes and provider calls.
type Provider struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Name      string    `json:"name"`
	BaseURL   string    `json:"base_url"`
	APIKeyRef string    `json:"api_key_ref,omitempty"`
	Model     string    `json:"model,omitempty"`
	Enabled   bool      `json:"enabled"`
	Default   bool      `json:"default"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasAPIKey reports whether an API key is configured.
func (p *Provider) HasAPIKey() bool { return p.APIKeyRef != "" }

// Input is a Configure request. An empty APIKey keeps the stored key.
type Input struct {
	Type    Type   `json:"type"`
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key,omitempty"`
	Model   string `json:"model,omitempty"`
	Enabled bool   `json:"enabled"`
	Default bool   `json:"default"`
}

// ValidationResult is the outcome of a provider probe.
type ValidationResult struct {
	Reachable  bool     `json:"reachable"`
	StatusCode int      `json:"status_code,omitempty"`
	LatencyMS  int64    `json:"latency_ms"`
	Models     []string `json:"models,omitempty"`
	Error      string   `json:"error,omitempty"`
}
