// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// validAuthModes are the accepted auth.mode values.
var validAuthModes = map[string]bool{
	"keycloak": true,
	"jwt":      true,
	"none":     true,
}

// Validate checks the configuration for consistency. It is called by
// Load after all layers are merged.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateAuth(); err != nil {
		return err
	}
	if err := c.validateRelay(); err != nil {
		return err
	}
	if err := c.validateRegistry(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	return c.validateShare()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %v", c.Server.Timeout)
	}
	if c.Server.BaseURL != "" {
		if _, err := url.ParseRequestURI(c.Server.BaseURL); err != nil {
			return fmt.Errorf("server.base_url is not a valid URL: %w", err)
		}
	}
	env := c.Server.Environment
	if env != "development" && env != "production" {
		return fmt.Errorf("server.environment must be development or production, got %q", env)
	}
	return nil
}

func (c *Config) validateAuth() error {
	mode := strings.ToLower(c.Auth.Mode)
	if !validAuthModes[mode] {
		return fmt.Errorf("auth.mode must be keycloak, jwt, or none, got %q", c.Auth.Mode)
	}

	if c.Auth.AdminPassword != "" && len(c.Auth.AdminPassword) < 8 {
		return fmt.Errorf("auth.admin_password must be at least 8 characters")
	}

	switch mode {
	case "jwt":
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret is required when auth.mode is jwt")
		}
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("auth.jwt_secret must be at least 32 characters, got %d", len(c.Auth.JWTSecret))
		}
		if c.Auth.AdminUsername == "" || c.Auth.AdminPassword == "" {
			return fmt.Errorf("auth.admin_username and auth.admin_password are required when auth.mode is jwt")
		}
	case "keycloak":
		kc := c.Auth.Keycloak
		if kc.Issuer() == "" {
			return fmt.Errorf("auth.keycloak.url and auth.keycloak.realm (or auth.keycloak.issuer_url) are required when auth.mode is keycloak")
		}
		if kc.ClientID == "" {
			return fmt.Errorf("auth.keycloak.client_id is required when auth.mode is keycloak")
		}
	case "none":
		if c.Server.Environment == "production" {
			return fmt.Errorf("auth.mode none is not allowed when server.environment is production")
		}
	}

	if c.Auth.SessionTimeout <= 0 {
		return fmt.Errorf("auth.session_timeout must be positive, got %v", c.Auth.SessionTimeout)
	}
	return nil
}

func (c *Config) validateRelay() error {
	if c.Relay.MaxListeners < 1 {
		return fmt.Errorf("relay.max_listeners must be at least 1, got %d", c.Relay.MaxListeners)
	}
	if c.Relay.MaxFrameBytes < 1024 {
		return fmt.Errorf("relay.max_frame_bytes must be at least 1024, got %d", c.Relay.MaxFrameBytes)
	}
	if c.Relay.SendBuffer < 1 {
		return fmt.Errorf("relay.send_buffer must be at least 1, got %d", c.Relay.SendBuffer)
	}
	if c.Relay.BreakerFailures < 1 {
		return fmt.Errorf("relay.breaker_failures must be at least 1, got %d", c.Relay.BreakerFailures)
	}
	return nil
}

func (c *Config) validateRegistry() error {
	if c.Registry.DefaultTTL <= 0 {
		return fmt.Errorf("registry.default_ttl must be positive, got %v", c.Registry.DefaultTTL)
	}
	if c.Registry.MonitorInterval <= 0 {
		return fmt.Errorf("registry.monitor_interval must be positive, got %v", c.Registry.MonitorInterval)
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.API.DefaultPageSize < 1 {
		return fmt.Errorf("api.default_page_size must be at least 1, got %d", c.API.DefaultPageSize)
	}
	if c.API.MaxPageSize < c.API.DefaultPageSize {
		return fmt.Errorf("api.max_page_size (%d) must not be below api.default_page_size (%d)",
			c.API.MaxPageSize, c.API.DefaultPageSize)
	}
	if !c.API.RateLimitDisabled && c.API.RateLimitReqs < 1 {
		return fmt.Errorf("api.rate_limit_reqs must be at least 1 when rate limiting is enabled, got %d", c.API.RateLimitReqs)
	}
	return nil
}

func (c *Config) validateShare() error {
	if c.Share.DefaultExpiry <= 0 {
		return fmt.Errorf("share.default_expiry must be positive, got %v", c.Share.DefaultExpiry)
	}
	if c.Share.MaxExpiry != 0 && c.Share.MaxExpiry < c.Share.DefaultExpiry {
		return fmt.Errorf("share.max_expiry (%v) must not be below share.default_expiry (%v)",
			c.Share.MaxExpiry, c.Share.DefaultExpiry)
	}
	return nil
}
