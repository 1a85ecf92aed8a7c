// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package logging

import "strings"

// RedactToken masks a credential, showing only the first and last 4
// characters. Share tokens, session IDs, and provider API keys must
// never appear whole in log output.
//
//	"ush_a1b2c3d4_longsecretvalue" -> "ush_...alue"
func RedactToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// RedactEmail masks the local part of an email address.
//
//	"alice@example.com" -> "al***@example.com"
func RedactEmail(email string) string {
	if email == "" {
		return ""
	}

	at := strings.Index(email, "@")
	if at <= 0 {
		return "***"
	}

	local, domain := email[:at], email[at:]
	if len(local) <= 2 {
		return "***" + domain
	}
	return local[:2] + "***" + domain
}

// sensitiveKeys are field names whose values are always redacted.
var sensitiveKeys = map[string]bool{
	"api_key":       true,
	"apikey":        true,
	"access_token":  true,
	"refresh_token": true,
	"id_token":      true,
	"token":         true,
	"password":      true,
	"secret":        true,
	"client_secret": true,
	"authorization": true,
	"cookie":        true,
	"session_id":    true,
}

// RedactValue redacts a value when its key names a credential. Used when
// logging provider configuration and settings maps.
func RedactValue(key, value string) string {
	if sensitiveKeys[strings.ToLower(key)] {
		return RedactToken(value)
	}
	if strings.Contains(value, "@") && strings.Contains(value, ".") {
		return RedactEmail(value)
	}
	return value
}
