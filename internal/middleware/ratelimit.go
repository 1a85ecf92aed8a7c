// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/ushadow-io/ushadow/internal/logging"
	"github.com/ushadow-io/ushadow/internal/metrics"
)

// RateLimit limits each client IP to requestLimit requests per window.
// Hits are counted per endpoint before the 429 is written.
func RateLimit(requestLimit int, window time.Duration) func(http.Handler) http.Handler {
	if requestLimit <= 0 {
		requestLimit = 100
	}
	if window <= 0 {
		window = time.Minute
	}

	return httprate.Limit(
		requestLimit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			metrics.APIRateLimitHits.WithLabelValues(r.URL.Path).Inc()
			logging.Warn().
				Str("path", r.URL.Path).
				Str("remote", r.RemoteAddr).
				Msg("Rate limit exceeded")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		}),
	)
}
