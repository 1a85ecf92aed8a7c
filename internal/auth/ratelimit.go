// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LoginLimiter throttles login attempts per client IP to slow credential
// brute-forcing. It is separate from the general API rate limit so that
// failed logins can be restricted far more aggressively.
type LoginLimiter struct {
	limiters  map[string]*loginLimiterEntry
	mu        sync.Mutex
	rate      rate.Limit
	burst     int
	stopClean chan struct{}
}

type loginLimiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewLoginLimiter allows burst attempts immediately, then refills one
// attempt per window.
func NewLoginLimiter(burst int, window time.Duration) *LoginLimiter {
	if burst <= 0 {
		burst = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	ll := &LoginLimiter{
		limiters:  make(map[string]*loginLimiterEntry),
		rate:      rate.Every(window),
		burst:     burst,
		stopClean: make(chan struct{}),
	}
	go ll.startCleanup(10 * time.Minute)
	return ll
}

// Allow reports whether a login attempt from the given IP may proceed.
func (ll *LoginLimiter) Allow(ip string) bool {
	ll.mu.Lock()
	entry, ok := ll.limiters[ip]
	if !ok {
		entry = &loginLimiterEntry{
			limiter: rate.NewLimiter(ll.rate, ll.burst),
		}
		ll.limiters[ip] = entry
	}
	entry.lastAccess = time.Now()
	limiter := entry.limiter
	ll.mu.Unlock()

	return limiter.Allow()
}

// Stop terminates the background cleanup goroutine.
func (ll *LoginLimiter) Stop() {
	close(ll.stopClean)
}

func (ll *LoginLimiter) startCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ll.cleanup()
		case <-ll.stopClean:
			return
		}
	}
}

// cleanup drops limiters idle for over an hour so the map cannot grow
// unbounded under IP churn.
func (ll *LoginLimiter) cleanup() {
	ll.mu.Lock()
	defer ll.mu.Unlock()

	threshold := time.Now().Add(-1 * time.Hour)
	for ip, entry := range ll.limiters {
		if entry.lastAccess.Before(threshold) {
			delete(ll.limiters, ip)
		}
	}
}
