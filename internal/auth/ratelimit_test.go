// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package auth

import (
	"testing"
	"time"
)

func TestLoginLimiterBurst(t *testing.T) {
	ll := NewLoginLimiter(3, time.Hour)
	defer ll.Stop()

	for i := 0; i < 3; i++ {
		if !ll.Allow("10.0.0.1") {
			t.Fatalf("attempt %d should be allowed within burst", i+1)
		}
	}
	if ll.Allow("10.0.0.1") {
		t.Error("attempt beyond burst should be denied")
	}
}

func TestLoginLimiterPerIP(t *testing.T) {
	ll := NewLoginLimiter(1, time.Hour)
	defer ll.Stop()

	if !ll.Allow("10.0.0.1") {
		t.Fatal("first attempt from first IP should be allowed")
	}
	if !ll.Allow("10.0.0.2") {
		t.Error("first attempt from second IP should be allowed")
	}
	if ll.Allow("10.0.0.1") {
		t.Error("second attempt from exhausted IP should be denied")
	}
}

func TestLoginLimiterDefaults(t *testing.T) {
	ll := NewLoginLimiter(0, 0)
	defer ll.Stop()

	for i := 0; i < 5; i++ {
		if !ll.Allow("10.0.0.9") {
			t.Fatalf("attempt %d should be allowed with default burst", i+1)
		}
	}
	if ll.Allow("10.0.0.9") {
		t.Error("sixth attempt should exceed default burst")
	}
}

func TestLoginLimiterCleanup(t *testing.T) {
	ll := NewLoginLimiter(1, time.Hour)
	defer ll.Stop()

	ll.Allow("10.0.0.1")
	ll.mu.Lock()
	ll.limiters["10.0.0.1"].lastAccess = time.Now().Add(-2 * time.Hour)
	ll.mu.Unlock()

	ll.cleanup()

	ll.mu.Lock()
	_, ok := ll.limiters["10.0.0.1"]
	ll.mu.Unlock()
	if ok {
		t.Error("stale entry should have been removed")
	}
}
