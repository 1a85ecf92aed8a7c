// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGCServeStopsOnCancel(t *testing.T) {
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	defer db.Close()

	gc := NewGC(db, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- gc.Serve(ctx) }()

	// Let a few GC passes run before stopping.
	time.Sleep(25 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}

func TestGCDefaults(t *testing.T) {
	gc := NewGC(nil, 0)
	if gc.interval != 10*time.Minute {
		t.Errorf("interval = %v, want 10m", gc.interval)
	}
	if gc.String() != "store-gc" {
		t.Errorf("String() = %q, want store-gc", gc.String())
	}
}
