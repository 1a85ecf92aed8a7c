// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package store

import (
	"context"
	"time"

	"github.com/ushadow-io/ushadow/internal/logging"
)

// GC runs Badger value-log garbage collection on an interval. Badger only
// reclaims space when asked; the supervisor keeps this running for the life
// of the process.
type GC struct {
	db       *DB
	interval time.Duration
}

// NewGC creates a garbage collection service. Interval defaults to 10
// minutes.
func NewGC(db *DB, interval time.Duration) *GC {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &GC{db: db, interval: interval}
}

// Serve implements suture.Service.
func (g *GC) Serve(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := g.db.RunGC(); err != nil {
				logging.Warn().Err(err).Msg("Badger GC failed")
			}
		}
	}
}

func (g *GC) String() string { return "store-gc" }
