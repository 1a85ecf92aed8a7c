// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ushadow-io/ushadow/internal/logging"
)

// tickService counts Serve invocations and blocks until cancelled.
type tickService struct {
	name   string
	serves atomic.Int32
}

func (s *tickService) Serve(ctx context.Context) error {
	s.serves.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func (s *tickService) String() string { return s.name }

func TestTreeRunsServicesInAllLayers(t *testing.T) {
	tree := NewTree(logging.NewSlogLogger(), DefaultTreeConfig())

	data := &tickService{name: "data-svc"}
	core := &tickService{name: "core-svc"}
	api := &tickService{name: "api-svc"}
	tree.AddDataService(data)
	tree.AddCoreService(core)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if data.serves.Load() > 0 && core.serves.Load() > 0 && api.serves.Load() > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("tree returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("tree did not stop after cancel")
	}

	for _, svc := range []*tickService{data, core, api} {
		if svc.serves.Load() == 0 {
			t.Errorf("service %s never ran", svc.name)
		}
	}
}

func TestTreeRestartsCrashedService(t *testing.T) {
	cfg := DefaultTreeConfig()
	cfg.FailureBackoff = 10 * time.Millisecond
	tree := NewTree(logging.NewSlogLogger(), cfg)

	crashes := &crashingService{}
	tree.AddCoreService(crashes)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tree.ServeBackground(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if crashes.serves.Load() >= 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("service restarted %d times, want >= 2", crashes.serves.Load())
}

type crashingService struct {
	serves atomic.Int32
}

func (s *crashingService) Serve(ctx context.Context) error {
	if s.serves.Add(1) <= 2 {
		return errors.New("transient failure")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *crashingService) String() string { return "crashing-svc" }

func TestDefaultTreeConfig(t *testing.T) {
	cfg := DefaultTreeConfig()
	if cfg.FailureThreshold != 5.0 || cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}
