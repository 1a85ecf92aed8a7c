// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package instance

import (
	"context"
	"errors"
	"testing"

	"github.com/ushadow-io/ushadow/internal/store"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	db, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m, err := New(db, nil, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestListTemplatesCatalog(t *testing.T) {
	m := newTestManager(t)

	templates := m.ListTemplates()
	want := []string{"chat", "hey-ushadow", "notion", "whisper"}
	if len(templates) != len(want) {
		t.Fatalf("catalog size = %d, want %d", len(templates), len(want))
	}
	for i, id := range want {
		if templates[i].ID != id {
			t.Errorf("templates[%d] = %s, want %s", i, templates[i].ID, id)
		}
	}
}

func TestCreateValidatesRequiredFields(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		templateID string
		config     map[string]string
		wantErr    error
	}{
		{
			name:       "unknown template",
			templateID: "nope",
			wantErr:    ErrTemplateNotFound,
		},
		{
			name:       "notion missing token",
			templateID: "notion",
			config:     map[string]string{"root_page_id": "abc123"},
			wantErr:    ErrMissingField,
		},
		{
			name:       "notion complete",
			templateID: "notion",
			config:     map[string]string{"api_token": "secret", "root_page_id": "abc123"},
		},
		{
			name:       "whisper defaults satisfy required model",
			templateID: "whisper",
			config:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := m.Create(ctx, tt.templateID, "", tt.config)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if inst.Status != StatusCreated {
				t.Errorf("status = %s, want created", inst.Status)
			}
		})
	}
}

func TestCreateAppliesDefaults(t *testing.T) {
	m := newTestManager(t)

	inst, err := m.Create(context.Background(), "whisper", "transcriber", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if inst.Config["model"] != "base.en" {
		t.Errorf("model = %q, want default base.en", inst.Config["model"])
	}
	if inst.Config["language"] != "en" {
		t.Errorf("language = %q, want default en", inst.Config["language"])
	}
}

func TestCreateDefaultsNameFromTemplate(t *testing.T) {
	m := newTestManager(t)

	inst, err := m.Create(context.Background(), "chat", "", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if inst.Name != "Chat UI" {
		t.Errorf("name = %q, want template name", inst.Name)
	}
}

func TestGetAndDelete(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	inst, err := m.Create(ctx, "chat", "my-chat", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := m.Get(inst.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "my-chat" {
		t.Errorf("name = %q", got.Name)
	}

	if err := m.Delete(ctx, inst.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.Get(inst.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete = %v, want ErrNotFound", err)
	}
}

func TestStartConfigOnlyTemplate(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	inst, err := m.Create(ctx, "notion", "", map[string]string{
		"api_token":    "secret",
		"root_page_id": "abc123",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := m.Start(ctx, inst.ID); !errors.Is(err, ErrNotRunnable) {
		t.Errorf("start = %v, want ErrNotRunnable", err)
	}
}

func TestStartRequiresDocker(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	inst, err := m.Create(ctx, "chat", "", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.Start(ctx, inst.ID); !errors.Is(err, ErrNoDocker) {
		t.Errorf("start = %v, want ErrNoDocker", err)
	}
}

func TestInstancesPersistAcrossReopen(t *testing.T) {
	db, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m, err := New(db, nil, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	inst, err := m.Create(context.Background(), "whisper", "transcriber", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	reloaded, err := New(db, nil, nil)
	if err != nil {
		t.Fatalf("reload manager: %v", err)
	}
	got, err := reloaded.Get(inst.ID)
	if err != nil {
		t.Fatalf("get after reload: %v", err)
	}
	if got.TemplateID != "whisper" || got.Config["model"] != "base.en" {
		t.Errorf("reloaded instance = %+v", got)
	}
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"api_token", "API_TOKEN"},
		{"relay-stream", "RELAY_STREAM"},
		{"sync.interval", "SYNC_INTERVAL"},
		{"MODEL", "MODEL"},
	}
	for _, tt := range tests {
		if got := envKey(tt.in); got != tt.want {
			t.Errorf("envKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
