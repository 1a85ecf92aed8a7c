// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/ushadow-io/ushadow/internal/api"
	"github.com/ushadow-io/ushadow/internal/config"
	"github.com/ushadow-io/ushadow/internal/instance"
	"github.com/ushadow-io/ushadow/internal/memory"
	"github.com/ushadow-io/ushadow/internal/provider"
	"github.com/ushadow-io/ushadow/internal/registry"
	"github.com/ushadow-io/ushadow/internal/relay"
	"github.com/ushadow-io/ushadow/internal/share"
	"github.com/ushadow-io/ushadow/internal/store"
	"github.com/ushadow-io/ushadow/internal/unode"
)

// newTestClient spins up a real server over in-memory managers and returns
// a client pointed at it.
func newTestClient(t *testing.T) *Client {
	t.Helper()

	db, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	reg, err := registry.New(db, nil, nil, config.RegistryConfig{DefaultTTL: 30 * time.Second})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	enc, err := config.NewCredentialEncryptor("client-test-secret-at-least-32-chars!")
	if err != nil {
		t.Fatalf("new encryptor: %v", err)
	}
	providers, err := provider.New(db, enc, nil, nil, config.ProvidersConfig{})
	if err != nil {
		t.Fatalf("new provider manager: %v", err)
	}
	nodes, err := unode.New(db, nil, nil, nil, config.UNodeConfig{})
	if err != nil {
		t.Fatalf("new unode manager: %v", err)
	}
	instances, err := instance.New(db, nil, nil)
	if err != nil {
		t.Fatalf("new instance manager: %v", err)
	}
	sources, err := memory.New(db)
	if err != nil {
		t.Fatalf("new memory manager: %v", err)
	}
	settings, err := config.NewManager(filepath.Join(t.TempDir(), "settings.json"))
	if err != nil {
		t.Fatalf("new settings manager: %v", err)
	}
	hub := relay.NewHub(config.RelayConfig{}, nil)

	h := &api.Handlers{
		Config: &config.Config{
			API: config.APIConfig{RateLimitDisabled: true},
		},
		Registry:     reg,
		Providers:    providers,
		Shares:       share.NewService(db, nil, nil, config.ShareConfig{}),
		Nodes:        nodes,
		Instances:    instances,
		Memory:       sources,
		Settings:     settings,
		RelayHub:     hub,
		RelayHandler: relay.NewHandler(hub),
	}

	srv := httptest.NewServer(api.NewRouter(h))
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestServiceRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	svc, err := c.RegisterService(ctx, ServiceRegistration{
		Name: "chat-ui",
		Kind: "frontend",
		URL:  "http://100.64.0.6:3000",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if svc.ID == "" || svc.Health != "healthy" {
		t.Fatalf("unexpected service %+v", svc)
	}

	services, err := c.ListServices(ctx, "frontend", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(services) != 1 {
		t.Fatalf("len = %d, want 1", len(services))
	}

	if _, err := c.HeartbeatService(ctx, svc.ID); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if err := c.DeregisterService(ctx, svc.ID); err != nil {
		t.Fatalf("deregister: %v", err)
	}

	_, err = c.GetService(ctx, svc.ID)
	if !IsNotFound(err) {
		t.Fatalf("get after deregister = %v, want not found", err)
	}
}

func TestShareFlow(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	created, err := c.CreateShare(ctx, ShareRequest{
		ResourceType: "conversation",
		ResourceID:   "conv-7",
		Capabilities: []string{"view"},
		MaxViews:     2,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Token == "" {
		t.Fatal("expected one-time plaintext token")
	}

	grant, err := c.RedeemShare(ctx, created.Token, "")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if grant.ResourceID != "conv-7" || grant.RemainingViews != 1 {
		t.Fatalf("unexpected grant %+v", grant)
	}

	if _, err := c.RevokeShare(ctx, created.Share.ID, "test over"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := c.RedeemShare(ctx, created.Token, ""); !IsNotFound(err) {
		t.Fatalf("redeem after revoke = %v, want not found", err)
	}
}

func TestProviderDefaultFlow(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	p, err := c.ConfigureProvider(ctx, ProviderInput{
		Type:    "llm",
		Name:    "ollama",
		BaseURL: "http://localhost:11434",
		Enabled: true,
		Default: true,
	})
	if err != nil {
		t.Fatalf("configure: %v", err)
	}

	def, err := c.DefaultProvider(ctx, "llm")
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if def.ID != p.ID {
		t.Fatalf("default = %s, want %s", def.ID, p.ID)
	}

	if _, err := c.DefaultProvider(ctx, "audio"); !IsNotFound(err) {
		t.Fatalf("missing default = %v, want not found", err)
	}
}

func TestInstanceTemplates(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	templates, err := c.ListTemplates(ctx)
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	if len(templates) == 0 {
		t.Fatal("expected built-in templates")
	}

	inst, err := c.CreateInstance(ctx, InstanceRequest{
		TemplateID: "notion",
		Config: map[string]string{
			"api_token":    "tok",
			"root_page_id": "pg",
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if inst.Status != "created" {
		t.Errorf("status = %q, want created", inst.Status)
	}

	if err := c.DeleteInstance(ctx, inst.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestMemoryToolAggregation(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	src, err := c.RegisterMemorySource(ctx, MemorySourceRegistration{
		Name:       "notes",
		Endpoint:   "http://100.64.0.4:8500",
		ToolSchema: json.RawMessage(`{"name":"search_notes"}`),
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	tools, err := c.MemoryTools(ctx)
	if err != nil {
		t.Fatalf("tools: %v", err)
	}
	if len(tools) != 1 || tools[0].SourceID != src.ID {
		t.Fatalf("unexpected tools %+v", tools)
	}

	if _, err := c.SetMemorySourceEnabled(ctx, src.ID, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	tools, err = c.MemoryTools(ctx)
	if err != nil {
		t.Fatalf("tools: %v", err)
	}
	if len(tools) != 0 {
		t.Fatalf("tools after disable = %d, want 0", len(tools))
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if err := c.SetSetting(ctx, "wake_word", "hey ushadow"); err != nil {
		t.Fatalf("set: %v", err)
	}

	settings, err := c.Settings(ctx)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if settings["wake_word"] != "hey ushadow" {
		t.Fatalf("wake_word = %v", settings["wake_word"])
	}

	if err := c.UnsetSetting(ctx, "wake_word"); err != nil {
		t.Fatalf("unset: %v", err)
	}
}

func TestValidationErrorSurfaces(t *testing.T) {
	c := newTestClient(t)

	_, err := c.RegisterService(context.Background(), ServiceRegistration{Name: "no-url"})
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestBearerTokenSent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{},"metadata":{"timestamp":"2026-01-01T00:00:00Z"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithToken("tok-123"))
	if _, err := c.Health(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	if got != "Bearer tok-123" {
		t.Fatalf("authorization = %q", got)
	}
}
