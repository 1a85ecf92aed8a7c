// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"

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

// envelope mirrors Response with raw data for per-test decoding.
type envelope struct {
	Status   string          `json:"status"`
	Data     json.RawMessage `json:"data"`
	Metadata Metadata        `json:"metadata"`
	Error    *APIError       `json:"error"`
}

func newTestServer(t *testing.T) *httptest.Server {
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

	enc, err := config.NewCredentialEncryptor("router-test-secret-at-least-32-chars")
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

	h := &Handlers{
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

	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body interface{}) (*http.Response, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp, env
}

func TestReadinessEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/readyz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestLivenessEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, env := doJSON(t, http.MethodGet, srv.URL+"/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if env.Status != "success" {
		t.Fatalf("envelope status = %q, want success", env.Status)
	}
}

func TestHealthReportsComponents(t *testing.T) {
	srv := newTestServer(t)

	resp, env := doJSON(t, http.MethodGet, srv.URL+"/api/v1/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var report HealthReport
	if err := json.Unmarshal(env.Data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Status != "ok" {
		t.Errorf("overall status = %q, want ok", report.Status)
	}
	if _, ok := report.Components["registry"]; !ok {
		t.Error("expected registry component in health report")
	}
}

func TestServiceLifecycle(t *testing.T) {
	srv := newTestServer(t)

	resp, env := doJSON(t, http.MethodPost, srv.URL+"/api/v1/services", map[string]interface{}{
		"name": "transcriber",
		"kind": "backend",
		"url":  "http://100.64.0.5:9090",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, want 201", resp.StatusCode)
	}

	var svc registry.Service
	if err := json.Unmarshal(env.Data, &svc); err != nil {
		t.Fatalf("decode service: %v", err)
	}
	if svc.ID == "" {
		t.Fatal("expected assigned service ID")
	}
	if svc.Health != registry.HealthHealthy {
		t.Errorf("health = %q, want healthy", svc.Health)
	}

	resp, env = doJSON(t, http.MethodGet, srv.URL+"/api/v1/services", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d, want 200", resp.StatusCode)
	}
	if env.Metadata.Total == nil || *env.Metadata.Total != 1 {
		t.Fatalf("list total = %v, want 1", env.Metadata.Total)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/services/"+svc.ID+"/heartbeat", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("heartbeat status = %d, want 200", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/services/"+svc.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deregister status = %d, want 200", resp.StatusCode)
	}

	resp, env = doJSON(t, http.MethodGet, srv.URL+"/api/v1/services/"+svc.ID, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after deregister status = %d, want 404", resp.StatusCode)
	}
	if env.Error == nil || env.Error.Code != CodeNotFound {
		t.Fatalf("error = %+v, want code %s", env.Error, CodeNotFound)
	}
}

func TestServiceValidationErrors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing name", map[string]interface{}{"url": "http://x.local"}},
		{"missing url", map[string]interface{}{"name": "svc"}},
		{"bad url", map[string]interface{}{"name": "svc", "url": "not-a-url"}},
		{"bad kind", map[string]interface{}{"name": "svc", "url": "http://x.local", "kind": "database"}},
		{"ttl too low", map[string]interface{}{"name": "svc", "url": "http://x.local", "ttl_secs": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, env := doJSON(t, http.MethodPost, srv.URL+"/api/v1/services", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			if env.Error == nil || env.Error.Code != CodeValidation {
				t.Fatalf("error = %+v, want code %s", env.Error, CodeValidation)
			}
		})
	}
}

func TestUnknownFieldsRejected(t *testing.T) {
	srv := newTestServer(t)

	resp, env := doJSON(t, http.MethodPost, srv.URL+"/api/v1/services", map[string]interface{}{
		"name": "svc", "url": "http://x.local", "bogus": true,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if env.Error == nil || env.Error.Code != CodeValidation {
		t.Fatalf("error = %+v, want code %s", env.Error, CodeValidation)
	}
}

func TestShareCreateRedeemRevoke(t *testing.T) {
	srv := newTestServer(t)

	resp, env := doJSON(t, http.MethodPost, srv.URL+"/api/v1/shares", map[string]interface{}{
		"resource_type": "conversation",
		"resource_id":   "conv-42",
		"capabilities":  []string{"view"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}

	var created createShareResponse
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode share: %v", err)
	}
	if created.Token == "" {
		t.Fatal("expected plaintext token in create response")
	}
	if created.Share.TokenHash != "" {
		t.Error("token hash must not be serialized")
	}

	resp, env = doJSON(t, http.MethodGet, srv.URL+"/api/v1/shared/"+created.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("redeem status = %d, want 200", resp.StatusCode)
	}
	var grant share.Grant
	if err := json.Unmarshal(env.Data, &grant); err != nil {
		t.Fatalf("decode grant: %v", err)
	}
	if grant.ResourceID != "conv-42" {
		t.Errorf("grant resource = %q, want conv-42", grant.ResourceID)
	}

	// Capability not granted is a distinct 403.
	resp, env = doJSON(t, http.MethodGet, srv.URL+"/api/v1/shared/"+created.Token+"?capability=edit", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("capability mismatch status = %d, want 403", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/shares/"+created.Share.ID+"/revoke",
		map[string]interface{}{"reason": "no longer needed"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("revoke status = %d, want 200", resp.StatusCode)
	}

	// Revoked and unknown tokens are indistinguishable to a redeemer.
	resp, env = doJSON(t, http.MethodGet, srv.URL+"/api/v1/shared/"+created.Token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("redeem after revoke status = %d, want 404", resp.StatusCode)
	}
	resp, env2 := doJSON(t, http.MethodGet, srv.URL+"/api/v1/shared/ush_doesnotexist", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("redeem unknown status = %d, want 404", resp.StatusCode)
	}
	if env.Error.Message != env2.Error.Message {
		t.Errorf("denial messages differ: %q vs %q", env.Error.Message, env2.Error.Message)
	}
}

func TestProviderConfigureAndDefault(t *testing.T) {
	srv := newTestServer(t)

	resp, env := doJSON(t, http.MethodPost, srv.URL+"/api/v1/providers", map[string]interface{}{
		"type":     "llm",
		"name":     "local-ollama",
		"base_url": "http://localhost:11434",
		"model":    "llama3",
		"enabled":  true,
		"default":  true,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("configure status = %d, want 200", resp.StatusCode)
	}

	var p provider.Provider
	if err := json.Unmarshal(env.Data, &p); err != nil {
		t.Fatalf("decode provider: %v", err)
	}
	if !p.Default {
		t.Error("expected provider to be default")
	}

	resp, env = doJSON(t, http.MethodGet, srv.URL+"/api/v1/providers/defaults/llm", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("default status = %d, want 200", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/providers/defaults/audio", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing default status = %d, want 404", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/providers/defaults/gpu", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad type status = %d, want 400", resp.StatusCode)
	}
}

func TestNodeLifecycle(t *testing.T) {
	srv := newTestServer(t)

	resp, env := doJSON(t, http.MethodPost, srv.URL+"/api/v1/nodes", map[string]interface{}{
		"name":         "living-room",
		"hostname":     "living-room.local",
		"tailscale_ip": "100.64.0.9",
		"roles":        []string{"audio"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, want 201", resp.StatusCode)
	}

	var node unode.Node
	if err := json.Unmarshal(env.Data, &node); err != nil {
		t.Fatalf("decode node: %v", err)
	}
	if node.Status != unode.StatusOnline {
		t.Errorf("status = %q, want online", node.Status)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/nodes/"+node.ID+"/heartbeat", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("heartbeat status = %d, want 200", resp.StatusCode)
	}

	// No docker client wired: deployments are unavailable, not errors.
	resp, env = doJSON(t, http.MethodPost, srv.URL+"/api/v1/nodes/"+node.ID+"/deploy",
		map[string]interface{}{"image": "ghcr.io/ushadow-io/whisper:latest"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("deploy status = %d, want 503", resp.StatusCode)
	}
	if env.Error == nil || env.Error.Code != CodeUnavailable {
		t.Fatalf("error = %+v, want code %s", env.Error, CodeUnavailable)
	}

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/nodes/"+node.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("remove status = %d, want 200", resp.StatusCode)
	}
}

func TestInstanceTemplatesAndCreate(t *testing.T) {
	srv := newTestServer(t)

	resp, env := doJSON(t, http.MethodGet, srv.URL+"/api/v1/templates", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("templates status = %d, want 200", resp.StatusCode)
	}
	var templates []instance.Template
	if err := json.Unmarshal(env.Data, &templates); err != nil {
		t.Fatalf("decode templates: %v", err)
	}
	if len(templates) == 0 {
		t.Fatal("expected built-in templates")
	}

	resp, env = doJSON(t, http.MethodPost, srv.URL+"/api/v1/instances", map[string]interface{}{
		"template_id": "notion",
		"config": map[string]string{
			"api_token":    "secret",
			"root_page_id": "abc123",
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var inst instance.Instance
	if err := json.Unmarshal(env.Data, &inst); err != nil {
		t.Fatalf("decode instance: %v", err)
	}

	// Config-only template: starting is a conflict, not a server error.
	resp, env = doJSON(t, http.MethodPost, srv.URL+"/api/v1/instances/"+inst.ID+"/start", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("start status = %d, want 409", resp.StatusCode)
	}
	if env.Error == nil || env.Error.Code != CodeConflict {
		t.Fatalf("error = %+v, want code %s", env.Error, CodeConflict)
	}

	resp, env = doJSON(t, http.MethodPost, srv.URL+"/api/v1/instances", map[string]interface{}{
		"template_id": "notion",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("create without required config status = %d, want 400", resp.StatusCode)
	}
}

func TestMemorySourcesAndTools(t *testing.T) {
	srv := newTestServer(t)

	schema := json.RawMessage(`{"name":"search_notes","parameters":{"type":"object"}}`)
	resp, env := doJSON(t, http.MethodPost, srv.URL+"/api/v1/memory/sources", map[string]interface{}{
		"name":        "notes",
		"endpoint":    "http://100.64.0.4:8500",
		"tool_schema": schema,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, want 201", resp.StatusCode)
	}
	var src memory.Source
	if err := json.Unmarshal(env.Data, &src); err != nil {
		t.Fatalf("decode source: %v", err)
	}

	resp, env = doJSON(t, http.MethodGet, srv.URL+"/api/v1/memory/tools", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("tools status = %d, want 200", resp.StatusCode)
	}
	var tools []memory.SourceTools
	if err := json.Unmarshal(env.Data, &tools); err != nil {
		t.Fatalf("decode tools: %v", err)
	}
	if len(tools) != 1 {
		t.Fatalf("tools = %d, want 1", len(tools))
	}

	// Disabling removes the source from the aggregated tool set.
	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/api/v1/memory/sources/"+src.ID+"/enabled",
		map[string]interface{}{"enabled": false})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("disable status = %d, want 200", resp.StatusCode)
	}
	_, env = doJSON(t, http.MethodGet, srv.URL+"/api/v1/memory/tools", nil)
	tools = nil
	if err := json.Unmarshal(env.Data, &tools); err != nil {
		t.Fatalf("decode tools: %v", err)
	}
	if len(tools) != 0 {
		t.Fatalf("tools after disable = %d, want 0", len(tools))
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPut, srv.URL+"/api/v1/settings/ui.theme",
		map[string]interface{}{"value": "dark"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set status = %d, want 200", resp.StatusCode)
	}

	resp, env := doJSON(t, http.MethodGet, srv.URL+"/api/v1/settings/ui.theme", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d, want 200", resp.StatusCode)
	}
	var kv struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(env.Data, &kv); err != nil {
		t.Fatalf("decode setting: %v", err)
	}
	if kv.Value != "dark" {
		t.Errorf("value = %q, want dark", kv.Value)
	}

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/settings/ui.theme", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unset status = %d, want 200", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/settings/ui.theme", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after unset status = %d, want 404", resp.StatusCode)
	}
}

func TestAuthModeNoneIdentity(t *testing.T) {
	srv := newTestServer(t)

	resp, env := doJSON(t, http.MethodGet, srv.URL+"/api/v1/auth/me", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var subject struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(env.Data, &subject); err != nil {
		t.Fatalf("decode subject: %v", err)
	}
	if subject.Username != "anonymous" {
		t.Errorf("username = %q, want anonymous", subject.Username)
	}

	// Local login needs a JWT manager; without one it is unavailable.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/auth/login",
		map[string]interface{}{"username": "admin", "password": "pw"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("login status = %d, want 503", resp.StatusCode)
	}
}

func TestAuditStatsUnavailableWithoutStore(t *testing.T) {
	srv := newTestServer(t)

	resp, env := doJSON(t, http.MethodGet, srv.URL+"/api/v1/audit/stats", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	if env.Error == nil || env.Error.Code != CodeUnavailable {
		t.Fatalf("error = %+v, want code %s", env.Error, CodeUnavailable)
	}
}

func TestAuditTypesListed(t *testing.T) {
	srv := newTestServer(t)

	resp, env := doJSON(t, http.MethodGet, srv.URL+"/api/v1/audit/types", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var types []string
	if err := json.Unmarshal(env.Data, &types); err != nil {
		t.Fatalf("decode types: %v", err)
	}
	if len(types) == 0 {
		t.Fatal("expected event types")
	}
}

func TestRequestIDInEnvelope(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-Request-ID", "req-test-7")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Metadata.RequestID != "req-test-7" {
		t.Errorf("request id = %q, want req-test-7", env.Metadata.RequestID)
	}
	if resp.Header.Get("X-Request-ID") != "req-test-7" {
		t.Error("expected request id echoed in response header")
	}
}

func TestRelayStatsEmpty(t *testing.T) {
	srv := newTestServer(t)

	resp, env := doJSON(t, http.MethodGet, srv.URL+"/api/v1/relay/streams", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if env.Metadata.Total == nil || *env.Metadata.Total != 0 {
		t.Fatalf("total = %v, want 0", env.Metadata.Total)
	}
}
