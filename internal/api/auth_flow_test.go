// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/ushadow-io/ushadow/internal/auth"
	"github.com/ushadow-io/ushadow/internal/config"
	"github.com/ushadow-io/ushadow/internal/store"
)

// newJWTTestServer wires a jwt-mode server with real auth middleware and a
// badger session store, so token issue, use, and revocation run end to end.
func newJWTTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	db, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	authCfg := config.AuthConfig{
		JWTSecret:      "auth-flow-test-secret-at-least-32-chars",
		SessionTimeout: time.Hour,
	}
	jwtMgr, err := auth.NewJWTManager(authCfg)
	if err != nil {
		t.Fatalf("new jwt manager: %v", err)
	}
	admin, err := auth.NewAdminCredentials("admin", "correct horse battery staple")
	if err != nil {
		t.Fatalf("new admin credentials: %v", err)
	}
	sessions := auth.NewBadgerSessionStore(db)

	authMW, err := auth.NewMiddleware(auth.AuthModeJWT,
		auth.NewJWTAuthenticatorWithSessions(jwtMgr, sessions), nil)
	if err != nil {
		t.Fatalf("new auth middleware: %v", err)
	}

	h := &Handlers{
		Config: &config.Config{
			Auth: authCfg,
			API:  config.APIConfig{RateLimitDisabled: true},
		},
		AuthMW:   authMW,
		JWT:      jwtMgr,
		Admin:    admin,
		Sessions: sessions,
	}

	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return srv
}

func authedJSON(t *testing.T, method, url, token string, body interface{}) (*http.Response, envelope) {
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
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	// Auth middleware rejections use a plain {"error": msg} shape rather
	// than the handler envelope, so only insist on the envelope for
	// successful responses.
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && resp.StatusCode < 400 {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp, env
}

func TestLoginLogoutRevokesToken(t *testing.T) {
	srv := newJWTTestServer(t)
	loginURL := srv.URL + "/api/v1/auth/login"
	meURL := srv.URL + "/api/v1/auth/me"

	// Wrong password is rejected.
	resp, _ := authedJSON(t, http.MethodPost, loginURL, "",
		map[string]string{"username": "admin", "password": "wrong"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d, want 401", resp.StatusCode)
	}

	// No token, no access.
	resp, _ = authedJSON(t, http.MethodGet, meURL, "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated me status = %d, want 401", resp.StatusCode)
	}

	resp, env := authedJSON(t, http.MethodPost, loginURL, "",
		map[string]string{"username": "admin", "password": "correct horse battery staple"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
	var login struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if login.Token == "" {
		t.Fatal("login returned empty token")
	}

	resp, env = authedJSON(t, http.MethodGet, meURL, login.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d, want 200", resp.StatusCode)
	}
	var subject struct {
		Username  string `json:"username"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(env.Data, &subject); err != nil {
		t.Fatalf("decode subject: %v", err)
	}
	if subject.Username != "admin" {
		t.Errorf("username = %q, want admin", subject.Username)
	}
	if subject.SessionID == "" {
		t.Error("subject should carry the session id")
	}

	resp, _ = authedJSON(t, http.MethodPost, srv.URL+"/api/v1/auth/logout", login.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status = %d, want 200", resp.StatusCode)
	}

	// The session is gone, so the still-unexpired token no longer works.
	resp, _ = authedJSON(t, http.MethodGet, meURL, login.Token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("me after logout status = %d, want 401", resp.StatusCode)
	}
}
