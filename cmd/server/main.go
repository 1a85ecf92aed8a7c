// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

// Package main is the entry point for the ushadow server.
//
// ushadow is the self-hosted orchestration backend of a personal AI
// assistant platform running on a private tailnet. It tracks the platform's
// services through a TTL heartbeat registry, manages llm/audio/memory
// provider configuration, relays live audio between satellite devices and
// transcription workers, issues capability-scoped share tokens, and deploys
// containerized workloads to u-nodes.
//
// The server initializes components in the following order:
//
//  1. Configuration: koanf v2 layered over defaults, config file, and
//     USHADOW_-prefixed environment variables
//  2. Stores: Badger for orchestration state, DuckDB for the audit trail
//  3. Event bus: in-process watermill pub/sub feeding the UI event stream
//  4. Domain managers: registry, providers, shares, u-nodes, instances,
//     memory sources, settings
//  5. Integrations: Docker Engine and the tailscale CLI
//  6. Authentication: Keycloak OIDC, local JWT, or none
//  7. Supervisor tree: data, core, and api layers under suture
//
// # Configuration
//
// Every setting has a USHADOW_-prefixed environment variable; common ones
// also have short forms (HTTP_PORT, AUTH_MODE, JWT_SECRET, ADMIN_USERNAME,
// ADMIN_PASSWORD). See config.yaml.example for the full file layout.
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger a graceful shutdown: the HTTP server drains
// in-flight requests, relay streams and event clients are closed, and the
// stores are flushed before exit.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ushadow-io/ushadow/internal/api"
	"github.com/ushadow-io/ushadow/internal/audit"
	"github.com/ushadow-io/ushadow/internal/auth"
	"github.com/ushadow-io/ushadow/internal/authz"
	"github.com/ushadow-io/ushadow/internal/config"
	"github.com/ushadow-io/ushadow/internal/database"
	"github.com/ushadow-io/ushadow/internal/docker"
	"github.com/ushadow-io/ushadow/internal/eventbus"
	"github.com/ushadow-io/ushadow/internal/instance"
	"github.com/ushadow-io/ushadow/internal/logging"
	"github.com/ushadow-io/ushadow/internal/memory"
	"github.com/ushadow-io/ushadow/internal/provider"
	"github.com/ushadow-io/ushadow/internal/registry"
	"github.com/ushadow-io/ushadow/internal/relay"
	"github.com/ushadow-io/ushadow/internal/share"
	"github.com/ushadow-io/ushadow/internal/store"
	"github.com/ushadow-io/ushadow/internal/supervisor"
	"github.com/ushadow-io/ushadow/internal/tailscale"
	"github.com/ushadow-io/ushadow/internal/unode"
	ws "github.com/ushadow-io/ushadow/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("auth_mode", cfg.Auth.Mode).
		Int("port", cfg.Server.Port).
		Str("environment", cfg.Server.Environment).
		Msg("Starting ushadow")

	// Static config is read once at startup; flag edits so operators know
	// a restart is needed. Runtime-mutable settings live in the settings
	// manager instead.
	if cfg.SourceFile != "" {
		path := cfg.SourceFile
		if err := config.WatchConfigFile(path, func() {
			logging.Warn().Str("path", path).Msg("Config file changed on disk, restart to apply")
		}); err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("Failed to watch config file")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Orchestration state store.
	var db *store.DB
	if cfg.Store.InMemory {
		db, err = store.OpenInMemory()
	} else {
		db, err = store.Open(cfg.Store)
	}
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open state store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing state store")
		}
	}()

	// Audit trail store.
	auditDB, err := database.New(cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open audit database")
	}
	defer func() {
		if err := auditDB.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing audit database")
		}
	}()

	auditStore := audit.NewDuckDBStore(auditDB.Conn())
	if err := auditStore.CreateTable(ctx); err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize audit schema")
	}
	auditLogger := audit.NewLogger(auditStore, audit.ConfigFromApp(cfg.Audit))
	defer func() {
		if err := auditLogger.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing audit logger")
		}
	}()
	auditLogger.StartCleanupRoutine(ctx)

	bus := eventbus.New()
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()

	// Provider API keys are encrypted at rest; the key is generated on
	// first start and kept next to the settings file.
	secret, err := loadOrCreateSecret(filepath.Join(filepath.Dir(cfg.Settings.Path), "credentials.key"))
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load credential key")
	}
	encryptor, err := config.NewCredentialEncryptor(secret)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize credential encryption")
	}

	// Docker is optional: without it, instance starts and node deployments
	// report unavailable but everything else works.
	var dockerClient *docker.Client
	if dc, err := docker.New(cfg.Docker); err != nil {
		logging.Warn().Err(err).Msg("Docker unavailable, deployments disabled")
	} else if err := dc.Ping(ctx); err != nil {
		logging.Warn().Err(err).Msg("Docker daemon unreachable, deployments disabled")
		_ = dc.Close()
	} else {
		dockerClient = dc
		defer func() { _ = dockerClient.Close() }()
	}

	// Domain managers.
	reg, err := registry.New(db, bus, auditLogger, cfg.Registry)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize service registry")
	}
	providers, err := provider.New(db, encryptor, bus, auditLogger, cfg.Providers)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize provider manager")
	}
	shares := share.NewService(db, bus, auditLogger, cfg.Share)
	nodes, err := unode.New(db, bus, auditLogger, dockerClient, cfg.UNode)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize u-node manager")
	}
	instances, err := instance.New(db, bus, dockerClient)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize instance manager")
	}
	sources, err := memory.New(db)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize memory sources")
	}
	settings, err := config.NewManager(cfg.Settings.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize settings")
	}
	settings.OnChange(func(key string) {
		if err := bus.Publish(eventbus.TopicSettingsChanged, map[string]string{"key": key}); err != nil {
			logging.Warn().Err(err).Str("key", key).Msg("Failed to publish settings change")
		}
	})

	tailnet := tailscale.New(cfg.Tailscale)

	// Authentication.
	handlers := &api.Handlers{
		Config:     cfg,
		Registry:   reg,
		Providers:  providers,
		Shares:     shares,
		Nodes:      nodes,
		Instances:  instances,
		Memory:     sources,
		Settings:   settings,
		Tailscale:  tailnet,
		Audit:      auditLogger,
		AuditStats: auditStore,
	}

	mode, err := auth.ParseAuthMode(cfg.Auth.Mode)
	if err != nil {
		logging.Fatal().Err(err).Msg("Invalid auth mode")
	}

	var authenticator auth.Authenticator
	switch mode {
	case auth.AuthModeJWT:
		jwtMgr, err := auth.NewJWTManager(cfg.Auth)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
		}
		admin, err := auth.NewAdminCredentials(cfg.Auth.AdminUsername, cfg.Auth.AdminPassword)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize admin credentials")
		}
		sessions := auth.NewBadgerSessionStore(db)
		sessions.StartCleanupRoutine(ctx, time.Hour)
		authenticator = auth.NewJWTAuthenticatorWithSessions(jwtMgr, sessions)
		handlers.JWT = jwtMgr
		handlers.Admin = admin
		handlers.Sessions = sessions
		handlers.LoginLimiter = auth.NewLoginLimiter(5, time.Minute)
	case auth.AuthModeKeycloak:
		rp, err := auth.NewKeycloakRelyingParty(ctx, cfg.Auth.Keycloak)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to reach Keycloak")
		}
		authenticator = auth.NewKeycloakAuthenticator(rp)
	case auth.AuthModeNone:
		logging.Warn().Msg("Authentication disabled, relying on tailnet isolation")
	}

	authMW, err := auth.NewMiddleware(mode, authenticator, auditLogger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize auth middleware")
	}
	handlers.AuthMW = authMW

	enforcer, err := authz.NewEnforcer(authz.DefaultEnforcerConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize authorization")
	}
	defer enforcer.Close()
	handlers.AuthzMW = authz.NewMiddleware(enforcer, auditLogger)

	// Real-time layer.
	relayHub := relay.NewHub(cfg.Relay, bus)
	eventsHub := ws.NewHub(bus)
	handlers.RelayHub = relayHub
	handlers.RelayHandler = relay.NewHandler(relayHub)
	handlers.EventsHub = eventsHub

	// Supervisor tree.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	tree.AddDataService(store.NewGC(db, 10*time.Minute))
	tree.AddCoreService(registry.NewMonitor(reg, cfg.Registry.MonitorInterval))
	tree.AddCoreService(unode.NewMonitor(nodes, cfg.UNode.MonitorInterval))
	tree.AddCoreService(relayHub)
	tree.AddCoreService(eventsHub)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           api.NewRouter(handlers),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		IdleTimeout:       120 * time.Second,
	}
	tree.AddAPIService(supervisor.NewHTTPService(httpServer, 10*time.Second))

	logging.Info().Str("addr", httpServer.Addr).Msg("ushadow listening")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree exited")
	}

	logging.Info().Msg("Shutdown complete")
}

// loadOrCreateSecret reads the credential encryption key, generating and
// persisting one on first start.
func loadOrCreateSecret(path string) (string, error) {
	if data, err := os.ReadFile(path); err == nil {
		return string(data), nil
	} else if !os.IsNotExist(err) {
		return "", err
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	secret := hex.EncodeToString(raw)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(secret), 0o600); err != nil {
		return "", err
	}
	return secret, nil
}
