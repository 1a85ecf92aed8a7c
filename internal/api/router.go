// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/ushadow-io/ushadow/internal/middleware"
)

// NewRouter assembles the full HTTP surface. Liveness, metrics, login, and
// share redemption are public; everything else sits behind authentication
// and per-resource authorization.
func NewRouter(h *Handlers) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(corsHandler(h))
	r.Use(middleware.Metrics)

	r.Get("/healthz", h.handleLiveness)
	r.Get("/readyz", h.handleReadiness)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("list"),
		httpSwagger.DomID("swagger-ui"),
	))

	r.Route("/api/v1", func(r chi.Router) {
		if h.Config == nil || !h.Config.API.RateLimitDisabled {
			reqs, window := 100, time.Minute
			if h.Config != nil {
				if h.Config.API.RateLimitReqs > 0 {
					reqs = h.Config.API.RateLimitReqs
				}
				if h.Config.API.RateLimitWindow > 0 {
					window = h.Config.API.RateLimitWindow
				}
			}
			r.Use(middleware.RateLimit(reqs, window))
		}

		// Public endpoints. Share redemption authenticates with the token
		// itself; login is the way in.
		r.Get("/health", h.handleHealth)
		r.Get("/shared/{token}", h.handleShareRedeem)
		r.Post("/auth/login", h.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(h.authenticate())

			r.Post("/auth/logout", h.handleLogout)
			r.Get("/auth/me", h.handleUserInfo)

			r.Route("/services", func(r chi.Router) {
				r.Use(h.protect("services"))
				r.Get("/", h.handleServiceList)
				r.Post("/", h.handleServiceRegister)
				r.Get("/{id}", h.handleServiceGet)
				r.Delete("/{id}", h.handleServiceDeregister)
				r.Post("/{id}/heartbeat", h.handleServiceHeartbeat)
			})

			r.Route("/providers", func(r chi.Router) {
				r.Use(h.protect("providers"))
				r.Get("/", h.handleProviderList)
				r.Post("/", h.handleProviderConfigure)
				r.Get("/defaults/{type}", h.handleProviderDefault)
				r.Get("/{id}", h.handleProviderGet)
				r.Delete("/{id}", h.handleProviderDelete)
				r.Post("/{id}/default", h.handleProviderSetDefault)
				r.Post("/{id}/validate", h.handleProviderValidate)
			})

			r.Route("/shares", func(r chi.Router) {
				r.Use(h.protect("shares"))
				r.Get("/", h.handleShareList)
				r.Post("/", h.handleShareCreate)
				r.Get("/{id}", h.handleShareGet)
				r.Post("/{id}/revoke", h.handleShareRevoke)
			})

			r.Route("/nodes", func(r chi.Router) {
				r.Use(h.protect("nodes"))
				r.Get("/", h.handleNodeList)
				r.Post("/", h.handleNodeRegister)
				r.Get("/{id}", h.handleNodeGet)
				r.Delete("/{id}", h.handleNodeRemove)
				r.Post("/{id}/heartbeat", h.handleNodeHeartbeat)
				r.Post("/{id}/deploy", h.handleNodeDeploy)
			})

			r.Route("/templates", func(r chi.Router) {
				r.Use(h.protect("instances"))
				r.Get("/", h.handleTemplateList)
				r.Get("/{id}", h.handleTemplateGet)
			})

			r.Route("/instances", func(r chi.Router) {
				r.Use(h.protect("instances"))
				r.Get("/", h.handleInstanceList)
				r.Post("/", h.handleInstanceCreate)
				r.Get("/{id}", h.handleInstanceGet)
				r.Delete("/{id}", h.handleInstanceDelete)
				r.Post("/{id}/start", h.handleInstanceStart)
				r.Post("/{id}/stop", h.handleInstanceStop)
			})

			r.Route("/memory", func(r chi.Router) {
				r.Use(h.protect("memory"))
				r.Get("/tools", h.handleMemoryTools)
				r.Route("/sources", func(r chi.Router) {
					r.Get("/", h.handleMemorySourceList)
					r.Post("/", h.handleMemorySourceRegister)
					r.Get("/{id}", h.handleMemorySourceGet)
					r.Delete("/{id}", h.handleMemorySourceRemove)
					r.Put("/{id}/enabled", h.handleMemorySourceSetEnabled)
				})
			})

			r.Route("/settings", func(r chi.Router) {
				r.Use(h.protect("settings"))
				r.Get("/", h.handleSettingsList)
				r.Get("/{key}", h.handleSettingGet)
				r.Put("/{key}", h.handleSettingSet)
				r.Delete("/{key}", h.handleSettingUnset)
			})

			r.Route("/tailscale", func(r chi.Router) {
				r.Use(h.protect("tailscale"))
				r.Get("/status", h.handleTailscaleStatus)
				r.Get("/ip", h.handleTailscaleIP)
				r.Post("/up", h.handleTailscaleUp)
				r.Post("/down", h.handleTailscaleDown)
			})

			r.Route("/audit", func(r chi.Router) {
				r.Use(h.protect("audit"))
				r.Get("/events", h.handleAuditEvents)
				r.Get("/stats", h.handleAuditStats)
				r.Get("/types", h.handleAuditTypes)
			})

			r.Route("/relay", func(r chi.Router) {
				r.Use(h.protect("relay"))
				r.Get("/streams", h.handleRelayStats)
				r.Get("/streams/{stream}/source", h.handleRelaySource)
				r.Get("/streams/{stream}/listen", h.handleRelayListen)
			})

			r.Get("/events", h.handleEventsWS)
		})
	})

	return r
}

// authenticate returns the auth middleware, or a pass-through when none is
// configured (tests).
func (h *Handlers) authenticate() func(http.Handler) http.Handler {
	if h.AuthMW == nil {
		return passthrough
	}
	return h.AuthMW.Authenticate
}

// protect returns the authorization middleware for a resource. The action
// is derived from the HTTP method.
func (h *Handlers) protect(resource string) func(http.Handler) http.Handler {
	if h.AuthzMW == nil {
		return passthrough
	}
	return h.AuthzMW.Require(resource, "")
}

func passthrough(next http.Handler) http.Handler { return next }

func corsHandler(h *Handlers) func(http.Handler) http.Handler {
	origins := []string{"*"}
	if h.Config != nil && len(h.Config.API.CORSOrigins) > 0 {
		origins = h.Config.API.CORSOrigins
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"ETag", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	})
}
