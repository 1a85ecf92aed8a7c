// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

// Package main provides the ushadow orchestration server
//
// ushadow is a self-hosted orchestration backend for a personal AI
// assistant platform.
//
// @title ushadow API
// @version 1.0
// @description Self-hosted orchestration backend for personal AI assistants
// @description
// @description ## Features
// @description
// @description - **Service Registry**: TTL-based registration and heartbeat health tracking for platform services
// @description - **Provider Management**: Configure LLM, audio, and memory providers with encrypted credentials
// @description - **Share Tokens**: Capability-scoped share links with expiry, view limits, and revocation
// @description - **Audio Relay**: WebSocket fan-out from one audio source to many listeners
// @description - **u-Node Cluster**: Register satellite nodes and deploy containers to them
// @description - **Instance Templates**: One-call deployment of bundled service templates
// @description - **Audit Trail**: Queryable record of every security-relevant action
// @description
// @description ## Authentication
// @description
// @description Auth mode is configurable: Keycloak OIDC, local JWT, or none
// @description (trusted tailnet deployments). In jwt mode, obtain a bearer
// @description token via `/api/v1/auth/login` and send it in the
// @description `Authorization` header.
// @description
// @description ## Rate Limiting
// @description
// @description Default rate limit: 100 requests per minute per IP address.
// @description Login attempts are throttled separately and more aggressively.
// @description
// @description ## Error Responses
// @description
// @description All error responses follow this format:
// @description ```json
// @description {
// @description   "status": "error",
// @description   "data": null,
// @description   "error": {
// @description     "code": "ERROR_CODE",
// @description     "message": "Human-readable error message",
// @description     "details": {}
// @description   },
// @description   "metadata": {
// @description     "timestamp": "2026-08-30T12:34:56Z"
// @description   }
// @description }
// @description ```
//
// @contact.name GitHub Repository
// @contact.url https://github.com/ushadow-io/ushadow/issues
//
// @license.name AGPL-3.0-or-later
// @license.url https://www.gnu.org/licenses/agpl-3.0.html
//
// @host localhost:8088
// @BasePath /api/v1
// @schemes http https
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT bearer token. Obtain via /api/v1/auth/login in jwt auth mode.
//
// @tag.name Core
// @tag.description Health checks, system status, and settings
//
// @tag.name Services
// @tag.description Service registry with TTL heartbeats and health state
//
// @tag.name Providers
// @tag.description LLM, audio, and memory provider configuration
//
// @tag.name Shares
// @tag.description Capability-scoped share token lifecycle and redemption
//
// @tag.name Nodes
// @tag.description u-node cluster membership and container deployment
//
// @tag.name Instances
// @tag.description Template-driven service instance management
//
// @tag.name Auth
// @tag.description Authentication and session endpoints
//
// @tag.name Realtime
// @tag.description WebSocket audio relay and platform event streams
//
// @tag.name Admin
// @tag.description Administrative operations (audit queries, tailscale control)
package main
