// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

// Package metrics defines the Prometheus instrumentation for ushadow:
// API latency and throughput, service registry health, provider probes,
// audio relay fan-out, share token lifecycle, circuit breakers, and the
// audit trail writer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API endpoint metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Service registry metrics
	RegistryServices = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "registry_services",
			Help: "Current number of registered services by health state",
		},
		[]string{"status"}, // "healthy", "unhealthy", "unknown"
	)

	RegistryHeartbeats = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_heartbeats_total",
			Help: "Total number of service heartbeats received",
		},
		[]string{"service"},
	)

	RegistryTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_health_transitions_total",
			Help: "Total number of service health state transitions",
		},
		[]string{"service", "to_status"},
	)

	// Provider metrics
	ProviderProbes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_probes_total",
			Help: "Total number of provider validation probes",
		},
		[]string{"provider", "result"}, // result: "success", "failure", "rejected"
	)

	ProviderProbeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_probe_duration_seconds",
			Help:    "Duration of provider validation probes in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	ProvidersConfigured = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "providers_configured",
			Help: "Current number of configured providers by category",
		},
		[]string{"category"}, // "llm", "audio", "memory"
	)

	// Audio relay metrics
	RelayStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_streams",
			Help: "Current number of active relay streams",
		},
	)

	RelayListeners = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_listeners",
			Help: "Current number of listeners per relay stream",
		},
		[]string{"stream"},
	)

	RelayFramesForwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_frames_forwarded_total",
			Help: "Total number of audio frames forwarded to listeners",
		},
		[]string{"stream"},
	)

	RelayFramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_frames_dropped_total",
			Help: "Total number of audio frames dropped",
		},
		[]string{"stream", "reason"}, // "slow_listener", "breaker_open", "closed"
	)

	RelayBytesRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_bytes_relayed_total",
			Help: "Total audio payload bytes relayed",
		},
		[]string{"stream"},
	)

	RelayListenerDisconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_listener_disconnects_total",
			Help: "Total listener disconnects by cause",
		},
		[]string{"reason"}, // "breaker", "client", "stream_closed"
	)

	// Share token metrics
	ShareTokensCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "share_tokens_created_total",
			Help: "Total number of share tokens created",
		},
	)

	ShareRedemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "share_redemptions_total",
			Help: "Total number of share token redemption attempts",
		},
		[]string{"result"}, // "granted", "not_found", "expired", "revoked", "exhausted", "capability"
	)

	ShareActiveTokens = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "share_active_tokens",
			Help: "Current number of active (non-revoked, non-expired) share tokens",
		},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breakers",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// WebSocket event hub metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket event connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSMessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_received_total",
			Help: "Total number of WebSocket messages received",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)

	// u-node cluster metrics
	NodesRegistered = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "unodes_registered",
			Help: "Current number of registered u-nodes by status",
		},
		[]string{"status"}, // "online", "offline"
	)

	NodeDeployments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unode_deployments_total",
			Help: "Total number of u-node service deployments",
		},
		[]string{"result"}, // "success", "failure"
	)

	// Badger store metrics
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_operations_total",
			Help: "Total number of key-value store operations",
		},
		[]string{"bucket", "operation", "result"},
	)

	// Audit trail metrics
	AuditEventsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_written_total",
			Help: "Total number of audit events written",
		},
		[]string{"category"},
	)

	AuditEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_events_dropped_total",
			Help: "Total number of audit events dropped (buffer full)",
		},
	)

	AuditWriteDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "audit_write_duration_seconds",
			Help:    "Duration of audit store writes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Event bus metrics
	BusEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_events_published_total",
			Help: "Total number of events published on the internal bus",
		},
		[]string{"topic"},
	)

	// System metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordAPIRequest records an API request outcome.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordProviderProbe records the outcome of a provider validation probe.
func RecordProviderProbe(provider, result string, duration time.Duration) {
	ProviderProbes.WithLabelValues(provider, result).Inc()
	ProviderProbeDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordShareRedemption records a share token redemption attempt.
func RecordShareRedemption(result string) {
	ShareRedemptions.WithLabelValues(result).Inc()
}

// RecordStoreOperation records a key-value store operation.
func RecordStoreOperation(bucket, operation string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	StoreOperations.WithLabelValues(bucket, operation, result).Inc()
}

// RecordAuditEvent records a written audit event.
func RecordAuditEvent(category string, duration time.Duration) {
	AuditEventsWritten.WithLabelValues(category).Inc()
	AuditWriteDuration.Observe(duration.Seconds())
}

// RecordNodeDeployment records a u-node deployment outcome.
func RecordNodeDeployment(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	NodeDeployments.WithLabelValues(result).Inc()
}
