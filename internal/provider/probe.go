// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/ushadow-io/ushadow/internal/logging"
	"github.com/ushadow-io/ushadow/internal/metrics"
)

// DefaultProbeTimeout bounds a validation probe when config does not set one.
const DefaultProbeTimeout = 10 * time.Second

// probeReadLimit caps how much of a probe response body is parsed.
const probeReadLimit = 1 << 20

// prober issues validation probes against provider endpoints. Each provider
// gets its own circuit breaker so a flapping endpoint cannot absorb probe
// traffic indefinitely.
type prober struct {
	client  *http.Client
	timeout time.Duration

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*ValidationResult]
}

func newProber(timeout time.Duration) *prober {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &prober{
		client:   &http.Client{Timeout: timeout},
		timeout:  timeout,
		breakers: make(map[string]*gobreaker.CircuitBreaker[*ValidationResult]),
	}
}

func (pr *prober) breaker(p *Provider) *gobreaker.CircuitBreaker[*ValidationResult] {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	if cb, ok := pr.breakers[p.ID]; ok {
		return cb
	}

	name := "provider-" + p.Name
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[*ValidationResult](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Provider breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
	pr.breakers[p.ID] = cb
	return cb
}

// probe issues one validation request through the provider's breaker. An
// open breaker yields a rejected result rather than an error so callers can
// surface the state to the user.
func (pr *prober) probe(ctx context.Context, p *Provider, apiKey string) (*ValidationResult, error) {
	start := time.Now()
	result, err := pr.breaker(p).Execute(func() (*ValidationResult, error) {
		return pr.request(ctx, p, apiKey)
	})
	elapsed := time.Since(start)

	switch {
	case err == nil:
		metrics.RecordProviderProbe(p.Name, "success", elapsed)
		return result, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordProviderProbe(p.Name, "rejected", elapsed)
		return &ValidationResult{
			Reachable: false,
			LatencyMS: elapsed.Milliseconds(),
			Error:     "circuit breaker open: provider is failing probes",
		}, nil
	default:
		metrics.RecordProviderProbe(p.Name, "failure", elapsed)
		return &ValidationResult{
			Reachable: false,
			LatencyMS: elapsed.Milliseconds(),
			Error:     err.Error(),
		}, nil
	}
}

func (pr *prober) request(ctx context.Context, p *Provider, apiKey string) (*ValidationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, pr.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL(p), nil)
	if err != nil {
		return nil, fmt.Errorf("build probe request: %w", err)
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := pr.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", p.Name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, probeReadLimit))
	latency := time.Since(start)

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("probe %s: status %d", p.Name, resp.StatusCode)
	}

	return &ValidationResult{
		Reachable:  resp.StatusCode < http.StatusBadRequest,
		StatusCode: resp.StatusCode,
		LatencyMS:  latency.Milliseconds(),
		Models:     parseModels(body),
	}, nil
}

// probeURL picks the endpoint to hit. LLM providers are assumed to expose
// an OpenAI-compatible model listing; other categories are probed at their
// base URL.
func probeURL(p *Provider) string {
	base := strings.TrimRight(p.BaseURL, "/")
	if p.Type == TypeLLM {
		return base + "/models"
	}
	return base
}

// parseModels extracts model identifiers from an OpenAI-style listing
// ({"data":[{"id":...}]}) or an ollama-style one ({"models":[{"name":...}]}).
// Anything unparseable yields no models, not an error.
func parseModels(body []byte) []string {
	if len(body) == 0 {
		return nil
	}

	var listing struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil
	}

	var models []string
	for _, m := range listing.Data {
		if m.ID != "" {
			models = append(models, m.ID)
		}
	}
	for _, m := range listing.Models {
		if m.Name != "" {
			models = append(models, m.Name)
		}
	}
	return models
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}
