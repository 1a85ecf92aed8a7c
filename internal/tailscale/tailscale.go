// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

// Package tailscale shells out to the tailscale CLI for network status and
// setup. ushadow never speaks the tailscale control protocol itself; the
// binary owns the node state.
package tailscale

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/ushadow-io/ushadow/internal/config"
	"github.com/ushadow-io/ushadow/internal/logging"
)

var (
	// ErrNotInstalled is returned when the tailscale binary is absent.
	ErrNotInstalled = errors.New("tailscale binary not found")

	// ErrDisabled is returned when tailscale integration is switched off.
	ErrDisabled = errors.New("tailscale integration disabled")
)

// DefaultTimeout bounds a CLI invocation when config does not set one.
const DefaultTimeout = 15 * time.Second

// Device is one node in the tailnet as reported by the CLI.
type Device struct {
	HostName     string   `json:"HostName"`
	DNSName      string   `json:"DNSName"`
	TailscaleIPs []string `json:"TailscaleIPs"`
	OS           string   `json:"OS"`
	Online       bool     `json:"Online"`
}

// Status is the parsed output of `tailscale status --json`, reduced to the
// fields ushadow surfaces.
type Status struct {
	BackendState string            `json:"BackendState"`
	MagicDNS     string            `json:"MagicDNSSuffix"`
	Self         Device            `json:"Self"`
	Peers        map[string]Device `json:"Peer"`
}

// Connected reports whether the node is up on the tailnet.
func (s *Status) Connected() bool {
	return s.BackendState == "Running"
}

// runner abstracts command execution for tests.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Client wraps the tailscale CLI.
type Client struct {
	binary  string
	enabled bool
	timeout time.Duration
	run     runner
}

// New creates a CLI client from config.
func New(cfg config.TailscaleConfig) *Client {
	binary := cfg.Binary
	if binary == "" {
		binary = "tailscale"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		binary:  binary,
		enabled: cfg.Enabled,
		timeout: timeout,
		run:     runCommand,
	}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s %s: %s: %w", name, strings.Join(args, " "), msg, err)
		}
		return nil, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return stdout.Bytes(), nil
}

func (c *Client) exec(ctx context.Context, args ...string) ([]byte, error) {
	if !c.enabled {
		return nil, ErrDisabled
	}
	if _, err := exec.LookPath(c.binary); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotInstalled, c.binary)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.run(ctx, c.binary, args...)
}

// Status returns the current tailnet state.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	out, err := c.exec(ctx, "status", "--json")
	if err != nil {
		return nil, err
	}

	var status Status
	if err := json.Unmarshal(out, &status); err != nil {
		return nil, fmt.Errorf("parse tailscale status: %w", err)
	}
	return &status, nil
}

// Up joins the tailnet. The auth key is optional when the node is already
// authorized; the hostname overrides the machine name when set.
func (c *Client) Up(ctx context.Context, authKey, hostname string) error {
	args := []string{"up"}
	if authKey != "" {
		args = append(args, "--authkey="+authKey)
	}
	if hostname != "" {
		args = append(args, "--hostname="+hostname)
	}

	if _, err := c.exec(ctx, args...); err != nil {
		return err
	}
	logging.Info().Str("hostname", hostname).Msg("Tailscale up")
	return nil
}

// Down disconnects from the tailnet without logging out.
func (c *Client) Down(ctx context.Context) error {
	if _, err := c.exec(ctx, "down"); err != nil {
		return err
	}
	logging.Info().Msg("Tailscale down")
	return nil
}

// IP returns the node's IPv4 tailnet address.
func (c *Client) IP(ctx context.Context) (string, error) {
	out, err := c.exec(ctx, "ip", "-4")
	if err != nil {
		return "", err
	}

	ip := strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	if ip == "" {
		return "", fmt.Errorf("tailscale ip returned no address")
	}
	return ip, nil
}
