// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package tailscale

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ushadow-io/ushadow/internal/config"
)

// stubClient returns a Client whose command execution is replaced. The
// binary is set to sh so the installed-binary check passes.
func stubClient(t *testing.T, fn runner) *Client {
	t.Helper()
	c := New(config.TailscaleConfig{Enabled: true, Binary: "sh", Timeout: time.Second})
	c.run = fn
	return c
}

const statusJSON = `{
	"BackendState": "Running",
	"MagicDNSSuffix": "tail1234.ts.net",
	"Self": {
		"HostName": "ushadow-leader",
		"DNSName": "ushadow-leader.tail1234.ts.net.",
		"TailscaleIPs": ["100.64.0.1", "fd7a::1"],
		"OS": "linux",
		"Online": true
	},
	"Peer": {
		"nodekey:abc": {
			"HostName": "u-node-1",
			"TailscaleIPs": ["100.64.0.2"],
			"Online": true
		}
	}
}`

func TestStatusParsesCLIOutput(t *testing.T) {
	var gotArgs []string
	c := stubClient(t, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = args
		return []byte(statusJSON), nil
	})

	status, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(gotArgs) != 2 || gotArgs[0] != "status" || gotArgs[1] != "--json" {
		t.Errorf("args = %v, want [status --json]", gotArgs)
	}
	if !status.Connected() {
		t.Error("Connected() = false for Running backend")
	}
	if status.Self.HostName != "ushadow-leader" {
		t.Errorf("self hostname = %q", status.Self.HostName)
	}
	if len(status.Self.TailscaleIPs) != 2 {
		t.Errorf("self IPs = %v", status.Self.TailscaleIPs)
	}
	if len(status.Peers) != 1 {
		t.Errorf("peers = %d, want 1", len(status.Peers))
	}
}

func TestStatusNotConnected(t *testing.T) {
	c := stubClient(t, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte(`{"BackendState": "NeedsLogin"}`), nil
	})

	status, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Connected() {
		t.Error("Connected() = true for NeedsLogin backend")
	}
}

func TestUpBuildsArgs(t *testing.T) {
	tests := []struct {
		name     string
		authKey  string
		hostname string
		want     []string
	}{
		{"bare", "", "", []string{"up"}},
		{"with key", "tskey-abc", "", []string{"up", "--authkey=tskey-abc"}},
		{"with hostname", "", "leader", []string{"up", "--hostname=leader"}},
		{"both", "tskey-abc", "leader", []string{"up", "--authkey=tskey-abc", "--hostname=leader"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotArgs []string
			c := stubClient(t, func(ctx context.Context, name string, args ...string) ([]byte, error) {
				gotArgs = args
				return nil, nil
			})
			if err := c.Up(context.Background(), tt.authKey, tt.hostname); err != nil {
				t.Fatalf("up: %v", err)
			}
			if len(gotArgs) != len(tt.want) {
				t.Fatalf("args = %v, want %v", gotArgs, tt.want)
			}
			for i := range tt.want {
				if gotArgs[i] != tt.want[i] {
					t.Errorf("args[%d] = %q, want %q", i, gotArgs[i], tt.want[i])
				}
			}
		})
	}
}

func TestIPReturnsFirstLine(t *testing.T) {
	c := stubClient(t, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("100.64.0.1\n"), nil
	})

	ip, err := c.IP(context.Background())
	if err != nil {
		t.Fatalf("ip: %v", err)
	}
	if ip != "100.64.0.1" {
		t.Errorf("ip = %q", ip)
	}
}

func TestIPEmptyOutput(t *testing.T) {
	c := stubClient(t, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("\n"), nil
	})
	if _, err := c.IP(context.Background()); err == nil {
		t.Error("expected error for empty ip output")
	}
}

func TestDisabledIntegration(t *testing.T) {
	c := New(config.TailscaleConfig{Enabled: false})
	if _, err := c.Status(context.Background()); !errors.Is(err, ErrDisabled) {
		t.Errorf("err = %v, want ErrDisabled", err)
	}
}

func TestMissingBinary(t *testing.T) {
	c := New(config.TailscaleConfig{Enabled: true, Binary: "definitely-not-a-real-binary-xyz"})
	if _, err := c.Status(context.Background()); !errors.Is(err, ErrNotInstalled) {
		t.Errorf("err = %v, want ErrNotInstalled", err)
	}
}

func TestCommandError(t *testing.T) {
	c := stubClient(t, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("backend stopped")
	})
	if err := c.Down(context.Background()); err == nil {
		t.Error("expected error from failing command")
	}
}
