// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

// Package docker wraps the Docker SDK with the small surface ushadow
// needs: pulling images, running labeled containers for instances and
// u-node deploys, and tailing their logs. Containers created here carry
// the managed label so ListManaged never touches foreign containers.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"

	"github.com/ushadow-io/ushadow/internal/config"
	"github.com/ushadow-io/ushadow/internal/logging"
)

// ManagedLabel marks containers created by ushadow.
const ManagedLabel = "io.ushadow.managed"

// OwnerLabel records which subsystem created the container.
const OwnerLabel = "io.ushadow.owner"

// Client is a thin wrapper over the Docker SDK.
type Client struct {
	api *client.Client
}

// New creates a Docker client from config. An empty host uses the SDK's
// environment defaults (DOCKER_HOST, /var/run/docker.sock).
func New(cfg config.DockerConfig) (*Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}
	if cfg.APIVersion != "" {
		opts = append(opts, client.WithVersion(cfg.APIVersion))
	}

	api, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Client{api: api}, nil
}

// Ping verifies the daemon is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.Ping(ctx); err != nil {
		return fmt.Errorf("docker ping: %w", err)
	}
	return nil
}

// Close releases the underlying transport.
func (c *Client) Close() error {
	return c.api.Close()
}

// ContainerSpec describes a container to run.
type ContainerSpec struct {
	Name  string            `json:"name"`
	Image string            `json:"image"`
	Env   map[string]string `json:"env,omitempty"`
	// Ports maps host port to container port.
	Ports map[int]int `json:"ports,omitempty"`
	// Volumes maps host path to container path.
	Volumes map[string]string `json:"volumes,omitempty"`
	Labels  map[string]string `json:"labels,omitempty"`
	// Owner tags the creating subsystem (instance, unode).
	Owner string `json:"owner,omitempty"`
}

// EnsureImage pulls the image, blocking until the pull completes.
func (c *Client) EnsureImage(ctx context.Context, ref string) error {
	reader, err := c.api.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	defer func() { _ = reader.Close() }()

	// The pull streams progress JSON; drain it to completion.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}

	logging.Info().Str("image", ref).Msg("Image pulled")
	return nil
}

// RunContainer creates and starts a container from the spec and returns
// its ID.
func (c *Client) RunContainer(ctx context.Context, spec *ContainerSpec) (string, error) {
	if spec == nil || spec.Image == "" {
		return "", fmt.Errorf("container spec requires an image")
	}

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	labels := map[string]string{ManagedLabel: "true"}
	if spec.Owner != "" {
		labels[OwnerLabel] = spec.Owner
	}
	for k, v := range spec.Labels {
		labels[k] = v
	}

	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for hostPort, containerPort := range spec.Ports {
		port, err := nat.NewPort("tcp", strconv.Itoa(containerPort))
		if err != nil {
			return "", fmt.Errorf("invalid container port %d: %w", containerPort, err)
		}
		exposed[port] = struct{}{}
		bindings[port] = []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: strconv.Itoa(hostPort)}}
	}

	binds := make([]string, 0, len(spec.Volumes))
	for hostPath, containerPath := range spec.Volumes {
		binds = append(binds, hostPath+":"+containerPath)
	}

	created, err := c.api.ContainerCreate(ctx,
		&container.Config{
			Image:        spec.Image,
			Env:          env,
			Labels:       labels,
			ExposedPorts: exposed,
		},
		&container.HostConfig{
			PortBindings:  bindings,
			Binds:         binds,
			RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
		},
		nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("create container %s: %w", spec.Name, err)
	}

	if err := c.api.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		// Clean up the created-but-unstarted container.
		_ = c.api.ContainerRemove(ctx, created.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("start container %s: %w", spec.Name, err)
	}

	logging.Info().
		Str("container", spec.Name).
		Str("image", spec.Image).
		Str("id", created.ID[:12]).
		Msg("Container started")
	return created.ID, nil
}

// StopContainer stops a container with a grace period.
func (c *Client) StopContainer(ctx context.Context, id string, timeout time.Duration) error {
	seconds := int(timeout.Seconds())
	if err := c.api.ContainerStop(ctx, id, container.StopOptions{Timeout: &seconds}); err != nil {
		return fmt.Errorf("stop container %s: %w", id, err)
	}
	return nil
}

// RemoveContainer removes a container, force-killing it when asked.
func (c *Client) RemoveContainer(ctx context.Context, id string, force bool) error {
	if err := c.api.ContainerRemove(ctx, id, container.RemoveOptions{Force: force}); err != nil {
		return fmt.Errorf("remove container %s: %w", id, err)
	}
	return nil
}

// ManagedContainer is a summary of one ushadow-managed container.
type ManagedContainer struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Image  string            `json:"image"`
	State  string            `json:"state"`
	Status string            `json:"status"`
	Owner  string            `json:"owner,omitempty"`
	Labels map[string]string `json:"labels,omitempty"`
}

// ListManaged returns every container carrying the managed label,
// including stopped ones.
func (c *Client) ListManaged(ctx context.Context) ([]ManagedContainer, error) {
	summaries, err := c.api.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", ManagedLabel+"=true")),
	})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	out := make([]ManagedContainer, 0, len(summaries))
	for _, s := range summaries {
		name := ""
		if len(s.Names) > 0 {
			name = s.Names[0]
			if len(name) > 0 && name[0] == '/' {
				name = name[1:]
			}
		}
		out = append(out, ManagedContainer{
			ID:     s.ID,
			Name:   name,
			Image:  s.Image,
			State:  s.State,
			Status: s.Status,
			Owner:  s.Labels[OwnerLabel],
			Labels: s.Labels,
		})
	}
	return out, nil
}

// ContainerLogs returns the last tail lines of a container's output with
// the stdout/stderr multiplexing stripped.
func (c *Client) ContainerLogs(ctx context.Context, id string, tail int) (string, error) {
	opts := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(tail),
	}
	if tail <= 0 {
		opts.Tail = "all"
	}

	reader, err := c.api.ContainerLogs(ctx, id, opts)
	if err != nil {
		return "", fmt.Errorf("logs for container %s: %w", id, err)
	}
	defer func() { _ = reader.Close() }()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, reader); err != nil {
		return "", fmt.Errorf("demux logs for container %s: %w", id, err)
	}
	if stderr.Len() > 0 {
		stdout.Write(stderr.Bytes())
	}
	return stdout.String(), nil
}
