// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ushadow-io/ushadow/internal/docker"
	"github.com/ushadow-io/ushadow/internal/unode"
)

type registerNodeRequest struct {
	Name        string   `json:"name" validate:"required,min=1,max=128"`
	Hostname    string   `json:"hostname" validate:"required,hostname"`
	TailscaleIP string   `json:"tailscale_ip,omitempty" validate:"omitempty,ip"`
	Roles       []string `json:"roles,omitempty"`
}

type deployNodeRequest struct {
	Image   string            `json:"image" validate:"required"`
	Name    string            `json:"name,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Ports   map[int]int       `json:"ports,omitempty"`
	Volumes map[string]string `json:"volumes,omitempty"`
}

// handleNodeRegister registers a u-node, or refreshes an existing one of the
// same name.
func (h *Handlers) handleNodeRegister(w http.ResponseWriter, r *http.Request) {
	var req registerNodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validateRequest(w, r, &req) {
		return
	}

	node, err := h.Nodes.Register(r.Context(), &unode.Node{
		Name:        req.Name,
		Hostname:    req.Hostname,
		TailscaleIP: req.TailscaleIP,
		Roles:       req.Roles,
	})
	if err != nil {
		if errors.Is(err, unode.ErrInvalidNode) {
			respondError(w, r, http.StatusBadRequest, CodeValidation, err.Error(), nil)
			return
		}
		respondError(w, r, http.StatusInternalServerError, CodeInternal,
			"failed to register node", err)
		return
	}
	respondData(w, r, http.StatusCreated, node)
}

func (h *Handlers) handleNodeList(w http.ResponseWriter, r *http.Request) {
	nodes := h.Nodes.List()
	respondList(w, r, nodes, int64(len(nodes)), len(nodes), 0)
}

func (h *Handlers) handleNodeGet(w http.ResponseWriter, r *http.Request) {
	node, err := h.Nodes.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "node not found", nil)
		return
	}
	respondData(w, r, http.StatusOK, node)
}

// handleNodeHeartbeat refreshes a node's liveness and restores it to online
// if it had been flagged offline.
func (h *Handlers) handleNodeHeartbeat(w http.ResponseWriter, r *http.Request) {
	node, err := h.Nodes.Heartbeat(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "node not found", nil)
		return
	}
	respondData(w, r, http.StatusOK, node)
}

func (h *Handlers) handleNodeRemove(w http.ResponseWriter, r *http.Request) {
	if err := h.Nodes.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "node not found", nil)
		return
	}
	respondData(w, r, http.StatusOK, map[string]string{"status": "removed"})
}

// handleNodeDeploy runs a container on behalf of a node.
func (h *Handlers) handleNodeDeploy(w http.ResponseWriter, r *http.Request) {
	var req deployNodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validateRequest(w, r, &req) {
		return
	}

	containerID, err := h.Nodes.Deploy(r.Context(), chi.URLParam(r, "id"), &docker.ContainerSpec{
		Name:    req.Name,
		Image:   req.Image,
		Env:     req.Env,
		Ports:   req.Ports,
		Volumes: req.Volumes,
	})
	if err != nil {
		switch {
		case errors.Is(err, unode.ErrNotFound):
			respondError(w, r, http.StatusNotFound, CodeNotFound, "node not found", nil)
		case errors.Is(err, unode.ErrNoDocker):
			respondError(w, r, http.StatusServiceUnavailable, CodeUnavailable,
				"docker is not available", nil)
		case errors.Is(err, unode.ErrInvalidNode):
			respondError(w, r, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		default:
			respondError(w, r, http.StatusInternalServerError, CodeInternal,
				"deployment failed", err)
		}
		return
	}

	respondData(w, r, http.StatusAccepted, map[string]string{"container_id": containerID})
}
