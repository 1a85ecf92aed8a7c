// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

package instance

// TemplateField describes one configuration field a template accepts.
type TemplateField struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Required    bool   `json:"required"`
	Secret      bool   `json:"secret,omitempty"`
	Default     string `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
}

// Template is a deployable service blueprint. Templates without an image
// are configuration-only integrations that run inside the backend itself.
type Template struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Image       string            `json:"image,omitempty"`
	Ports       map[int]int       `json:"ports,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	Fields      []TemplateField   `json:"fields,omitempty"`
}

// HasImage reports whether instances of this template run as containers.
func (t *Template) HasImage() bool { return t.Image != "" }

// builtinTemplates is the catalog shipped with the backend.
func builtinTemplates() []*Template {
	return []*Template{
		{
			ID:          "notion",
			Name:        "Notion Sync",
			Description: "Syncs pages from a Notion workspace into the assistant's memory.",
			Fields: []TemplateField{
				{Key: "api_token", Label: "Notion API token", Required: true, Secret: true},
				{Key: "root_page_id", Label: "Root page ID", Required: true},
				{Key: "sync_interval", Label: "Sync interval", Default: "15m"},
			},
		},
		{
			ID:          "hey-ushadow",
			Name:        "Hey uShadow",
			Description: "Wake-word listener that streams microphone audio to the relay.",
			Image:       "ghcr.io/ushadow-io/hey-ushadow:latest",
			Fields: []TemplateField{
				{Key: "wake_word", Label: "Wake word", Default: "hey ushadow"},
				{Key: "relay_stream", Label: "Relay stream name", Required: true},
			},
		},
		{
			ID:          "whisper",
			Name:        "Whisper Transcriber",
			Description: "Local speech-to-text service backed by whisper.cpp.",
			Image:       "ghcr.io/ushadow-io/whisper:latest",
			Ports:       map[int]int{9090: 9090},
			Fields: []TemplateField{
				{Key: "model", Label: "Model size", Required: true, Default: "base.en"},
				{Key: "language", Label: "Language", Default: "en"},
			},
		},
		{
			ID:          "chat",
			Name:        "Chat UI",
			Description: "Web chat frontend wired to the default LLM provider.",
			Image:       "ghcr.io/ushadow-io/chat:latest",
			Ports:       map[int]int{8400: 3000},
			Fields: []TemplateField{
				{Key: "title", Label: "Window title", Default: "ushadow"},
			},
		},
	}
}
