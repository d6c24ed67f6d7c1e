package types

import "time"

// ModelEndpoint describes the chat model endpoint an agent speaks through.
type ModelEndpoint struct {
	Provider   string         `json:"provider"`
	URL        string         `json:"url"`
	ModelName  string         `json:"model_name"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Timeout    time.Duration  `json:"timeout,omitempty"`
}

// Agent is the runtime representation of a conversation participant.
// Lifetime is one conversation; the orchestrator destroys it on exit.
type Agent struct {
	ID                   string         `json:"id"`
	DisplayName          string         `json:"display_name"`
	PersonaText          string         `json:"persona_text"`
	RenderedSystemPrompt string         `json:"rendered_system_prompt"`
	ModelEndpoint        ModelEndpoint  `json:"model_endpoint"`
	ThinkingEnabled      bool           `json:"thinking_enabled"`
	ToolServers          []string       `json:"tool_servers,omitempty"`
	Metadata             map[string]any `json:"metadata,omitempty"`
}
