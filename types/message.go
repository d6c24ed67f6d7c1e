package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Role represents the role of a message in the conversation history.
type Role string

const (
	RoleSystem      Role = "system"
	RoleHuman       Role = "human"
	RoleAI          Role = "ai"
	RoleTool        Role = "tool"
	RoleCycleMarker Role = "cycle_marker"
)

// Author values for messages not attributed to a configured agent.
const (
	AuthorUser   = "user"
	AuthorSystem = "system"
	AuthorTool   = "tool"
)

// ToolCall represents a tool invocation request issued by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message represents one entry in the conversation history.
// Messages are immutable once appended; thoughts never enter the history.
type Message struct {
	ID         string         `json:"id"`
	Author     string         `json:"author"`
	Role       Role           `json:"role"`
	Content    string         `json:"content,omitempty"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	CycleIndex int            `json:"cycle_index,omitempty"`
	IsThought  bool           `json:"is_thought,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// NewMessage creates a new message with a fresh id and timestamp.
func NewMessage(author string, role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Author:    author,
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// NewSystemMessage creates a system message attributed to an agent.
func NewSystemMessage(agentID, content string) Message {
	return NewMessage(agentID, RoleSystem, content)
}

// NewHumanMessage creates a human message, normally the opening message.
func NewHumanMessage(author, content string) Message {
	return NewMessage(author, RoleHuman, content)
}

// NewAIMessage creates an assistant message attributed to an agent.
func NewAIMessage(agentID, content string) Message {
	return NewMessage(agentID, RoleAI, content)
}

// NewToolMessage creates a tool result message matched to a tool call.
func NewToolMessage(toolCallID, toolName, content string) Message {
	m := NewMessage(AuthorTool, RoleTool, content)
	m.ToolCallID = toolCallID
	m.Metadata = map[string]any{"tool_name": toolName}
	return m
}

// WithToolCalls attaches tool calls to the message.
func (m Message) WithToolCalls(calls []ToolCall) Message {
	m.ToolCalls = calls
	return m
}

// WithCycle stamps the cycle index the message belongs to.
func (m Message) WithCycle(cycle int) Message {
	m.CycleIndex = cycle
	return m
}

// WithMetadata merges metadata into the message.
func (m Message) WithMetadata(metadata map[string]any) Message {
	if m.Metadata == nil {
		m.Metadata = make(map[string]any, len(metadata))
	}
	for k, v := range metadata {
		m.Metadata[k] = v
	}
	return m
}

// CloneMessage returns a deep copy safe to hand across goroutines.
func CloneMessage(m Message) Message {
	out := m
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		copy(out.ToolCalls, m.ToolCalls)
		for i := range out.ToolCalls {
			if m.ToolCalls[i].Arguments != nil {
				out.ToolCalls[i].Arguments = append(json.RawMessage(nil), m.ToolCalls[i].Arguments...)
			}
		}
	}
	if m.Metadata != nil {
		out.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
