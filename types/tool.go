package types

import (
	"encoding/json"
	"time"
)

// ToolDefinition describes one callable tool exposed by a tool server.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// ToolServerScope distinguishes servers shared by all agents from servers
// owned by a single agent.
type ToolServerScope string

const (
	ScopeGlobal ToolServerScope = "global"
	ScopeAgent  ToolServerScope = "agent"
)

// ToolServerSpec is the launch specification for one tool server subprocess.
type ToolServerSpec struct {
	Name    string            `json:"name"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// ToolServerState 工具服务器运行状态。
type ToolServerState string

const (
	ServerStopped   ToolServerState = "stopped"
	ServerStarting  ToolServerState = "starting"
	ServerReady     ToolServerState = "ready"
	ServerUnhealthy ToolServerState = "unhealthy"
)

// ToolServerStatus is the observable status of one registered server.
type ToolServerStatus struct {
	Name            string           `json:"name"`
	Scope           ToolServerScope  `json:"scope"`
	AgentID         string           `json:"agent_id,omitempty"`
	State           ToolServerState  `json:"state"`
	StartedAt       *time.Time       `json:"started_at,omitempty"`
	LastHealthCheck *time.Time       `json:"last_health_check,omitempty"`
	Error           string           `json:"error,omitempty"`
	Tools           []ToolDefinition `json:"tools,omitempty"`
}

// ToolErrorKind classifies tool call failures surfaced back to the model.
type ToolErrorKind string

const (
	ToolErrTimeout   ToolErrorKind = "timeout"
	ToolErrTransport ToolErrorKind = "transport"
	ToolErrProtocol  ToolErrorKind = "protocol"
)

// ToolResult is the outcome of one tool call. On failure IsError is set
// and Content carries the error text so the model can react.
type ToolResult struct {
	CallID   string        `json:"call_id"`
	ToolName string        `json:"tool_name"`
	Content  string        `json:"content"`
	IsError  bool          `json:"is_error"`
	ErrKind  ToolErrorKind `json:"err_kind,omitempty"`
	Duration time.Duration `json:"duration"`
}
