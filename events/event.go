// Package events 提供会话事件模型与订阅者广播。
// 事件是自描述记录，type 字段作为判别器；thought 等高频事件
// 对慢订阅者按有界队列丢弃最旧策略处理，发布方永不阻塞。
package events

import (
	"encoding/json"
	"time"
)

// EventType 事件类型
type EventType string

const (
	EventThought       EventType = "thought"
	EventAgentMessage  EventType = "agent_message"
	EventTurnIndicator EventType = "turn_indicator"
	EventToolCall      EventType = "tool_call"
	EventToolResult    EventType = "tool_result"
	EventCycleUpdate   EventType = "cycle_update"
	EventLifecycle     EventType = "lifecycle"
	EventError         EventType = "error"
)

// Lifecycle kinds carried in Event.Kind for EventLifecycle.
const (
	LifecycleStarted = "started"
	LifecyclePaused  = "paused"
	LifecycleResumed = "resumed"
	LifecycleStopped = "stopped"
	LifecycleEnded   = "ended"
)

// Error kinds carried in Event.Kind for EventError.
const (
	ErrorKindTimeout             = "timeout"
	ErrorKindEndpointUnreachable = "endpoint_unreachable"
	ErrorKindModelNotFound       = "model_not_found"
	ErrorKindProtocol            = "protocol"
	ErrorKindToolServer          = "tool_server"
	ErrorKindInternal            = "internal"
)

// Event 单条会话事件。未使用的字段留零值，JSON 序列化时省略。
type Event struct {
	Type          EventType       `json:"type"`
	Timestamp     time.Time       `json:"timestamp"`
	AgentID       string          `json:"agent_id,omitempty"`
	DisplayName   string          `json:"display_name,omitempty"`
	Content       string          `json:"content,omitempty"`
	Cycle         int             `json:"cycle,omitempty"`
	Participating []string        `json:"participating,omitempty"`
	ToolName      string          `json:"tool_name,omitempty"`
	Args          json.RawMessage `json:"args,omitempty"`
	ResultPreview string          `json:"result_preview,omitempty"`
	DurationMS    int64           `json:"duration_ms,omitempty"`
	Kind          string          `json:"kind,omitempty"`
	Detail        string          `json:"detail,omitempty"`
}

func newEvent(t EventType) Event {
	return Event{Type: t, Timestamp: time.Now().UTC()}
}

// NewThought 单个思考片段
func NewThought(agentID, chunk string) Event {
	e := newEvent(EventThought)
	e.AgentID = agentID
	e.Content = chunk
	return e
}

// NewAgentMessage 一轮结束时的最终发言
func NewAgentMessage(agentID, displayName, content string, cycle int) Event {
	e := newEvent(EventAgentMessage)
	e.AgentID = agentID
	e.DisplayName = displayName
	e.Content = content
	e.Cycle = cycle
	return e
}

// NewTurnIndicator 轮到某个 Agent 发言
func NewTurnIndicator(agentID string) Event {
	e := newEvent(EventTurnIndicator)
	e.AgentID = agentID
	return e
}

// NewToolCall 模型发起工具调用
func NewToolCall(agentID, toolName string, args json.RawMessage) Event {
	e := newEvent(EventToolCall)
	e.AgentID = agentID
	e.ToolName = toolName
	e.Args = args
	return e
}

// NewToolResult 工具调用结果（preview 截断后的内容）
func NewToolResult(toolName, resultPreview string, duration time.Duration) Event {
	e := newEvent(EventToolResult)
	e.ToolName = toolName
	e.ResultPreview = resultPreview
	e.DurationMS = duration.Milliseconds()
	return e
}

// NewCycleUpdate cycle 完成
func NewCycleUpdate(cycle int, participating []string) Event {
	e := newEvent(EventCycleUpdate)
	e.Cycle = cycle
	e.Participating = participating
	return e
}

// NewLifecycle 会话生命周期变更
func NewLifecycle(kind, detail string) Event {
	e := newEvent(EventLifecycle)
	e.Kind = kind
	e.Detail = detail
	return e
}

// NewError 错误事件
func NewError(kind, agentID, message string) Event {
	e := newEvent(EventError)
	e.Kind = kind
	e.AgentID = agentID
	e.Detail = message
	return e
}
