package llm

import (
	"context"
	"time"

	"github.com/BaSui01/convoflow/types"
)

// ChatRequest 一次模型调用的完整输入。
type ChatRequest struct {
	Model    string                 `json:"model"`
	Messages []types.Message        `json:"messages"`
	Tools    []types.ToolDefinition `json:"tools,omitempty"`
	Think    bool                   `json:"think,omitempty"`
	Options  map[string]any         `json:"options,omitempty"`
	Timeout  time.Duration          `json:"timeout,omitempty"`
}

// ChatUsage token 用量统计
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// ChatResponse 同步调用的完整响应
type ChatResponse struct {
	Provider  string        `json:"provider,omitempty"`
	Model     string        `json:"model"`
	Message   types.Message `json:"message"`
	Thinking  string        `json:"thinking,omitempty"`
	Usage     ChatUsage     `json:"usage,omitempty"`
	CreatedAt time.Time     `json:"created_at,omitempty"`
}

// StreamChunk 流式调用的增量响应。
// Done 为 true 的最终 chunk 可携带 Usage；Err 非空表示流中断。
type StreamChunk struct {
	Provider  string           `json:"provider,omitempty"`
	Model     string           `json:"model,omitempty"`
	Content   string           `json:"content,omitempty"`
	Thinking  string           `json:"thinking,omitempty"`
	ToolCalls []types.ToolCall `json:"tool_calls,omitempty"`
	Done      bool             `json:"done,omitempty"`
	Usage     *ChatUsage       `json:"usage,omitempty"`
	Err       *types.Error     `json:"error,omitempty"`
}

// HealthStatus 端点健康检查结果
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
	Models  []string      `json:"models,omitempty"`
}

// Provider 统一的模型端点适配接口。
// 工具通过 ChatRequest.Tools 传入，模型在响应消息中返回 ToolCalls；
// 工具的实际执行由上层负责。
type Provider interface {
	// Completion 发起同步聊天请求，返回完整响应
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Stream 发起流式聊天请求，返回增量响应通道
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)

	// HealthCheck 探测端点可达性并返回已安装的模型列表
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	// HasModel 检查端点是否安装了指定模型（允许 tag 前缀匹配）
	HasModel(ctx context.Context, model string) (bool, error)

	// Name 返回 Provider 的唯一标识
	Name() string
}
