package handlers

import (
	"github.com/BaSui01/convoflow/types"
)

// =============================================================================
// 会话命令类型
// =============================================================================

// StartRequest start 命令请求体。Scenario 为空时使用默认场景。
type StartRequest struct {
	// 场景名称
	Scenario string `json:"scenario,omitempty"`
	// 一次性覆盖项，只对本次会话生效
	Overrides StartOverrides `json:"overrides,omitempty"`
}

// StartOverrides start 命令的可覆盖项
type StartOverrides struct {
	// 最大 cycle 数（nil 表示沿用场景配置）
	MaxCycles *int `json:"max_cycles,omitempty"`
	// 起始发言者，必须是场景参与者
	StartingAgent string `json:"starting_agent,omitempty"`
}

// ContinueRequest continue 命令请求体
type ContinueRequest struct {
	// 本次驱动的 cycle 数（0 表示一直运行到终止）
	Cycles int `json:"cycles,omitempty"`
}

// PhaseResponse pause/resume/stop 的统一返回
type PhaseResponse struct {
	Phase types.Phase `json:"phase"`
}

// =============================================================================
// 场景与模型类型
// =============================================================================

// ScenarioListResponse list_scenarios 命令返回
type ScenarioListResponse struct {
	Scenarios []types.ScenarioDescriptor `json:"scenarios"`
	// 默认场景名（配置中的第一个）
	Default string `json:"default,omitempty"`
}

// ModelTestRequest test_model_endpoint 命令请求体。
// AgentID 为空时检查所有已配置 Agent 的端点。
type ModelTestRequest struct {
	AgentID string `json:"agent_id,omitempty"`
}

// ModelTestResult 单个端点的检查结果
type ModelTestResult struct {
	AgentID   string `json:"agent_id"`
	URL       string `json:"url"`
	Model     string `json:"model"`
	OK        bool   `json:"ok"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
}

// ModelTestResponse test_model_endpoint 命令返回。
// OK 为所有被检查端点结果的合取。
type ModelTestResponse struct {
	OK      bool              `json:"ok"`
	Results []ModelTestResult `json:"results"`
}

// =============================================================================
// 工具服务器类型
// =============================================================================

// ToolStatusResponse tool_status 命令返回
type ToolStatusResponse struct {
	Servers []types.ToolServerStatus `json:"servers"`
}

// ToolRestartRequest restart_tool 命令请求体
type ToolRestartRequest struct {
	// 服务器唯一名称（agent 专属服务器为 {agent-id}_{name}）
	Name string `json:"name"`
}

// =============================================================================
// 健康检查类型
// =============================================================================

// HealthResponse healthz 端点返回
type HealthResponse struct {
	Status string      `json:"status"`
	Phase  types.Phase `json:"phase"`
	// 归档后端连通性（未启用归档时省略）
	Archive string `json:"archive,omitempty"`
}
