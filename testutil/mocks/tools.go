// MockToolRuntime 的工具服务器运行时测试模拟实现。
//
// 实现 conversation.ToolRuntime 形状：工具定义查询、调用路由与
// Agent 专属服务器的启停记录。支持固定结果与错误注入场景。
package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/convoflow/types"
)

// ToolFunc 是模拟工具的执行函数类型
type ToolFunc func(ctx context.Context, args json.RawMessage) (string, error)

// ToolRuntimeCall 记录单次工具调用
type ToolRuntimeCall struct {
	AgentID  string
	CallID   string
	ToolName string
	Args     json.RawMessage
}

// StartedServers 记录一次 StartAgentServers 调用
type StartedServers struct {
	AgentID string
	Specs   []types.ToolServerSpec
}

// MockToolRuntime 是工具运行时的模拟实现
type MockToolRuntime struct {
	mu sync.RWMutex

	// 工具配置
	defs  map[string][]types.ToolDefinition
	funcs map[string]ToolFunc

	// 调用记录
	calls   []ToolRuntimeCall
	started []StartedServers
	stopped []string
}

// --- 构造函数和 Builder 方法 ---

// NewMockToolRuntime 创建新的 MockToolRuntime
func NewMockToolRuntime() *MockToolRuntime {
	return &MockToolRuntime{
		defs:  make(map[string][]types.ToolDefinition),
		funcs: make(map[string]ToolFunc),
	}
}

// WithTool 为指定 Agent 注册一个工具及其执行函数
func (m *MockToolRuntime) WithTool(agentID, name string, fn ToolFunc) *MockToolRuntime {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defs[agentID] = append(m.defs[agentID], types.ToolDefinition{
		Name:        name,
		Description: "mock tool " + name,
		InputSchema: json.RawMessage(`{"type":"object"}`),
	})
	m.funcs[name] = fn
	return m
}

// WithToolResult 注册返回固定结果的工具
func (m *MockToolRuntime) WithToolResult(agentID, name, result string) *MockToolRuntime {
	return m.WithTool(agentID, name, func(ctx context.Context, args json.RawMessage) (string, error) {
		return result, nil
	})
}

// WithToolError 注册总是失败的工具
func (m *MockToolRuntime) WithToolError(agentID, name string, err error) *MockToolRuntime {
	return m.WithTool(agentID, name, func(ctx context.Context, args json.RawMessage) (string, error) {
		return "", err
	})
}

// WithEchoTool 注册把参数原样返回的工具
func (m *MockToolRuntime) WithEchoTool(agentID, name string) *MockToolRuntime {
	return m.WithTool(agentID, name, func(ctx context.Context, args json.RawMessage) (string, error) {
		return string(args), nil
	})
}

// --- ToolRuntime 接口实现 ---

// ToolDefsForAgent 返回对指定 Agent 可见的工具定义
func (m *MockToolRuntime) ToolDefsForAgent(agentID string) []types.ToolDefinition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.ToolDefinition(nil), m.defs[agentID]...)
}

// Call 路由一次工具调用。未注册的工具返回协议错误结果。
func (m *MockToolRuntime) Call(ctx context.Context, agentID, callID, toolName string, args json.RawMessage, deadline time.Duration) types.ToolResult {
	m.mu.Lock()
	m.calls = append(m.calls, ToolRuntimeCall{AgentID: agentID, CallID: callID, ToolName: toolName, Args: args})
	fn, ok := m.funcs[toolName]
	m.mu.Unlock()

	result := types.ToolResult{CallID: callID, ToolName: toolName}
	if !ok {
		result.IsError = true
		result.ErrKind = types.ToolErrProtocol
		result.Content = fmt.Sprintf("tool %q is not available", toolName)
		return result
	}

	start := time.Now()
	content, err := fn(ctx, args)
	result.Duration = time.Since(start)
	if err != nil {
		result.IsError = true
		result.ErrKind = types.ToolErrProtocol
		result.Content = err.Error()
		return result
	}
	result.Content = content
	return result
}

// StartAgentServers 记录 Agent 专属服务器启动请求
func (m *MockToolRuntime) StartAgentServers(ctx context.Context, agentID string, specs []types.ToolServerSpec) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, StartedServers{AgentID: agentID, Specs: specs})
}

// StopAgentServers 记录 Agent 专属服务器停止请求
func (m *MockToolRuntime) StopAgentServers(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = append(m.stopped, agentID)
}

// --- 查询方法 ---

// GetCalls 获取所有工具调用记录
func (m *MockToolRuntime) GetCalls() []ToolRuntimeCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ToolRuntimeCall{}, m.calls...)
}

// GetCallsForTool 获取指定工具的调用记录
func (m *MockToolRuntime) GetCallsForTool(name string) []ToolRuntimeCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ToolRuntimeCall
	for _, c := range m.calls {
		if c.ToolName == name {
			out = append(out, c)
		}
	}
	return out
}

// GetStarted 获取服务器启动记录
func (m *MockToolRuntime) GetStarted() []StartedServers {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]StartedServers{}, m.started...)
}

// GetStopped 获取服务器停止记录
func (m *MockToolRuntime) GetStopped() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string{}, m.stopped...)
}

// Reset 重置所有记录
func (m *MockToolRuntime) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.started = nil
	m.stopped = nil
}
