// MockProvider 的 LLM 提供商测试模拟实现。
//
// 支持固定响应、流式输出、思考片段、工具调用与错误注入场景。
package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BaSui01/convoflow/llm"
	"github.com/BaSui01/convoflow/types"
)

// --- MockProvider 结构 ---

// MockProvider 是 llm.Provider 的模拟实现
type MockProvider struct {
	mu sync.RWMutex

	// 响应配置
	response     string
	thinking     string
	streamChunks []string
	toolCalls    []types.ToolCall
	err          error

	// Token 使用统计
	promptTokens     int
	completionTokens int

	// 调用记录
	calls      []MockProviderCall
	streamFunc func(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error)

	// 行为控制
	delay     time.Duration
	failAfter int
	callCount int
	models    []string
}

// MockProviderCall 记录单次调用
type MockProviderCall struct {
	Request *llm.ChatRequest
	Error   error
}

// --- 构造函数和 Builder 方法 ---

// NewMockProvider 创建新的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{
		response:         "Mock response",
		promptTokens:     10,
		completionTokens: 20,
		models:           []string{"mock-model"},
	}
}

// WithResponse 设置固定响应内容
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithThinking 设置思考片段，在内容之前以 Thinking chunk 发出
func (m *MockProvider) WithThinking(thinking string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thinking = thinking
	return m
}

// WithError 设置返回错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithStreamChunks 设置流式响应块
func (m *MockProvider) WithStreamChunks(chunks []string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamChunks = chunks
	return m
}

// WithToolCalls 设置首次调用返回的工具调用；后续调用返回普通响应
func (m *MockProvider) WithToolCalls(toolCalls []types.ToolCall) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toolCalls = toolCalls
	return m
}

// WithTokenUsage 设置 Token 使用量
func (m *MockProvider) WithTokenUsage(prompt, completion int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promptTokens = prompt
	m.completionTokens = completion
	return m
}

// WithDelay 设置每次调用前的模拟延迟
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithFailAfter 设置在第 N 次调用后失败
func (m *MockProvider) WithFailAfter(n int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// WithModels 设置 HealthCheck 报告的已安装模型列表
func (m *MockProvider) WithModels(models ...string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.models = models
	return m
}

// WithStreamFunc 设置自定义 Stream 函数，完全接管流式行为
func (m *MockProvider) WithStreamFunc(fn func(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamFunc = fn
	return m
}

// --- Provider 接口实现 ---

// Name 返回 Provider 名称
func (m *MockProvider) Name() string {
	return "mock"
}

// HealthCheck 执行健康检查
func (m *MockProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	return &llm.HealthStatus{
		Healthy: true,
		Latency: 10 * time.Millisecond,
		Models:  append([]string(nil), m.models...),
	}, nil
}

// HasModel 检查模型是否在已安装列表中
func (m *MockProvider) HasModel(ctx context.Context, model string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return false, m.err
	}
	for _, have := range m.models {
		if have == model {
			return true, nil
		}
	}
	return false, nil
}

// Completion 生成完整响应
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	content, thinking, toolCalls, usage, err := m.nextRound(req)
	if err != nil {
		return nil, err
	}
	if err := m.sleep(ctx); err != nil {
		return nil, err
	}

	msg := types.NewAIMessage("mock", content)
	if len(toolCalls) > 0 {
		msg = msg.WithToolCalls(toolCalls)
	}
	return &llm.ChatResponse{
		Provider:  "mock",
		Model:     req.Model,
		Message:   msg,
		Thinking:  thinking,
		Usage:     usage,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Stream 流式生成响应
func (m *MockProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	m.mu.RLock()
	fn := m.streamFunc
	m.mu.RUnlock()
	if fn != nil {
		m.recordCall(req, nil)
		return fn(ctx, req)
	}

	content, thinking, toolCalls, usage, err := m.nextRound(req)
	if err != nil {
		return nil, err
	}
	if err := m.sleep(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	pieces := append([]string(nil), m.streamChunks...)
	m.mu.RUnlock()
	if len(pieces) == 0 {
		pieces = []string{content}
	}

	ch := make(chan llm.StreamChunk, len(pieces)+2)
	go func() {
		defer close(ch)
		if thinking != "" {
			select {
			case <-ctx.Done():
				return
			case ch <- llm.StreamChunk{Provider: "mock", Model: req.Model, Thinking: thinking}:
			}
		}
		for _, piece := range pieces {
			select {
			case <-ctx.Done():
				return
			case ch <- llm.StreamChunk{Provider: "mock", Model: req.Model, Content: piece}:
			}
		}
		final := llm.StreamChunk{Provider: "mock", Model: req.Model, Done: true, Usage: &usage}
		final.ToolCalls = toolCalls
		select {
		case <-ctx.Done():
		case ch <- final:
		}
	}()
	return ch, nil
}

// nextRound 计算本次调用的响应内容并记录调用。
// 工具调用只在首次调用返回，模拟 调用→结果→总结 的往返。
func (m *MockProvider) nextRound(req *llm.ChatRequest) (content, thinking string, toolCalls []types.ToolCall, usage llm.ChatUsage, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCount++
	usage = llm.ChatUsage{
		PromptTokens:     m.promptTokens,
		CompletionTokens: m.completionTokens,
		TotalTokens:      m.promptTokens + m.completionTokens,
	}

	if m.failAfter > 0 && m.callCount > m.failAfter {
		err = errors.New("mock provider: configured to fail after N calls")
		m.calls = append(m.calls, MockProviderCall{Request: req, Error: err})
		return
	}
	if m.err != nil {
		err = m.err
		m.calls = append(m.calls, MockProviderCall{Request: req, Error: err})
		return
	}

	content = m.response
	thinking = m.thinking
	if len(m.toolCalls) > 0 && m.callCount == 1 {
		toolCalls = append([]types.ToolCall(nil), m.toolCalls...)
		content = ""
	}
	m.calls = append(m.calls, MockProviderCall{Request: req})
	return
}

func (m *MockProvider) recordCall(req *llm.ChatRequest, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount++
	m.calls = append(m.calls, MockProviderCall{Request: req, Error: err})
}

func (m *MockProvider) sleep(ctx context.Context) error {
	m.mu.RLock()
	d := m.delay
	m.mu.RUnlock()
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// --- 查询方法 ---

// GetCalls 获取所有调用记录
func (m *MockProvider) GetCalls() []MockProviderCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MockProviderCall{}, m.calls...)
}

// GetCallCount 获取调用次数
func (m *MockProvider) GetCallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCount
}

// GetLastCall 获取最后一次调用
func (m *MockProvider) GetLastCall() *MockProviderCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.calls) == 0 {
		return nil
	}
	call := m.calls[len(m.calls)-1]
	return &call
}

// Reset 重置调用记录与计数
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.callCount = 0
	m.err = nil
}

// --- 预设 Provider 工厂 ---

// NewSuccessProvider 创建总是成功的 Provider
func NewSuccessProvider(response string) *MockProvider {
	return NewMockProvider().WithResponse(response)
}

// NewErrorProvider 创建总是失败的 Provider
func NewErrorProvider(err error) *MockProvider {
	return NewMockProvider().WithError(err)
}

// NewToolCallProvider 创建先返回工具调用再返回总结的 Provider
func NewToolCallProvider(toolCalls []types.ToolCall, summary string) *MockProvider {
	return NewMockProvider().WithToolCalls(toolCalls).WithResponse(summary)
}

// NewStreamProvider 创建流式响应的 Provider
func NewStreamProvider(chunks []string) *MockProvider {
	return NewMockProvider().WithStreamChunks(chunks)
}

// NewFlakeyProvider 创建在第 N 次调用后开始失败的 Provider
func NewFlakeyProvider(failAfter int, response string) *MockProvider {
	return NewMockProvider().
		WithResponse(response).
		WithFailAfter(failAfter)
}
