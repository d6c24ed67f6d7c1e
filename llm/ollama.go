// =============================================================================
// 🦙 Ollama Provider
// =============================================================================
// 通过 /api/chat 与本地或远端 Ollama 端点交互，流式为 NDJSON。
// /api/tags 用于探活与模型存在性检查。
// =============================================================================

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/convoflow/types"
)

const defaultOllamaTimeout = 300 * time.Second

// OllamaProvider 实现 Provider 接口
type OllamaProvider struct {
	endpoint types.ModelEndpoint
	client   *http.Client
	logger   *zap.Logger
}

// NewOllamaProvider 创建 Ollama 提供者实例
func NewOllamaProvider(endpoint types.ModelEndpoint, logger *zap.Logger) *OllamaProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := endpoint.Timeout
	if timeout == 0 {
		timeout = defaultOllamaTimeout
	}
	return &OllamaProvider{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With(zap.String("component", "ollama_provider")),
	}
}

// Name 返回 Provider 标识
func (p *OllamaProvider) Name() string { return "ollama" }

// --- Ollama 报文类型 ---

type ollamaToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	Thinking  string           `json:"thinking,omitempty"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		Parameters  json.RawMessage `json:"parameters,omitempty"`
	} `json:"function"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Think    bool            `json:"think,omitempty"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model           string        `json:"model"`
	CreatedAt       time.Time     `json:"created_at"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason,omitempty"`
	PromptEvalCount int           `json:"prompt_eval_count,omitempty"`
	EvalCount       int           `json:"eval_count,omitempty"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// --- 请求构造 ---

func toOllamaRole(r types.Role) string {
	switch r {
	case types.RoleSystem:
		return "system"
	case types.RoleHuman:
		return "user"
	case types.RoleAI:
		return "assistant"
	case types.RoleTool:
		return "tool"
	default:
		return string(r)
	}
}

func (p *OllamaProvider) buildRequest(req *ChatRequest, stream bool) ollamaChatRequest {
	msgs := make([]ollamaMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		om := ollamaMessage{Role: toOllamaRole(m.Role), Content: m.Content}
		for _, tc := range m.ToolCalls {
			var otc ollamaToolCall
			otc.Function.Name = tc.Name
			otc.Function.Arguments = tc.Arguments
			om.ToolCalls = append(om.ToolCalls, otc)
		}
		msgs = append(msgs, om)
	}

	tools := make([]ollamaTool, 0, len(req.Tools))
	for _, t := range req.Tools {
		var ot ollamaTool
		ot.Type = "function"
		ot.Function.Name = t.Name
		ot.Function.Description = t.Description
		ot.Function.Parameters = t.InputSchema
		tools = append(tools, ot)
	}

	model := req.Model
	if model == "" {
		model = p.endpoint.ModelName
	}
	options := req.Options
	if options == nil {
		options = p.endpoint.Parameters
	}

	return ollamaChatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   stream,
		Think:    req.Think,
		Tools:    tools,
		Options:  options,
	}
}

func (p *OllamaProvider) post(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	url := strings.TrimRight(p.endpoint.URL, "/") + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err, p.Name())
	}
	return resp, nil
}

// --- Provider 接口实现 ---

// Completion 发起同步聊天请求
func (p *OllamaProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	resp, err := p.post(ctx, "/api/chat", p.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mapHTTPError(resp.StatusCode, resp.Body, p.Name())
	}

	var or ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		return nil, types.NewError(types.ErrMalformedResponse, "failed to decode chat response").
			WithCause(err).
			WithProvider(p.Name())
	}

	return p.toChatResponse(or), nil
}

// Stream 发起流式聊天请求，逐行解析 NDJSON。
func (p *OllamaProvider) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	var cancel context.CancelFunc = func() {}
	if req.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
	}

	resp, err := p.post(ctx, "/api/chat", p.buildRequest(req, true))
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		defer cancel()
		return nil, mapHTTPError(resp.StatusCode, resp.Body, p.Name())
	}

	ch := make(chan StreamChunk)
	go func() {
		defer cancel()
		defer resp.Body.Close()
		defer close(ch)

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var or ollamaChatResponse
			if err := json.Unmarshal(line, &or); err != nil {
				p.emit(ctx, ch, StreamChunk{
					Provider: p.Name(),
					Err: types.NewError(types.ErrMalformedResponse, "failed to decode stream chunk").
						WithCause(err).
						WithProvider(p.Name()),
				})
				return
			}

			chunk := StreamChunk{
				Provider:  p.Name(),
				Model:     or.Model,
				Content:   or.Message.Content,
				Thinking:  or.Message.Thinking,
				ToolCalls: toToolCalls(or.Message.ToolCalls),
				Done:      or.Done,
			}
			if or.Done {
				chunk.Usage = &ChatUsage{
					PromptTokens:     or.PromptEvalCount,
					CompletionTokens: or.EvalCount,
					TotalTokens:      or.PromptEvalCount + or.EvalCount,
				}
			}
			if !p.emit(ctx, ch, chunk) {
				return
			}
			if or.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			p.emit(ctx, ch, StreamChunk{Provider: p.Name(), Err: classifyTransportError(err, p.Name())})
		}
	}()
	return ch, nil
}

func (p *OllamaProvider) emit(ctx context.Context, ch chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- chunk:
		return true
	}
}

// HealthCheck 通过 /api/tags 探测端点可达性
func (p *OllamaProvider) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	start := time.Now()
	models, err := p.listModels(ctx)
	if err != nil {
		return &HealthStatus{Healthy: false, Latency: time.Since(start)}, err
	}
	return &HealthStatus{Healthy: true, Latency: time.Since(start), Models: models}, nil
}

// HasModel 检查模型是否已安装。
// 配置名不含 tag 时按 "name:" 前缀匹配，llama2 命中 llama2:latest。
func (p *OllamaProvider) HasModel(ctx context.Context, model string) (bool, error) {
	models, err := p.listModels(ctx)
	if err != nil {
		return false, err
	}
	for _, installed := range models {
		if installed == model || strings.HasPrefix(installed, model+":") {
			return true, nil
		}
	}
	return false, nil
}

func (p *OllamaProvider) listModels(ctx context.Context) ([]string, error) {
	url := strings.TrimRight(p.endpoint.URL, "/") + "/api/tags"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err, p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mapHTTPError(resp.StatusCode, resp.Body, p.Name())
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, types.NewError(types.ErrMalformedResponse, "failed to decode tags response").
			WithCause(err).
			WithProvider(p.Name())
	}

	out := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		out = append(out, m.Name)
	}
	return out, nil
}

// --- 响应转换 ---

func toToolCalls(calls []ollamaToolCall) []types.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]types.ToolCall, 0, len(calls))
	for i, tc := range calls {
		out = append(out, types.ToolCall{
			ID:        fmt.Sprintf("call_%d", i),
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}

func (p *OllamaProvider) toChatResponse(or ollamaChatResponse) *ChatResponse {
	msg := types.NewAIMessage("", or.Message.Content)
	msg.ToolCalls = toToolCalls(or.Message.ToolCalls)
	return &ChatResponse{
		Provider:  p.Name(),
		Model:     or.Model,
		Message:   msg,
		Thinking:  or.Message.Thinking,
		CreatedAt: or.CreatedAt,
		Usage: ChatUsage{
			PromptTokens:     or.PromptEvalCount,
			CompletionTokens: or.EvalCount,
			TotalTokens:      or.PromptEvalCount + or.EvalCount,
		},
	}
}
