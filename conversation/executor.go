package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/convoflow/events"
	"github.com/BaSui01/convoflow/llm"
	"github.com/BaSui01/convoflow/thought"
	"github.com/BaSui01/convoflow/types"
)

// 超时与模型不可用时写入历史的合成消息文本
const (
	timedOutContent       = "[agent timed out]"
	iterationLimitContent = "tool iteration limit reached; respond without calling tools"
)

// resultPreviewLimit 工具结果事件的内容截断长度
const resultPreviewLimit = 200

// ToolBroker 工具调用路由，mcp.Registry 实现
type ToolBroker interface {
	ToolDefsForAgent(agentID string) []types.ToolDefinition
	Call(ctx context.Context, agentID, callID, toolName string, args json.RawMessage, deadline time.Duration) types.ToolResult
}

// TurnOutcome 一轮执行的结果
type TurnOutcome struct {
	// FinalContent 本轮最终发言（净化后）。超时轮是合成文本。
	FinalContent string
	// Skipped 内容无实质，未入史也未发 agent_message
	Skipped bool
	// Cancelled 会话级取消打断了本轮，调用方不推进轮转
	Cancelled bool
	// Fatal 模型端点不可用，整个会话应以 agent_error 终止
	Fatal bool
}

// ExecutorOptions 单轮执行调优参数
type ExecutorOptions struct {
	// MaxToolIterations 单轮内工具调用循环上限
	MaxToolIterations int
	// ToolCallTimeout 单次工具调用超时
	ToolCallTimeout time.Duration
}

// TurnExecutor 执行单个 Agent 的一轮发言：构造该 Agent 的消息视图、
// 经思考过滤器流式调用模型、解析工具调用循环、把最终发言写回状态。
type TurnExecutor struct {
	providers map[string]llm.Provider
	broker    ToolBroker
	sink      events.Sink
	logger    *zap.Logger

	maxToolIterations int
	toolCallTimeout   time.Duration
}

// NewTurnExecutor 创建执行器。providers 以 agent id 为键。
func NewTurnExecutor(providers map[string]llm.Provider, broker ToolBroker, sink events.Sink, logger *zap.Logger, opts ExecutorOptions) *TurnExecutor {
	if sink == nil {
		sink = events.NopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxToolIterations <= 0 {
		opts.MaxToolIterations = 8
	}
	if opts.ToolCallTimeout <= 0 {
		opts.ToolCallTimeout = 30 * time.Second
	}
	return &TurnExecutor{
		providers:         providers,
		broker:            broker,
		sink:              sink,
		logger:            logger.With(zap.String("component", "turn_executor")),
		maxToolIterations: opts.MaxToolIterations,
		toolCallTimeout:   opts.ToolCallTimeout,
	}
}

// ExecuteTurn 执行一轮。ctx 是会话级取消域；轮超时嵌套其下。
func (e *TurnExecutor) ExecuteTurn(ctx context.Context, agent types.Agent, st *State, cycle int) TurnOutcome {
	e.sink.Publish(events.NewTurnIndicator(agent.ID))

	turnTimeout := st.Scenario().TurnTimeout
	if turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, turnTimeout)
		defer cancel()
	}

	provider, ok := e.providers[agent.ID]
	if !ok {
		e.logger.Error("no provider bound", zap.String("agent_id", agent.ID))
		return TurnOutcome{Skipped: true}
	}

	view := e.buildView(agent, st)
	toolDefs := e.broker.ToolDefsForAgent(agent.ID)

	for iteration := 0; ; iteration++ {
		bound := toolDefs
		if iteration >= e.maxToolIterations {
			bound = nil
		}

		content, toolCalls, err := e.modelRound(ctx, provider, agent, view, bound)
		if err != nil {
			return e.handleModelError(ctx, err, agent, st, cycle)
		}

		if len(toolCalls) == 0 {
			return e.finishTurn(agent, st, cycle, content)
		}

		aiMsg := types.NewAIMessage(agent.ID, content).WithToolCalls(toolCalls).WithCycle(cycle)
		if appendErr := st.Append(aiMsg); appendErr != nil {
			return TurnOutcome{Cancelled: true}
		}
		view = append(view, aiMsg)

		var toolMsgs []types.Message
		if iteration >= e.maxToolIterations {
			toolMsgs = e.refuseToolCalls(toolCalls)
		} else {
			toolMsgs = e.runToolBatch(ctx, agent, toolCalls)
		}
		for _, msg := range toolMsgs {
			msg = msg.WithCycle(cycle)
			if appendErr := st.Append(msg); appendErr != nil {
				return TurnOutcome{Cancelled: true}
			}
			view = append(view, msg)
		}
	}
}

// buildView 该 Agent 的模型视图：自身系统提示 + 共享历史。
// 思考不入史；cycle 标记与他人的系统消息不进入视图。
func (e *TurnExecutor) buildView(agent types.Agent, st *State) []types.Message {
	history := st.History()
	view := make([]types.Message, 0, len(history)+1)
	view = append(view, types.NewSystemMessage(agent.ID, agent.RenderedSystemPrompt))
	for _, msg := range history {
		switch msg.Role {
		case types.RoleHuman, types.RoleAI, types.RoleTool:
			view = append(view, msg)
		}
	}
	return view
}

// modelRound 单次流式模型调用，思考 token 边到边发布
func (e *TurnExecutor) modelRound(ctx context.Context, provider llm.Provider, agent types.Agent, view []types.Message, tools []types.ToolDefinition) (string, []types.ToolCall, error) {
	filter := thought.NewFilter(nil, thought.Options{
		ThinkingEnabled: agent.ThinkingEnabled,
		OnThought: func(chunk string) {
			e.sink.Publish(events.NewThought(agent.ID, chunk))
		},
	})

	req := &llm.ChatRequest{
		Model:    agent.ModelEndpoint.ModelName,
		Messages: view,
		Tools:    tools,
		Think:    agent.ThinkingEnabled,
		Options:  agent.ModelEndpoint.Parameters,
	}

	ch, err := provider.Stream(ctx, req)
	if err != nil {
		return "", nil, err
	}

	var toolCalls []types.ToolCall
	for chunk := range ch {
		if chunk.Err != nil {
			return "", nil, chunk.Err
		}
		if chunk.Thinking != "" {
			e.sink.Publish(events.NewThought(agent.ID, chunk.Thinking))
		}
		if chunk.Content != "" {
			filter.Feed(chunk.Content)
		}
		toolCalls = append(toolCalls, chunk.ToolCalls...)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", nil, ctxErr
	}

	filter.Flush()
	return filter.Response(), toolCalls, nil
}

// finishTurn 无工具调用的收尾：实质内容入史并广播，空内容跳过本轮发言
func (e *TurnExecutor) finishTurn(agent types.Agent, st *State, cycle int, content string) TurnOutcome {
	if !thought.IsSubstantive(content) {
		e.logger.Debug("empty response, skipping utterance", zap.String("agent_id", agent.ID))
		return TurnOutcome{FinalContent: content, Skipped: true}
	}

	msg := types.NewAIMessage(agent.ID, content).WithCycle(cycle)
	if err := st.Append(msg); err != nil {
		return TurnOutcome{Cancelled: true}
	}
	e.sink.Publish(events.NewAgentMessage(agent.ID, agent.DisplayName, content, cycle))
	return TurnOutcome{FinalContent: content}
}

// runToolBatch 并发执行一批工具调用，结果按调用顺序回填
func (e *TurnExecutor) runToolBatch(ctx context.Context, agent types.Agent, calls []types.ToolCall) []types.Message {
	results := make([]types.ToolResult, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		e.sink.Publish(events.NewToolCall(agent.ID, call.Name, call.Arguments))
		g.Go(func() error {
			results[i] = e.broker.Call(gctx, agent.ID, call.ID, call.Name, call.Arguments, e.toolCallTimeout)
			return nil
		})
	}
	_ = g.Wait()

	msgs := make([]types.Message, 0, len(calls))
	for i, call := range calls {
		result := results[i]
		e.sink.Publish(events.NewToolResult(call.Name, preview(result.Content), result.Duration))
		msgs = append(msgs, types.NewToolMessage(call.ID, call.Name, result.Content))
	}
	return msgs
}

// refuseToolCalls 迭代超限后为挂起的调用合成错误结果，保持调用与结果一一对应
func (e *TurnExecutor) refuseToolCalls(calls []types.ToolCall) []types.Message {
	msgs := make([]types.Message, 0, len(calls))
	for _, call := range calls {
		msgs = append(msgs, types.NewToolMessage(call.ID, call.Name, iterationLimitContent))
	}
	return msgs
}

// handleModelError 把模型调用失败折叠为状态与事件
func (e *TurnExecutor) handleModelError(ctx context.Context, err error, agent types.Agent, st *State, cycle int) TurnOutcome {
	code := types.GetErrorCode(err)

	switch {
	case errors.Is(err, context.Canceled):
		return TurnOutcome{Cancelled: true}

	case code == types.ErrInvocationTimeout || errors.Is(err, context.DeadlineExceeded):
		// 会话级取消也会关闭轮超时上下文，区分后者避免误报超时
		if ctx.Err() == nil || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			msg := types.NewAIMessage(agent.ID, timedOutContent).WithCycle(cycle)
			if appendErr := st.Append(msg); appendErr != nil {
				return TurnOutcome{Cancelled: true}
			}
			e.sink.Publish(events.NewError(events.ErrorKindTimeout, agent.ID, "turn deadline exceeded"))
			e.sink.Publish(events.NewAgentMessage(agent.ID, agent.DisplayName, timedOutContent, cycle))
			return TurnOutcome{FinalContent: timedOutContent}
		}
		return TurnOutcome{Cancelled: true}

	case code == types.ErrEndpointUnreachable || code == types.ErrModelNotFound:
		content := fmt.Sprintf("[model unavailable: %v]", err)
		msg := types.NewAIMessage(agent.ID, content).WithCycle(cycle)
		_ = st.Append(msg)
		kind := events.ErrorKindEndpointUnreachable
		if code == types.ErrModelNotFound {
			kind = events.ErrorKindModelNotFound
		}
		e.sink.Publish(events.NewError(kind, agent.ID, err.Error()))
		return TurnOutcome{FinalContent: content, Fatal: true}

	case code == types.ErrMalformedResponse:
		e.sink.Publish(events.NewError(events.ErrorKindProtocol, agent.ID, err.Error()))
		return TurnOutcome{Skipped: true}

	default:
		e.logger.Error("model call failed", zap.String("agent_id", agent.ID), zap.Error(err))
		e.sink.Publish(events.NewError(events.ErrorKindInternal, agent.ID, err.Error()))
		return TurnOutcome{Skipped: true}
	}
}

func preview(s string) string {
	runes := []rune(s)
	if len(runes) <= resultPreviewLimit {
		return s
	}
	return string(runes[:resultPreviewLimit]) + "..."
}
