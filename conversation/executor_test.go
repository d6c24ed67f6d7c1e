package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/convoflow/events"
	"github.com/BaSui01/convoflow/llm"
	"github.com/BaSui01/convoflow/testutil/mocks"
	"github.com/BaSui01/convoflow/types"
)

func newTestExecutor(provider llm.Provider, broker ToolBroker, sink events.Sink, opts ExecutorOptions) *TurnExecutor {
	return NewTurnExecutor(map[string]llm.Provider{"alice": provider, "bob": provider}, broker, sink, nil, opts)
}

func TestExecutorPlainTurn(t *testing.T) {
	sink := events.NewCaptureSink()
	provider := mocks.NewSuccessProvider("Tabs are better, and here is why.")
	broker := mocks.NewMockToolRuntime()
	exec := newTestExecutor(provider, broker, sink, ExecutorOptions{})
	st := NewState(testScenario(), []string{"alice", "bob"})

	outcome := exec.ExecuteTurn(context.Background(), testAgent("alice"), st, 0)

	assert.Equal(t, "Tabs are better, and here is why.", outcome.FinalContent)
	assert.False(t, outcome.Skipped)
	assert.False(t, outcome.Cancelled)
	assert.False(t, outcome.Fatal)

	history := st.History()
	require.Len(t, history, 1)
	assert.Equal(t, types.RoleAI, history[0].Role)
	assert.Equal(t, "alice", history[0].Author)

	require.Len(t, sink.ByType(events.EventTurnIndicator), 1)
	msgs := sink.ByType(events.EventAgentMessage)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Tabs are better, and here is why.", msgs[0].Content)
}

func TestExecutorSystemPromptLeadsView(t *testing.T) {
	sink := events.NewCaptureSink()
	provider := mocks.NewSuccessProvider("noted")
	exec := newTestExecutor(provider, mocks.NewMockToolRuntime(), sink, ExecutorOptions{})
	st := NewState(testScenario(), []string{"alice", "bob"})
	require.NoError(t, st.Append(types.NewHumanMessage("alice", "Let's begin.")))
	require.NoError(t, st.AppendCycleMarker(1))

	exec.ExecuteTurn(context.Background(), testAgent("bob"), st, 1)

	call := provider.GetLastCall()
	require.NotNil(t, call)
	view := call.Request.Messages
	require.GreaterOrEqual(t, len(view), 2)
	assert.Equal(t, types.RoleSystem, view[0].Role)
	assert.Equal(t, "You are bob.", view[0].Content)
	// cycle 标记不进入模型视图
	for _, msg := range view {
		assert.NotEqual(t, types.RoleCycleMarker, msg.Role)
	}
}

func TestExecutorThinkingChunksBecomeThoughtEvents(t *testing.T) {
	sink := events.NewCaptureSink()
	provider := mocks.NewSuccessProvider("Final answer.").WithThinking("let me reason about this")
	exec := newTestExecutor(provider, mocks.NewMockToolRuntime(), sink, ExecutorOptions{})
	st := NewState(testScenario(), []string{"alice", "bob"})

	outcome := exec.ExecuteTurn(context.Background(), testAgent("alice"), st, 0)

	assert.Equal(t, "Final answer.", outcome.FinalContent)
	thoughts := sink.ByType(events.EventThought)
	require.NotEmpty(t, thoughts)
	assert.Equal(t, "let me reason about this", thoughts[0].Content)

	// 思考不入史
	for _, msg := range st.History() {
		assert.False(t, msg.IsThought)
		assert.NotContains(t, msg.Content, "let me reason")
	}
}

func TestExecutorInlineThoughtFiltered(t *testing.T) {
	sink := events.NewCaptureSink()
	provider := mocks.NewStreamProvider([]string{"<thi", "nk>secret plan</think>The ", "answer is 42."})
	exec := newTestExecutor(provider, mocks.NewMockToolRuntime(), sink, ExecutorOptions{})
	st := NewState(testScenario(), []string{"alice", "bob"})

	outcome := exec.ExecuteTurn(context.Background(), testAgent("alice"), st, 0)

	assert.Equal(t, "The answer is 42.", outcome.FinalContent)

	var thoughtText string
	for _, e := range sink.ByType(events.EventThought) {
		thoughtText += e.Content
	}
	assert.Equal(t, "secret plan", thoughtText)

	history := st.History()
	require.Len(t, history, 1)
	assert.Equal(t, "The answer is 42.", history[0].Content)
}

func TestExecutorEmptyResponseSkipsTurn(t *testing.T) {
	sink := events.NewCaptureSink()
	provider := mocks.NewSuccessProvider("…")
	exec := newTestExecutor(provider, mocks.NewMockToolRuntime(), sink, ExecutorOptions{})
	st := NewState(testScenario(), []string{"alice", "bob"})

	outcome := exec.ExecuteTurn(context.Background(), testAgent("alice"), st, 0)

	assert.True(t, outcome.Skipped)
	assert.Empty(t, sink.ByType(events.EventAgentMessage))
	assert.Equal(t, 0, st.MessageCount())
}

func TestExecutorToolRoundTrip(t *testing.T) {
	sink := events.NewCaptureSink()
	provider := mocks.NewToolCallProvider([]types.ToolCall{
		{ID: "call-1", Name: "echo", Arguments: json.RawMessage(`{"text":"hi"}`)},
	}, "The tool echoed hi.")
	broker := mocks.NewMockToolRuntime().WithEchoTool("alice", "echo")
	exec := newTestExecutor(provider, broker, sink, ExecutorOptions{})
	st := NewState(testScenario(), []string{"alice", "bob"})

	outcome := exec.ExecuteTurn(context.Background(), testAgent("alice"), st, 0)

	assert.Equal(t, "The tool echoed hi.", outcome.FinalContent)

	history := st.History()
	require.Len(t, history, 3)
	require.Len(t, history[0].ToolCalls, 1)
	assert.Equal(t, "call-1", history[0].ToolCalls[0].ID)
	assert.Equal(t, types.RoleTool, history[1].Role)
	assert.Equal(t, "call-1", history[1].ToolCallID)
	assert.JSONEq(t, `{"text":"hi"}`, history[1].Content)
	assert.Equal(t, types.RoleAI, history[2].Role)

	require.Len(t, broker.GetCalls(), 1)
	assert.Equal(t, "alice", broker.GetCalls()[0].AgentID)
	require.Len(t, sink.ByType(events.EventToolCall), 1)
	require.Len(t, sink.ByType(events.EventToolResult), 1)
}

func TestExecutorToolBatchPreservesOrder(t *testing.T) {
	sink := events.NewCaptureSink()
	provider := mocks.NewToolCallProvider([]types.ToolCall{
		{ID: "call-1", Name: "echo", Arguments: json.RawMessage(`{"n":1}`)},
		{ID: "call-2", Name: "echo", Arguments: json.RawMessage(`{"n":2}`)},
	}, "done")
	broker := mocks.NewMockToolRuntime().WithEchoTool("alice", "echo")
	exec := newTestExecutor(provider, broker, sink, ExecutorOptions{})
	st := NewState(testScenario(), []string{"alice", "bob"})

	exec.ExecuteTurn(context.Background(), testAgent("alice"), st, 0)

	history := st.History()
	require.Len(t, history, 4)
	assert.Equal(t, "call-1", history[1].ToolCallID)
	assert.JSONEq(t, `{"n":1}`, history[1].Content)
	assert.Equal(t, "call-2", history[2].ToolCallID)
	assert.JSONEq(t, `{"n":2}`, history[2].Content)
}

func TestExecutorToolErrorFoldsIntoResult(t *testing.T) {
	sink := events.NewCaptureSink()
	provider := mocks.NewToolCallProvider([]types.ToolCall{
		{ID: "call-1", Name: "broken", Arguments: json.RawMessage(`{}`)},
	}, "the tool failed, moving on")
	broker := mocks.NewMockToolRuntime().WithToolError("alice", "broken", fmt.Errorf("disk on fire"))
	exec := newTestExecutor(provider, broker, sink, ExecutorOptions{})
	st := NewState(testScenario(), []string{"alice", "bob"})

	outcome := exec.ExecuteTurn(context.Background(), testAgent("alice"), st, 0)

	assert.Equal(t, "the tool failed, moving on", outcome.FinalContent)
	history := st.History()
	require.Len(t, history, 3)
	assert.Equal(t, "disk on fire", history[1].Content)
}

func TestExecutorIterationLimitRefusesPendingCalls(t *testing.T) {
	sink := events.NewCaptureSink()
	var round atomic.Int64
	provider := mocks.NewMockProvider().WithStreamFunc(func(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
		n := round.Add(1)
		ch := make(chan llm.StreamChunk, 1)
		if n <= 3 {
			ch <- llm.StreamChunk{Done: true, ToolCalls: []types.ToolCall{
				{ID: fmt.Sprintf("call-%d", n), Name: "probe", Arguments: json.RawMessage(`{}`)},
			}}
		} else {
			ch <- llm.StreamChunk{Content: "answering without tools now"}
		}
		close(ch)
		return ch, nil
	})
	broker := mocks.NewMockToolRuntime().WithToolResult("alice", "probe", "probe result")
	exec := newTestExecutor(provider, broker, sink, ExecutorOptions{MaxToolIterations: 2})
	st := NewState(testScenario(), []string{"alice", "bob"})

	outcome := exec.ExecuteTurn(context.Background(), testAgent("alice"), st, 0)

	assert.Equal(t, "answering without tools now", outcome.FinalContent)
	// 前两批真正执行，第三批合成拒绝结果
	assert.Len(t, broker.GetCalls(), 2)

	history := st.History()
	require.Len(t, history, 7)
	assert.Equal(t, iterationLimitContent, history[5].Content)
	assert.Equal(t, "call-3", history[5].ToolCallID)
}

func TestExecutorTurnTimeoutSynthesizesMessage(t *testing.T) {
	sink := events.NewCaptureSink()
	provider := mocks.NewSuccessProvider("too slow").WithDelay(200 * time.Millisecond)
	exec := newTestExecutor(provider, mocks.NewMockToolRuntime(), sink, ExecutorOptions{})
	sc := testScenario()
	sc.TurnTimeout = 30 * time.Millisecond
	st := NewState(sc, []string{"alice", "bob"})

	outcome := exec.ExecuteTurn(context.Background(), testAgent("alice"), st, 0)

	assert.Equal(t, timedOutContent, outcome.FinalContent)
	assert.False(t, outcome.Cancelled)

	history := st.History()
	require.Len(t, history, 1)
	assert.Equal(t, timedOutContent, history[0].Content)

	errs := sink.ByType(events.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, events.ErrorKindTimeout, errs[0].Kind)
	require.Len(t, sink.ByType(events.EventAgentMessage), 1)
}

func TestExecutorCancellation(t *testing.T) {
	sink := events.NewCaptureSink()
	provider := mocks.NewSuccessProvider("never delivered").WithDelay(time.Second)
	exec := newTestExecutor(provider, mocks.NewMockToolRuntime(), sink, ExecutorOptions{})
	st := NewState(testScenario(), []string{"alice", "bob"})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	outcome := exec.ExecuteTurn(ctx, testAgent("alice"), st, 0)

	assert.True(t, outcome.Cancelled)
	assert.Equal(t, 0, st.MessageCount())
	assert.Empty(t, sink.ByType(events.EventAgentMessage))
}

func TestExecutorEndpointErrorsAreFatal(t *testing.T) {
	cases := []struct {
		name string
		code types.ErrorCode
		kind string
	}{
		{"unreachable", types.ErrEndpointUnreachable, events.ErrorKindEndpointUnreachable},
		{"model missing", types.ErrModelNotFound, events.ErrorKindModelNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sink := events.NewCaptureSink()
			provider := mocks.NewErrorProvider(types.NewError(tc.code, "endpoint says no"))
			exec := newTestExecutor(provider, mocks.NewMockToolRuntime(), sink, ExecutorOptions{})
			st := NewState(testScenario(), []string{"alice", "bob"})

			outcome := exec.ExecuteTurn(context.Background(), testAgent("alice"), st, 0)

			assert.True(t, outcome.Fatal)
			assert.Contains(t, outcome.FinalContent, "model unavailable")
			errs := sink.ByType(events.EventError)
			require.Len(t, errs, 1)
			assert.Equal(t, tc.kind, errs[0].Kind)
		})
	}
}

func TestExecutorMalformedResponseSkips(t *testing.T) {
	sink := events.NewCaptureSink()
	provider := mocks.NewErrorProvider(types.NewError(types.ErrMalformedResponse, "bad json from endpoint"))
	exec := newTestExecutor(provider, mocks.NewMockToolRuntime(), sink, ExecutorOptions{})
	st := NewState(testScenario(), []string{"alice", "bob"})

	outcome := exec.ExecuteTurn(context.Background(), testAgent("alice"), st, 0)

	assert.True(t, outcome.Skipped)
	assert.False(t, outcome.Fatal)
	errs := sink.ByType(events.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, events.ErrorKindProtocol, errs[0].Kind)
}

func TestExecutorMissingProviderSkips(t *testing.T) {
	sink := events.NewCaptureSink()
	exec := NewTurnExecutor(map[string]llm.Provider{}, mocks.NewMockToolRuntime(), sink, nil, ExecutorOptions{})
	st := NewState(testScenario(), []string{"alice", "bob"})

	outcome := exec.ExecuteTurn(context.Background(), testAgent("alice"), st, 0)
	assert.True(t, outcome.Skipped)
}
