package mocks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/convoflow/llm"
	"github.com/BaSui01/convoflow/testutil"
	"github.com/BaSui01/convoflow/testutil/fixtures"
	"github.com/BaSui01/convoflow/types"
)

func chatRequest() *llm.ChatRequest {
	return &llm.ChatRequest{
		Model:    "llama2",
		Messages: []types.Message{types.NewHumanMessage("user", "hi")},
	}
}

func TestMockProviderCompletion(t *testing.T) {
	p := NewSuccessProvider("a fixed answer")

	resp, err := p.Completion(testutil.TestContext(t), chatRequest())
	require.NoError(t, err)
	assert.Equal(t, "a fixed answer", resp.Message.Content)
	assert.Equal(t, types.RoleAI, resp.Message.Role)
	assert.Equal(t, 30, resp.Usage.TotalTokens)

	require.Len(t, p.GetCalls(), 1)
	assert.Equal(t, 1, p.GetCallCount())
}

func TestMockProviderStreamAssemblesChunks(t *testing.T) {
	p := NewStreamProvider([]string{"Hel", "lo ", "there"})

	ch, err := p.Stream(testutil.TestContext(t), chatRequest())
	require.NoError(t, err)
	assert.Equal(t, "Hello there", testutil.CollectStreamContent(ch))
}

func TestMockProviderStreamEmitsThinkingFirst(t *testing.T) {
	p := NewSuccessProvider("answer").WithThinking("pondering")

	ch, err := p.Stream(testutil.TestContext(t), chatRequest())
	require.NoError(t, err)

	first, ok := testutil.WaitForChannel(ch, time.Second)
	require.True(t, ok)
	assert.Equal(t, "pondering", first.Thinking)

	chunks := testutil.CollectStreamChunks(ch)
	require.NotEmpty(t, chunks)
	assert.True(t, chunks[len(chunks)-1].Done)
}

func TestMockProviderToolCallsOnFirstRoundOnly(t *testing.T) {
	call := fixtures.CalculatorCall("call-1", 2, 3, "add")
	p := NewToolCallProvider([]types.ToolCall{call}, "the sum is 5")
	ctx := testutil.TestContext(t)

	first, err := p.Completion(ctx, chatRequest())
	require.NoError(t, err)
	require.Len(t, first.Message.ToolCalls, 1)
	assert.Empty(t, first.Message.Content)

	args := testutil.MustParseJSON[map[string]any](string(first.Message.ToolCalls[0].Arguments))
	assert.Equal(t, "add", args["op"])

	second, err := p.Completion(ctx, chatRequest())
	require.NoError(t, err)
	assert.Empty(t, second.Message.ToolCalls)
	assert.Equal(t, "the sum is 5", second.Message.Content)
}

func TestMockProviderStreamFuncTakesOver(t *testing.T) {
	scripted := fixtures.StreamOf("scripted output", 6)
	p := NewMockProvider().WithStreamFunc(
		func(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
			return testutil.ChunkChannel(scripted), nil
		})

	ch, err := p.Stream(testutil.TestContext(t), chatRequest())
	require.NoError(t, err)

	chunks := testutil.CollectStreamChunks(ch)
	require.Len(t, chunks, len(scripted))
	assert.True(t, chunks[len(chunks)-1].Done)
}

func TestMockProviderDelayRespectsCancellation(t *testing.T) {
	p := NewSuccessProvider("slow").WithDelay(5 * time.Second)

	_, err := p.Completion(testutil.CancelledContext(), chatRequest())
	require.Error(t, err)
}

func TestMockProviderFailAfter(t *testing.T) {
	p := NewFlakeyProvider(1, "works once")
	ctx := testutil.TestContext(t)

	_, err := p.Completion(ctx, chatRequest())
	require.NoError(t, err)

	_, err = p.Completion(ctx, chatRequest())
	require.Error(t, err)
}

func TestMockProviderErrorInjection(t *testing.T) {
	boom := errors.New("boom")
	p := NewErrorProvider(boom)

	_, err := p.Completion(testutil.TestContext(t), chatRequest())
	assert.ErrorIs(t, err, boom)

	_, err = p.HealthCheck(testutil.TestContext(t))
	assert.ErrorIs(t, err, boom)
}

func TestMockProviderHasModel(t *testing.T) {
	p := NewMockProvider().WithModels("llama2", "mistral")
	ctx := testutil.TestContext(t)

	ok, err := p.HasModel(ctx, "mistral")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.HasModel(ctx, "phi3")
	require.NoError(t, err)
	assert.False(t, ok)
}
