package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/convoflow/config"
	"github.com/BaSui01/convoflow/conversation"
	"github.com/BaSui01/convoflow/llm"
	"github.com/BaSui01/convoflow/testutil/mocks"
	"github.com/BaSui01/convoflow/types"
)

// testConfig 两个 Agent 加单场景的最小配置
func testConfig() *config.Config {
	return &config.Config{
		Agents: map[string]config.AgentConfig{
			"alice": {
				Name:    "Alice",
				Persona: "A pragmatic engineer who values simplicity.",
				Model: config.ModelConfig{
					Provider:  "ollama",
					URL:       "http://localhost:11434",
					ModelName: "llama2",
				},
			},
			"bob": {
				Name:    "Bob",
				Persona: "A careful reviewer who asks hard questions.",
				Model: config.ModelConfig{
					Provider:  "ollama",
					URL:       "http://localhost:11434",
					ModelName: "mistral",
				},
			},
		},
		Conversation: &config.ScenarioConfig{
			Name:          "debate",
			Goal:          "settle the tabs versus spaces question",
			StartingAgent: "alice",
			MaxCycles:     2,
			FirstMessage:  "Let's begin.",
		},
		Engine: config.EngineConfig{
			MaxToolIterations: 8,
			ToolCallTimeout:   time.Second,
		},
	}
}

func staticProviderFactory(provider llm.Provider) conversation.ProviderFactory {
	return func(types.ModelEndpoint, *zap.Logger) llm.Provider { return provider }
}

func newTestOrchestrator(t *testing.T, provider llm.Provider) *conversation.Orchestrator {
	t.Helper()
	if provider == nil {
		provider = mocks.NewSuccessProvider("I see your point.")
	}
	return conversation.NewOrchestrator(testConfig(), mocks.NewMockToolRuntime(),
		nil, zap.NewNop(), staticProviderFactory(provider))
}

// jsonUnmarshal 解裸 JSON 响应（healthz 不走统一信封）
func jsonUnmarshal(rec *httptest.ResponseRecorder, dst any) error {
	return json.Unmarshal(rec.Body.Bytes(), dst)
}

// decodeResponse 解出统一响应信封，data 解到 dst（可为 nil）
func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, dst any) Response {
	t.Helper()
	var resp Response
	raw := struct {
		Success   bool            `json:"success"`
		Data      json.RawMessage `json:"data"`
		Error     *ErrorInfo      `json:"error"`
		Timestamp time.Time       `json:"timestamp"`
	}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	resp.Success = raw.Success
	resp.Error = raw.Error
	resp.Timestamp = raw.Timestamp
	if dst != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, dst))
	}
	return resp
}
