package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/convoflow/config"
	"github.com/BaSui01/convoflow/conversation"
	"github.com/BaSui01/convoflow/events"
	"github.com/BaSui01/convoflow/llm"
	"github.com/BaSui01/convoflow/testutil/mocks"
	"github.com/BaSui01/convoflow/types"
)

func routerConfig() *config.Config {
	return &config.Config{
		Agents: map[string]config.AgentConfig{
			"alice": {
				Name:    "Alice",
				Persona: "A pragmatic engineer.",
				Model: config.ModelConfig{
					Provider:  "ollama",
					URL:       "http://localhost:11434",
					ModelName: "llama2",
				},
			},
			"bob": {
				Name:    "Bob",
				Persona: "A careful reviewer.",
				Model: config.ModelConfig{
					Provider:  "ollama",
					URL:       "http://localhost:11434",
					ModelName: "mistral",
				},
			},
		},
		Conversation: &config.ScenarioConfig{
			Name:          "debate",
			Goal:          "reach a conclusion",
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

func newRouter(t *testing.T, deps RouterDeps) http.Handler {
	t.Helper()
	if deps.Config == nil {
		deps.Config = routerConfig()
	}
	if deps.Orchestrator == nil {
		provider := mocks.NewSuccessProvider("Understood.")
		deps.Orchestrator = conversation.NewOrchestrator(deps.Config,
			mocks.NewMockToolRuntime(), nil, zap.NewNop(),
			func(types.ModelEndpoint, *zap.Logger) llm.Provider { return provider })
	}
	return NewRouter(deps)
}

func TestRouterServesConversationEndpoints(t *testing.T) {
	h := newRouter(t, RouterDeps{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conversation/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/scenarios", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	h := newRouter(t, RouterDeps{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRouterToolEndpointsAbsentWithoutRegistry(t *testing.T) {
	h := newRouter(t, RouterDeps{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tools/status", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type routerToolAdmin struct{}

func (routerToolAdmin) Statuses() []types.ToolServerStatus {
	return []types.ToolServerStatus{{Name: "calculator", State: types.ServerReady}}
}

func (routerToolAdmin) Status(name string) (types.ToolServerStatus, bool) {
	if name == "calculator" {
		return types.ToolServerStatus{Name: "calculator", State: types.ServerReady}, true
	}
	return types.ToolServerStatus{}, false
}

func (routerToolAdmin) Restart(context.Context, string) error { return nil }

func TestRouterToolEndpointsPresentWithRegistry(t *testing.T) {
	h := newRouter(t, RouterDeps{Tools: routerToolAdmin{}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tools/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "calculator")
}

func TestRouterEnforcesAuthOnCommands(t *testing.T) {
	cfg := routerConfig()
	cfg.Server.Auth = config.AuthConfig{Enabled: true, Secret: "router-secret"}
	h := newRouter(t, RouterDeps{Config: cfg})

	// 无令牌的变更命令被拒
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/conversation/start",
		strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// 只读端点放行
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conversation/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// 带有效令牌的命令通过
	token, err := IssueToken(cfg.Server.Auth, "test")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversation/start",
		strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterEventFeed(t *testing.T) {
	broadcaster := events.NewBroadcaster(16, zap.NewNop())
	t.Cleanup(broadcaster.Stop)

	h := newRouter(t, RouterDeps{Broadcaster: broadcaster})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	// 非升级请求到 /ws/events 应返回 4xx 而不是 404
	resp, err := http.Get(srv.URL + "/ws/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.NotEqual(t, http.StatusNotFound, resp.StatusCode)
	assert.GreaterOrEqual(t, resp.StatusCode, 400)
}
