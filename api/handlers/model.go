package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/convoflow/config"
	"github.com/BaSui01/convoflow/conversation"
	"github.com/BaSui01/convoflow/llm"
	"github.com/BaSui01/convoflow/types"
)

// 单个端点检查的超时上限
const modelProbeTimeout = 10 * time.Second

// =============================================================================
// 🩺 模型端点检查 Handler
// =============================================================================

// ModelHandler test_model_endpoint 命令处理器。
// 对每个端点做两步检查：HealthCheck 探测可达性，HasModel 确认模型已安装。
type ModelHandler struct {
	cfg         *config.Config
	providerFor conversation.ProviderFactory
	logger      *zap.Logger
}

// NewModelHandler 创建模型端点检查处理器。providerFor 为 nil 时使用 Ollama。
func NewModelHandler(cfg *config.Config, providerFor conversation.ProviderFactory, logger *zap.Logger) *ModelHandler {
	if providerFor == nil {
		providerFor = func(endpoint types.ModelEndpoint, logger *zap.Logger) llm.Provider {
			return llm.NewOllamaProvider(endpoint, logger)
		}
	}
	return &ModelHandler{
		cfg:         cfg,
		providerFor: providerFor,
		logger:      logger.With(zap.String("handler", "model")),
	}
}

// HandleTest 处理 test_model_endpoint 命令
func (h *ModelHandler) HandleTest(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost, h.logger) {
		return
	}

	var req ModelTestRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	agents := h.targets(req.AgentID)
	if len(agents) == 0 {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrScenarioNotFound,
			fmt.Sprintf("agent %q is not configured", req.AgentID), h.logger)
		return
	}

	resp := ModelTestResponse{OK: true}
	for _, id := range agents {
		result := h.probe(r, id, h.cfg.Agents[id].Model)
		if !result.OK {
			resp.OK = false
		}
		resp.Results = append(resp.Results, result)
	}
	WriteSuccess(w, resp)
}

// targets 解析待检查的 agent 集合；空 id 表示全部，按 id 排序保证输出稳定
func (h *ModelHandler) targets(agentID string) []string {
	if agentID != "" {
		if _, ok := h.cfg.Agents[agentID]; !ok {
			return nil
		}
		return []string{agentID}
	}
	ids := make([]string, 0, len(h.cfg.Agents))
	for id := range h.cfg.Agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (h *ModelHandler) probe(r *http.Request, agentID string, model config.ModelConfig) ModelTestResult {
	result := ModelTestResult{
		AgentID: agentID,
		URL:     model.URL,
		Model:   model.ModelName,
	}

	provider := h.providerFor(types.ModelEndpoint{
		Provider:   model.Provider,
		URL:        model.URL,
		ModelName:  model.ModelName,
		Parameters: model.Parameters,
		Timeout:    model.Timeout,
	}, h.logger.With(zap.String("agent_id", agentID)))

	ctx, cancel := context.WithTimeout(r.Context(), modelProbeTimeout)
	defer cancel()

	health, err := provider.HealthCheck(ctx)
	if err != nil {
		result.Detail = fmt.Sprintf("endpoint unreachable: %v", err)
		return result
	}
	result.LatencyMS = health.Latency.Milliseconds()

	has, err := provider.HasModel(ctx, model.ModelName)
	if err != nil {
		result.Detail = fmt.Sprintf("model listing failed: %v", err)
		return result
	}
	if !has {
		result.Detail = fmt.Sprintf("model %q is not installed on %s", model.ModelName, model.URL)
		return result
	}

	result.OK = true
	result.Detail = "ok"
	return result
}
