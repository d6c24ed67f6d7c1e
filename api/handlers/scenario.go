package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/convoflow/conversation"
)

// ScenarioHandler 场景清单处理器
type ScenarioHandler struct {
	orch   *conversation.Orchestrator
	logger *zap.Logger
}

// NewScenarioHandler 创建场景清单处理器
func NewScenarioHandler(orch *conversation.Orchestrator, logger *zap.Logger) *ScenarioHandler {
	return &ScenarioHandler{
		orch:   orch,
		logger: logger.With(zap.String("handler", "scenario")),
	}
}

// HandleList 处理 list_scenarios 查询
func (h *ScenarioHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, h.logger) {
		return
	}

	scenarios := h.orch.ListScenarios()
	resp := ScenarioListResponse{Scenarios: scenarios}
	for _, sc := range scenarios {
		if sc.Default {
			resp.Default = sc.Name
			break
		}
	}
	WriteSuccess(w, resp)
}
