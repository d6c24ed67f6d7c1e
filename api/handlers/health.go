package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/convoflow/conversation"
)

// Pinger 归档后端连通性探测，由 archive.Store 实现
type Pinger interface {
	Ping(ctx context.Context) error
}

// =============================================================================
// 💚 健康检查 Handler
// =============================================================================

// HealthHandler 健康检查处理器。archive 为 nil 时跳过归档探测。
type HealthHandler struct {
	orch    *conversation.Orchestrator
	archive Pinger
	logger  *zap.Logger
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(orch *conversation.Orchestrator, archive Pinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		orch:    orch,
		archive: archive,
		logger:  logger.With(zap.String("handler", "health")),
	}
}

// HandleHealthz 处理 /healthz。归档不可达降级为 degraded 而不是 503，
// 归档是旁路，不应拖垮命令面的存活判定。
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, h.logger) {
		return
	}

	resp := HealthResponse{
		Status: "ok",
		Phase:  h.orch.Status().Phase,
	}
	if h.archive != nil {
		if err := h.archive.Ping(r.Context()); err != nil {
			h.logger.Warn("archive backend unreachable", zap.Error(err))
			resp.Status = "degraded"
			resp.Archive = "unreachable"
		} else {
			resp.Archive = "ok"
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}
