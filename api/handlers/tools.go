package handlers

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/convoflow/types"
)

// ToolAdmin 工具服务器管理面，由 mcp.Registry 实现
type ToolAdmin interface {
	Statuses() []types.ToolServerStatus
	Status(name string) (types.ToolServerStatus, bool)
	Restart(ctx context.Context, name string) error
}

// =============================================================================
// 🔧 工具服务器 Handler
// =============================================================================

// ToolsHandler 工具服务器状态与重启处理器
type ToolsHandler struct {
	admin  ToolAdmin
	logger *zap.Logger
}

// NewToolsHandler 创建工具服务器处理器
func NewToolsHandler(admin ToolAdmin, logger *zap.Logger) *ToolsHandler {
	return &ToolsHandler{
		admin:  admin,
		logger: logger.With(zap.String("handler", "tools")),
	}
}

// HandleStatus 处理 tool_status 查询
func (h *ToolsHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, h.logger) {
		return
	}
	WriteSuccess(w, ToolStatusResponse{Servers: h.admin.Statuses()})
}

// HandleRestart 处理 restart_tool 命令
func (h *ToolsHandler) HandleRestart(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost, h.logger) {
		return
	}

	var req ToolRestartRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Name == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrConfigInvalid,
			"tool server name is required", h.logger)
		return
	}

	if err := h.admin.Restart(r.Context(), req.Name); err != nil {
		WriteFromError(w, err, h.logger)
		return
	}

	status, ok := h.admin.Status(req.Name)
	if !ok {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrToolNotFound,
			fmt.Sprintf("tool server %q not found after restart", req.Name), h.logger)
		return
	}
	h.logger.Info("tool server restarted", zap.String("name", req.Name))
	WriteSuccess(w, status)
}
