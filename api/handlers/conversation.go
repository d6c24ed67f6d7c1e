package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/convoflow/conversation"
	"github.com/BaSui01/convoflow/types"
)

// =============================================================================
// 🎭 会话命令 Handler
// =============================================================================

// ConversationHandler 会话生命周期命令处理器。
// continue 是长调用：驱动循环在请求 goroutine 里跑，直到
// cycle 配额用完或会话终止才返回。
type ConversationHandler struct {
	orch   *conversation.Orchestrator
	logger *zap.Logger
}

// NewConversationHandler 创建会话命令处理器
func NewConversationHandler(orch *conversation.Orchestrator, logger *zap.Logger) *ConversationHandler {
	return &ConversationHandler{
		orch:   orch,
		logger: logger.With(zap.String("handler", "conversation")),
	}
}

// HandleStart 处理 start 命令
func (h *ConversationHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost, h.logger) {
		return
	}

	var req StartRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	ov := conversation.Overrides{StartingAgent: req.Overrides.StartingAgent}
	if req.Overrides.MaxCycles != nil {
		ov.MaxCycles = *req.Overrides.MaxCycles
	}

	result, err := h.orch.Start(r.Context(), req.Scenario, ov)
	if err != nil {
		WriteFromError(w, err, h.logger)
		return
	}
	WriteSuccess(w, result)
}

// HandleContinue 处理 continue 命令
func (h *ConversationHandler) HandleContinue(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost, h.logger) {
		return
	}

	var req ContinueRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Cycles < 0 {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidOverride,
			"cycles must not be negative", h.logger)
		return
	}

	result, err := h.orch.Continue(r.Context(), req.Cycles)
	if err != nil {
		WriteFromError(w, err, h.logger)
		return
	}
	WriteSuccess(w, result)
}

// HandlePause 处理 pause 命令
func (h *ConversationHandler) HandlePause(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost, h.logger) {
		return
	}
	phase, err := h.orch.Pause()
	if err != nil {
		WriteFromError(w, err, h.logger)
		return
	}
	WriteSuccess(w, PhaseResponse{Phase: phase})
}

// HandleResume 处理 resume 命令
func (h *ConversationHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost, h.logger) {
		return
	}
	phase, err := h.orch.Resume()
	if err != nil {
		WriteFromError(w, err, h.logger)
		return
	}
	WriteSuccess(w, PhaseResponse{Phase: phase})
}

// HandleStop 处理 stop 命令。对已终止/未启动的会话幂等。
func (h *ConversationHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost, h.logger) {
		return
	}
	phase := h.orch.Stop()
	WriteSuccess(w, PhaseResponse{Phase: phase})
}

// HandleStatus 处理 status 查询
func (h *ConversationHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, h.logger) {
		return
	}
	WriteSuccess(w, h.orch.Status())
}

// HandleExport 导出 Markdown 转写稿
func (h *ConversationHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, h.logger) {
		return
	}

	snap, ok := h.orch.Snapshot()
	if !ok {
		WriteErrorMessage(w, http.StatusConflict, types.ErrNotRunning,
			"no conversation to export", h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+snap.ID+`.md"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(conversation.ExportMarkdown(snap))); err != nil {
		h.logger.Warn("failed to write transcript", zap.Error(err))
	}
}
