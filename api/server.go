package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/convoflow/api/handlers"
	"github.com/BaSui01/convoflow/config"
	"github.com/BaSui01/convoflow/conversation"
	"github.com/BaSui01/convoflow/events"
	"github.com/BaSui01/convoflow/internal/metrics"
)

// =============================================================================
// 🌐 命令面路由装配
// =============================================================================

// RouterDeps 路由装配的依赖集合。Tools、Archive、Collector 允许为 nil，
// 对应端点会缺省（工具端点返回 404，健康检查跳过归档探测，不记指标）。
type RouterDeps struct {
	Config       *config.Config
	Orchestrator *conversation.Orchestrator
	Broadcaster  *events.Broadcaster
	Tools        handlers.ToolAdmin
	Archive      handlers.Pinger
	ProviderFor  conversation.ProviderFactory
	Collector    *metrics.Collector
	Logger       *zap.Logger
}

// NewRouter 装配命令面路由与中间件栈
func NewRouter(deps RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	conv := handlers.NewConversationHandler(deps.Orchestrator, logger)
	scen := handlers.NewScenarioHandler(deps.Orchestrator, logger)
	model := handlers.NewModelHandler(deps.Config, deps.ProviderFor, logger)
	health := handlers.NewHealthHandler(deps.Orchestrator, deps.Archive, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/conversation/start", conv.HandleStart)
	mux.HandleFunc("/api/v1/conversation/continue", conv.HandleContinue)
	mux.HandleFunc("/api/v1/conversation/pause", conv.HandlePause)
	mux.HandleFunc("/api/v1/conversation/resume", conv.HandleResume)
	mux.HandleFunc("/api/v1/conversation/stop", conv.HandleStop)
	mux.HandleFunc("/api/v1/conversation/status", conv.HandleStatus)
	mux.HandleFunc("/api/v1/conversation/export", conv.HandleExport)
	mux.HandleFunc("/api/v1/scenarios", scen.HandleList)
	mux.HandleFunc("/api/v1/models/test", model.HandleTest)
	mux.HandleFunc("/healthz", health.HandleHealthz)
	mux.Handle("/metrics", promhttp.Handler())

	if deps.Tools != nil {
		tools := handlers.NewToolsHandler(deps.Tools, logger)
		mux.HandleFunc("/api/v1/tools/status", tools.HandleStatus)
		mux.HandleFunc("/api/v1/tools/restart", tools.HandleRestart)
	}
	if deps.Broadcaster != nil {
		feed := handlers.NewFeedHandler(deps.Broadcaster, logger)
		mux.HandleFunc("/ws/events", feed.HandleFeed)
	}

	middlewares := []Middleware{
		Recovery(logger),
		RequestID(),
		RequestLogger(logger),
	}
	if deps.Collector != nil {
		middlewares = append(middlewares, MetricsMiddleware(deps.Collector))
	}
	if deps.Config != nil {
		middlewares = append(middlewares,
			RateLimiter(deps.Config.Server.RateLimit, logger),
			JWTAuth(deps.Config.Server.Auth, logger),
		)
	}

	return Chain(mux, middlewares...)
}
