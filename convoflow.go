// Copyright (c) ConvoFlow Authors.
// Licensed under the MIT License.

/*
Package convoflow 是多 Agent 对话引擎的顶层装配入口。

# 概述

convoflow 通过函数式选项把配置、日志与可选的自定义组件装配成一个
可运行的 Engine，既可由 cmd/convoflow 作为进程入口使用，
也可嵌入到其他 Go 程序中。

# 快速上手

	engine, err := convoflow.New(
		convoflow.WithConfigFile("config.yaml"),
	)
	if err != nil {
		log.Fatal(err)
	}
	if err := engine.Start(); err != nil {
		log.Fatal(err)
	}
	engine.WaitForShutdown()

# 嵌入式使用

嵌入方可以注入自己的 Provider 工厂和事件订阅，
并通过 Orchestrator 直接驱动对话:

	engine, _ := convoflow.New(
		convoflow.WithConfig(cfg),
		convoflow.WithLogger(logger),
		convoflow.WithSubscriber("audit", func(e events.Event) {
			audit.Record(e)
		}),
	)
	result, err := engine.Orchestrator().Start(ctx, "debate", nil)
*/
package convoflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/convoflow/api"
	"github.com/BaSui01/convoflow/api/handlers"
	"github.com/BaSui01/convoflow/archive"
	"github.com/BaSui01/convoflow/config"
	"github.com/BaSui01/convoflow/conversation"
	"github.com/BaSui01/convoflow/events"
	"github.com/BaSui01/convoflow/internal/metrics"
	"github.com/BaSui01/convoflow/internal/server"
	"github.com/BaSui01/convoflow/internal/telemetry"
	"github.com/BaSui01/convoflow/mcp"
	"github.com/BaSui01/convoflow/types"
)

// =============================================================================
// ⚙️ 函数式选项
// =============================================================================

type subscriber struct {
	id      string
	handler events.Handler
}

type options struct {
	cfg         *config.Config
	configPath  string
	logger      *zap.Logger
	providerFor conversation.ProviderFactory
	subscribers []subscriber
}

// Option 配置 Engine 装配行为
type Option func(*options)

// WithConfig 使用已加载的配置，跳过文件解析
func WithConfig(cfg *config.Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithConfigFile 指定配置文件路径，New 时加载并校验
func WithConfigFile(path string) Option {
	return func(o *options) {
		o.configPath = path
	}
}

// WithLogger 注入外部 zap 日志器
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithProviderFactory 替换模型端点工厂，主要用于测试与私有网关
func WithProviderFactory(factory conversation.ProviderFactory) Option {
	return func(o *options) {
		o.providerFor = factory
	}
}

// WithSubscriber 在引擎事件流上注册订阅者，id 重复时后注册的覆盖
func WithSubscriber(id string, handler events.Handler) Option {
	return func(o *options) {
		o.subscribers = append(o.subscribers, subscriber{id: id, handler: handler})
	}
}

// =============================================================================
// 🖥️ Engine 装配
// =============================================================================

// Engine 把配置装配成一个可运行的对话引擎进程
type Engine struct {
	cfg    *config.Config
	logger *zap.Logger

	broadcaster  *events.Broadcaster
	collector    *metrics.Collector
	registry     *mcp.Registry
	store        archive.Store
	orchestrator *conversation.Orchestrator
	httpManager  *server.Manager
	otel         *telemetry.Providers
}

// New 按依赖顺序装配所有组件，尚未启动任何服务
func New(opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg := o.cfg
	if cfg == nil {
		loader := config.NewLoader()
		if o.configPath != "" {
			loader = loader.WithConfigPath(o.configPath)
		}
		loaded, err := loader.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if err := loaded.Validate(); err != nil {
			return nil, fmt.Errorf("validate config: %w", err)
		}
		cfg = loaded
	}

	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{cfg: cfg, logger: logger}

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	e.otel = otelProviders

	e.broadcaster = events.NewBroadcaster(cfg.Engine.EventQueueSize, logger)
	for _, sub := range o.subscribers {
		e.broadcaster.Subscribe(sub.id, sub.handler)
	}

	e.collector = metrics.NewCollector("convoflow", nil, logger)
	e.broadcaster.Subscribe("metrics", e.collector.ObserveEvent)

	launcher := mcp.NewExecLauncher(cfg.Engine.GracePeriod, logger)
	e.registry = mcp.NewRegistry(launcher, e.broadcaster, logger, mcp.RegistryOptions{
		StartupDeadline: cfg.Engine.StartupDeadline,
		HealthInterval:  cfg.Engine.HealthInterval,
	})

	if cfg.Archive.Enabled {
		store, err := archive.New(cfg.Archive, logger)
		if err != nil {
			return nil, fmt.Errorf("open archive store: %w", err)
		}
		e.store = store
	}

	e.orchestrator = conversation.NewOrchestrator(cfg, e.registry, e.broadcaster, logger, o.providerFor)
	if e.store != nil {
		e.orchestrator.SetArchiver(e.store)
	}

	router := api.NewRouter(api.RouterDeps{
		Config:       cfg,
		Orchestrator: e.orchestrator,
		Broadcaster:  e.broadcaster,
		Tools:        e.registry,
		Archive:      pingerOrNil(e.store),
		ProviderFor:  o.providerFor,
		Collector:    e.collector,
		Logger:       logger,
	})

	e.httpManager = server.NewManager(router,
		server.FromServerConfig(cfg.Server), logger)

	return e, nil
}

// Start 预启动全局工具服务器并监听 HTTP 端口
func (e *Engine) Start() error {
	specs := make([]types.ToolServerSpec, 0, len(e.cfg.ToolServers.Global))
	for _, def := range e.cfg.ToolServers.Global {
		specs = append(specs, types.ToolServerSpec{
			Name:    def.Name,
			Command: def.Command,
			Args:    def.Args,
			Env:     def.Env,
		})
	}
	e.registry.StartAll(context.Background(), specs)

	if err := e.httpManager.Start(); err != nil {
		return fmt.Errorf("start HTTP server: %w", err)
	}

	e.logger.Info("engine started",
		zap.String("addr", e.httpManager.Addr()),
		zap.Int("agents", len(e.cfg.Agents)),
		zap.Int("global_tool_servers", len(specs)),
		zap.Bool("archive", e.store != nil),
	)
	return nil
}

// WaitForShutdown 阻塞到退出信号，然后按依赖逆序拆除
func (e *Engine) WaitForShutdown() {
	e.httpManager.WaitForShutdown()
	e.Shutdown()
}

// Shutdown 立即按依赖逆序拆除所有组件，嵌入式场景使用
func (e *Engine) Shutdown() {
	if e.httpManager.IsRunning() {
		timeout := e.cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := e.httpManager.Shutdown(ctx); err != nil {
			e.logger.Warn("http shutdown failed", zap.Error(err))
		}
		cancel()
	}

	e.orchestrator.Stop()
	e.registry.Close()
	e.broadcaster.Stop()

	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.logger.Warn("archive close failed", zap.Error(err))
		}
	}
	if err := e.otel.Shutdown(context.Background()); err != nil {
		e.logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
}

// Orchestrator 返回对话编排器，供嵌入方直接驱动对话
func (e *Engine) Orchestrator() *conversation.Orchestrator {
	return e.orchestrator
}

// Addr HTTP 服务实际监听地址，Start 之后有效
func (e *Engine) Addr() string {
	return e.httpManager.Addr()
}

// Subscribe 在事件流上注册订阅者
func (e *Engine) Subscribe(id string, handler events.Handler) {
	e.broadcaster.Subscribe(id, handler)
}

// Unsubscribe 移除事件订阅者
func (e *Engine) Unsubscribe(id string) {
	e.broadcaster.Unsubscribe(id)
}

// pingerOrNil 避免把 nil Store 装进非 nil 接口
func pingerOrNil(s archive.Store) handlers.Pinger {
	if s == nil {
		return nil
	}
	return s
}
