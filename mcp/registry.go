package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/convoflow/events"
	"github.com/BaSui01/convoflow/types"
)

// ============================================================
// 🔧 工具服务器注册表
// ============================================================

const (
	defaultStartupDeadline = 2 * time.Second
	defaultHealthInterval  = 10 * time.Second
	defaultProbeTimeout    = 5 * time.Second

	// maxHealthFails 连续探测失败上限，超过后停止退避重试，
	// 状态保持 unhealthy 直到显式 restart
	maxHealthFails = 5
)

// RegistryOptions 注册表调优参数
type RegistryOptions struct {
	// StartupDeadline 握手超时
	StartupDeadline time.Duration
	// HealthInterval 健康探测基础间隔，失败后按指数退避拉长
	HealthInterval time.Duration
}

// server 注册表内一个工具服务器的全部状态，由 Registry.mu 保护
type server struct {
	name     string
	baseName string
	scope    types.ToolServerScope
	agentID  string
	spec     types.ToolServerSpec

	state           types.ToolServerState
	startedAt       *time.Time
	lastHealthCheck *time.Time
	errMsg          string
	tools           []types.ToolDefinition
	session         Session

	healthFails int
	nextProbe   time.Time
}

// Registry 工具服务器注册表。
// 管理子进程生命周期，按 agent 视角聚合工具，路由工具调用，
// 并以指数退避的后台探测维护健康状态。
type Registry struct {
	launcher Launcher
	sink     events.Sink
	logger   *zap.Logger

	startupDeadline time.Duration
	healthInterval  time.Duration

	mu      sync.RWMutex
	servers map[string]*server

	monitorStop chan struct{}
	monitorWG   sync.WaitGroup
	closeOnce   sync.Once
}

// NewRegistry 创建注册表并启动健康探测循环。
// sink 为 nil 时事件被丢弃。
func NewRegistry(launcher Launcher, sink events.Sink, logger *zap.Logger, opts RegistryOptions) *Registry {
	if sink == nil {
		sink = events.NopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.StartupDeadline <= 0 {
		opts.StartupDeadline = defaultStartupDeadline
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = defaultHealthInterval
	}
	r := &Registry{
		launcher:        launcher,
		sink:            sink,
		logger:          logger.With(zap.String("component", "tool_registry")),
		startupDeadline: opts.StartupDeadline,
		healthInterval:  opts.HealthInterval,
		servers:         make(map[string]*server),
		monitorStop:     make(chan struct{}),
	}
	r.monitorWG.Add(1)
	go r.monitorLoop()
	return r
}

// ============================================================
// 🚀 生命周期
// ============================================================

// StartGlobal 启动一个全局工具服务器
func (r *Registry) StartGlobal(ctx context.Context, spec types.ToolServerSpec) error {
	return r.start(ctx, spec.Name, spec.Name, types.ScopeGlobal, "", spec)
}

// StartForAgent 启动一个 Agent 专属服务器，注册名为 {agent-id}_{base-name}
func (r *Registry) StartForAgent(ctx context.Context, agentID string, spec types.ToolServerSpec) error {
	scoped := fmt.Sprintf("%s_%s", agentID, spec.Name)
	return r.start(ctx, scoped, spec.Name, types.ScopeAgent, agentID, spec)
}

// start 注册并启动一个服务器。启动失败不是致命错误：
// 条目保留为 stopped 并记录原因，ToolsForAgent 会跳过它。
func (r *Registry) start(ctx context.Context, name, baseName string, scope types.ToolServerScope, agentID string, spec types.ToolServerSpec) error {
	r.mu.Lock()
	if existing, ok := r.servers[name]; ok && existing.state != types.ServerStopped {
		r.mu.Unlock()
		return types.NewError(types.ErrToolStartupFailed, fmt.Sprintf("server %s already running", name))
	}
	srv := &server{
		name:     name,
		baseName: baseName,
		scope:    scope,
		agentID:  agentID,
		spec:     spec,
		state:    types.ServerStarting,
	}
	r.servers[name] = srv
	r.mu.Unlock()

	session, tools, err := r.handshake(ctx, spec)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		srv.state = types.ServerStopped
		srv.errMsg = err.Error()
		r.logger.Warn("tool server startup failed",
			zap.String("server", name), zap.Error(err))
		r.sink.Publish(events.NewError(events.ErrorKindToolServer, agentID,
			fmt.Sprintf("tool server %s failed to start: %v", name, err)))
		return err
	}

	now := time.Now().UTC()
	srv.session = session
	srv.tools = tools
	srv.state = types.ServerReady
	srv.startedAt = &now
	srv.errMsg = ""
	srv.healthFails = 0
	srv.nextProbe = now.Add(r.healthInterval)
	r.logger.Info("tool server ready",
		zap.String("server", name),
		zap.String("scope", string(scope)),
		zap.Int("tools", len(tools)))
	return nil
}

// handshake 建立会话：启动、initialize、枚举工具，整体受握手超时约束
func (r *Registry) handshake(ctx context.Context, spec types.ToolServerSpec) (Session, []types.ToolDefinition, error) {
	ctx, cancel := context.WithTimeout(ctx, r.startupDeadline)
	defer cancel()

	session, err := r.launcher.Launch(ctx, spec)
	if err != nil {
		return nil, nil, err
	}
	if err := session.Initialize(ctx); err != nil {
		_ = session.Close()
		return nil, nil, err
	}
	tools, err := session.ListTools(ctx)
	if err != nil {
		_ = session.Close()
		return nil, nil, err
	}
	return session, tools, nil
}

// StartAll 并行启动一组全局服务器。单个失败只记警告，不中断其余启动。
func (r *Registry) StartAll(ctx context.Context, specs []types.ToolServerSpec) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, spec := range specs {
		g.Go(func() error {
			_ = r.StartGlobal(ctx, spec)
			return nil
		})
	}
	_ = g.Wait()
}

// StartAgentServers 并行启动一个 Agent 的专属服务器
func (r *Registry) StartAgentServers(ctx context.Context, agentID string, specs []types.ToolServerSpec) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, spec := range specs {
		g.Go(func() error {
			_ = r.StartForAgent(ctx, agentID, spec)
			return nil
		})
	}
	_ = g.Wait()
}

// Stop 停止一个服务器并从注册表移除
func (r *Registry) Stop(name string) error {
	r.mu.Lock()
	srv, ok := r.servers[name]
	if !ok {
		r.mu.Unlock()
		return types.NewError(types.ErrToolNotFound, fmt.Sprintf("server %s not registered", name))
	}
	delete(r.servers, name)
	session := srv.session
	r.mu.Unlock()

	if session != nil {
		if err := session.Close(); err != nil {
			r.logger.Warn("tool server close", zap.String("server", name), zap.Error(err))
		}
	}
	r.logger.Info("tool server stopped", zap.String("server", name))
	return nil
}

// StopAgentServers 停止某个 Agent 的全部专属服务器
func (r *Registry) StopAgentServers(agentID string) {
	r.mu.RLock()
	var names []string
	for name, srv := range r.servers {
		if srv.scope == types.ScopeAgent && srv.agentID == agentID {
			names = append(names, name)
		}
	}
	r.mu.RUnlock()
	for _, name := range names {
		_ = r.Stop(name)
	}
}

// Restart 按原始规格重启
func (r *Registry) Restart(ctx context.Context, name string) error {
	r.mu.RLock()
	srv, ok := r.servers[name]
	if !ok {
		r.mu.RUnlock()
		return types.NewError(types.ErrToolNotFound, fmt.Sprintf("server %s not registered", name))
	}
	baseName, scope, agentID, spec := srv.baseName, srv.scope, srv.agentID, srv.spec
	r.mu.RUnlock()

	_ = r.Stop(name)
	return r.start(ctx, name, baseName, scope, agentID, spec)
}

// Close 停止健康探测并关闭全部服务器
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		close(r.monitorStop)
	})
	r.monitorWG.Wait()

	r.mu.RLock()
	names := make([]string, 0, len(r.servers))
	for name := range r.servers {
		names = append(names, name)
	}
	r.mu.RUnlock()

	g := new(errgroup.Group)
	g.SetLimit(4)
	for _, name := range names {
		g.Go(func() error {
			_ = r.Stop(name)
			return nil
		})
	}
	_ = g.Wait()
}

// ============================================================
// 🧰 工具路由
// ============================================================

// BoundTool 一个可供某 Agent 调用的工具及其归属服务器
type BoundTool struct {
	Server string
	Def    types.ToolDefinition
}

// ToolsForAgent 返回某 Agent 可见的工具集：全部 ready 的全局服务器
// 与该 Agent 的专属服务器之并集。工具重名时专属方优先并记录警告。
func (r *Registry) ToolsForAgent(agentID string) []BoundTool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byName := make(map[string]BoundTool)
	var order []string

	add := func(srv *server, overriding bool) {
		for _, def := range srv.tools {
			if prev, exists := byName[def.Name]; exists {
				if !overriding {
					continue
				}
				r.logger.Warn("tool name collision, agent-scoped server wins",
					zap.String("tool", def.Name),
					zap.String("agent_id", agentID),
					zap.String("loser", prev.Server),
					zap.String("winner", srv.name))
			} else {
				order = append(order, def.Name)
			}
			byName[def.Name] = BoundTool{Server: srv.name, Def: def}
		}
	}

	for _, srv := range r.sortedLocked() {
		if srv.scope == types.ScopeGlobal && srv.state == types.ServerReady {
			add(srv, false)
		}
	}
	for _, srv := range r.sortedLocked() {
		if srv.scope == types.ScopeAgent && srv.agentID == agentID && srv.state == types.ServerReady {
			add(srv, true)
		}
	}

	out := make([]BoundTool, 0, len(order))
	for _, name := range order {
		out = append(out, byName[name])
	}
	return out
}

// ToolDefsForAgent 返回某 Agent 可见的工具定义，供模型绑定
func (r *Registry) ToolDefsForAgent(agentID string) []types.ToolDefinition {
	bound := r.ToolsForAgent(agentID)
	out := make([]types.ToolDefinition, 0, len(bound))
	for _, b := range bound {
		out = append(out, b.Def)
	}
	return out
}

// sortedLocked 名字序遍历，保证路由与状态输出确定性。调用方须持锁。
func (r *Registry) sortedLocked() []*server {
	out := make([]*server, 0, len(r.servers))
	for _, srv := range r.servers {
		out = append(out, srv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Call 将一次工具调用路由到归属服务器并等待结果。
// 任何失败都折叠进 ToolResult：IsError 置位，Content 携带错误文本，
// ErrKind 标记失败类别，调用方据此拼装 tool 消息回传模型。
func (r *Registry) Call(ctx context.Context, agentID, callID, toolName string, args json.RawMessage, deadline time.Duration) types.ToolResult {
	started := time.Now()
	result := types.ToolResult{CallID: callID, ToolName: toolName}

	var session Session
	for _, bound := range r.ToolsForAgent(agentID) {
		if bound.Def.Name == toolName {
			r.mu.RLock()
			if srv, ok := r.servers[bound.Server]; ok {
				session = srv.session
			}
			r.mu.RUnlock()
			break
		}
	}
	if session == nil {
		result.IsError = true
		result.ErrKind = types.ToolErrProtocol
		result.Content = fmt.Sprintf("tool %q is not available", toolName)
		result.Duration = time.Since(started)
		return result
	}

	if deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	call, err := session.CallTool(ctx, toolName, args)
	result.Duration = time.Since(started)
	if err != nil {
		result.IsError = true
		result.ErrKind = classifyToolError(err)
		result.Content = err.Error()
		return result
	}

	result.Content = call.Content
	result.IsError = call.IsError
	if call.IsError {
		result.ErrKind = types.ToolErrProtocol
	}
	return result
}

// classifyToolError 将客户端错误码折叠为三类失败
func classifyToolError(err error) types.ToolErrorKind {
	var typed *types.Error
	if errors.As(err, &typed) {
		switch typed.Code {
		case types.ErrToolCallTimeout:
			return types.ToolErrTimeout
		case types.ErrToolTransport, types.ErrToolServerGone:
			return types.ToolErrTransport
		}
	}
	return types.ToolErrProtocol
}

// ============================================================
// 📊 状态
// ============================================================

// Statuses 返回全部服务器的观测状态快照，按名字排序
func (r *Registry) Statuses() []types.ToolServerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.ToolServerStatus, 0, len(r.servers))
	for _, srv := range r.sortedLocked() {
		out = append(out, statusOf(srv))
	}
	return out
}

// Status 返回单个服务器的状态
func (r *Registry) Status(name string) (types.ToolServerStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	srv, ok := r.servers[name]
	if !ok {
		return types.ToolServerStatus{}, false
	}
	return statusOf(srv), true
}

func statusOf(srv *server) types.ToolServerStatus {
	st := types.ToolServerStatus{
		Name:    srv.name,
		Scope:   srv.scope,
		AgentID: srv.agentID,
		State:   srv.state,
		Error:   srv.errMsg,
		Tools:   append([]types.ToolDefinition(nil), srv.tools...),
	}
	if srv.startedAt != nil {
		t := *srv.startedAt
		st.StartedAt = &t
	}
	if srv.lastHealthCheck != nil {
		t := *srv.lastHealthCheck
		st.LastHealthCheck = &t
	}
	return st
}

// ============================================================
// 💓 健康探测
// ============================================================

func (r *Registry) monitorLoop() {
	defer r.monitorWG.Done()
	ticker := time.NewTicker(r.healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.monitorStop:
			return
		case <-ticker.C:
			r.probeDue(time.Now().UTC())
		}
	}
}

// probeDue 对到期的服务器执行一次 list-tools 探测。
// 失败进入指数退避，连续失败超限后停止重试直到显式 restart。
func (r *Registry) probeDue(now time.Time) {
	r.mu.RLock()
	var due []*server
	for _, srv := range r.servers {
		probeable := srv.state == types.ServerReady ||
			(srv.state == types.ServerUnhealthy && srv.healthFails < maxHealthFails)
		if probeable && srv.session != nil && !now.Before(srv.nextProbe) {
			due = append(due, srv)
		}
	}
	r.mu.RUnlock()

	for _, srv := range due {
		r.probe(srv, now)
	}
}

func (r *Registry) probe(srv *server, now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultProbeTimeout)
	tools, err := srv.session.ListTools(ctx)
	cancel()

	r.mu.Lock()
	defer r.mu.Unlock()
	checked := now
	srv.lastHealthCheck = &checked

	if err != nil {
		srv.healthFails++
		srv.errMsg = err.Error()
		if srv.state != types.ServerUnhealthy {
			srv.state = types.ServerUnhealthy
			r.logger.Warn("tool server unhealthy",
				zap.String("server", srv.name), zap.Error(err))
			r.sink.Publish(events.NewError(events.ErrorKindToolServer, srv.agentID,
				fmt.Sprintf("tool server %s unhealthy: %v", srv.name, err)))
		}
		if srv.healthFails < maxHealthFails {
			backoff := r.healthInterval << (srv.healthFails - 1)
			if limit := 8 * r.healthInterval; backoff > limit {
				backoff = limit
			}
			srv.nextProbe = now.Add(backoff)
		}
		return
	}

	if srv.state == types.ServerUnhealthy {
		r.logger.Info("tool server recovered", zap.String("server", srv.name))
		r.sink.Publish(events.NewLifecycle(events.LifecycleStarted,
			fmt.Sprintf("tool server %s recovered", srv.name)))
	}
	srv.state = types.ServerReady
	srv.tools = tools
	srv.errMsg = ""
	srv.healthFails = 0
	srv.nextProbe = now.Add(r.healthInterval)
}
