package conversation

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/convoflow/config"
	"github.com/BaSui01/convoflow/events"
	"github.com/BaSui01/convoflow/llm"
	"github.com/BaSui01/convoflow/types"
)

// ProviderFactory 按端点构造模型 Provider，测试注入 mock
type ProviderFactory func(endpoint types.ModelEndpoint, logger *zap.Logger) llm.Provider

// Archiver 接收终态快照做持久化。归档是旁路：失败只记日志。
type Archiver interface {
	Save(ctx context.Context, snap types.ConversationSnapshot) error
}

// StartResult start 命令的结构化返回
type StartResult struct {
	ConversationID      string   `json:"conversation_id"`
	ParticipatingAgents []string `json:"participating_agents"`
	MaxCycles           int      `json:"max_cycles"`
}

// ContinueResult continue 命令的结构化返回
type ContinueResult struct {
	CurrentCycle      int    `json:"current_cycle"`
	Terminated        bool   `json:"terminated"`
	TerminationReason string `json:"termination_reason,omitempty"`
}

// Orchestrator 会话编排器。同一时刻至多一个会话；轮执行严格串行，
// 状态变更全部经由驱动循环。pause 在轮边界生效，stop 取消在途调用。
type Orchestrator struct {
	cfg         *config.Config
	tools       ToolRuntime
	sink        events.Sink
	logger      *zap.Logger
	providerFor ProviderFactory
	archiver    Archiver

	mu       sync.Mutex
	state    *State
	tracker  *CycleTracker
	executor *TurnExecutor
	agents   map[string]types.Agent

	runCtx    context.Context
	runCancel context.CancelFunc
	paused    bool
	resumeCh  chan struct{}

	// turnMu 串行化运行循环，Continue 并发调用互斥
	turnMu sync.Mutex
}

// NewOrchestrator 创建编排器。providerFor 为 nil 时使用 Ollama Provider。
func NewOrchestrator(cfg *config.Config, tools ToolRuntime, sink events.Sink, logger *zap.Logger, providerFor ProviderFactory) *Orchestrator {
	if sink == nil {
		sink = events.NopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if providerFor == nil {
		providerFor = func(endpoint types.ModelEndpoint, logger *zap.Logger) llm.Provider {
			return llm.NewOllamaProvider(endpoint, logger)
		}
	}
	return &Orchestrator{
		cfg:         cfg,
		tools:       tools,
		sink:        sink,
		logger:      logger.With(zap.String("component", "orchestrator")),
		providerFor: providerFor,
	}
}

// SetArchiver 挂接归档存储，nil 表示不归档
func (o *Orchestrator) SetArchiver(a Archiver) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.archiver = a
}

// Start idle → running。构建状态、启动专属工具服务器、播种开场消息。
func (o *Orchestrator) Start(ctx context.Context, scenarioName string, ov Overrides) (StartResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != nil {
		switch o.state.Phase() {
		case types.PhaseRunning, types.PhasePaused:
			return StartResult{}, types.NewError(types.ErrAlreadyRunning, "a conversation is already in progress")
		}
	}

	st, agents, err := Initialize(ctx, o.cfg, scenarioName, ov, o.tools, o.logger)
	if err != nil {
		return StartResult{}, err
	}

	providers := make(map[string]llm.Provider, len(agents))
	for id, agent := range agents {
		providers[id] = o.providerFor(agent.ModelEndpoint, o.logger.With(zap.String("agent_id", id)))
	}

	o.state = st
	o.agents = agents
	o.tracker = NewCycleTracker(st.Scenario(), st.Participating())
	o.executor = NewTurnExecutor(providers, o.tools, o.sink, o.logger, ExecutorOptions{
		MaxToolIterations: o.cfg.Engine.MaxToolIterations,
		ToolCallTimeout:   o.cfg.Engine.ToolCallTimeout,
	})
	// 会话取消域独立于 start 调用方的 ctx
	o.runCtx, o.runCancel = context.WithCancel(context.Background())
	o.paused = false
	o.resumeCh = nil

	st.SetPhase(types.PhaseRunning)
	o.sink.Publish(events.NewLifecycle(events.LifecycleStarted, st.Scenario().Name))
	o.logger.Info("conversation started",
		zap.String("conversation_id", st.ID()),
		zap.String("scenario", st.Scenario().Name))

	return StartResult{
		ConversationID:      st.ID(),
		ParticipatingAgents: st.Participating(),
		MaxCycles:           st.Scenario().MaxCycles,
	}, nil
}

// Continue 驱动运行循环：至多 cycles 个完整 cycle（0 表示直到终止）。
// 每轮结束后按 max_cycles → keyword → silence 顺序判定终止。
func (o *Orchestrator) Continue(ctx context.Context, cycles int) (ContinueResult, error) {
	o.mu.Lock()
	if o.state == nil || (o.state.Phase() != types.PhaseRunning && o.state.Phase() != types.PhasePaused) {
		o.mu.Unlock()
		return ContinueResult{}, types.NewError(types.ErrNotRunning, "no conversation is running")
	}
	st, tracker, executor, agents, runCtx := o.state, o.tracker, o.executor, o.agents, o.runCtx
	o.mu.Unlock()

	o.turnMu.Lock()
	defer o.turnMu.Unlock()

	startCycle := tracker.CurrentCycle()
	for {
		if !o.waitIfPaused(ctx, runCtx) {
			break
		}
		if runCtx.Err() != nil || st.Phase() == types.PhaseTerminated {
			break
		}

		agentID := st.NextAgent()
		agent, ok := agents[agentID]
		if !ok {
			o.terminate(types.ReasonAgentError)
			break
		}

		outcome := executor.ExecuteTurn(runCtx, agent, st, tracker.CurrentCycle())
		if outcome.Cancelled {
			break
		}
		if outcome.Fatal {
			o.terminate(types.ReasonAgentError)
			break
		}

		completed := tracker.RecordTurn(agentID, outcome.FinalContent)
		if completed {
			st.SetCycle(tracker.CurrentCycle())
			_ = st.AppendCycleMarker(tracker.CurrentCycle())
			o.sink.Publish(events.NewCycleUpdate(tracker.CurrentCycle(), st.Participating()))
		}

		if term := tracker.CheckTermination(outcome.FinalContent); term != nil {
			o.terminate(term.Reason)
			break
		}

		st.AdvanceAgent()

		if cycles > 0 && completed && tracker.CurrentCycle()-startCycle >= cycles {
			break
		}
	}

	result := ContinueResult{CurrentCycle: tracker.CurrentCycle()}
	if term := st.Termination(); term != nil {
		result.Terminated = true
		result.TerminationReason = term.Reason
	}
	return result, nil
}

// waitIfPaused 暂停时阻塞到 resume。返回 false 表示等待中被取消。
func (o *Orchestrator) waitIfPaused(ctx, runCtx context.Context) bool {
	for {
		o.mu.Lock()
		paused, ch := o.paused, o.resumeCh
		o.mu.Unlock()
		if !paused {
			return true
		}
		select {
		case <-ch:
		case <-runCtx.Done():
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// Pause running → paused。在途的一轮照常完成，下一轮不再开始。
func (o *Orchestrator) Pause() (types.Phase, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == nil || o.state.Phase() != types.PhaseRunning {
		return o.phaseLocked(), types.NewError(types.ErrNotRunning, "no running conversation to pause")
	}
	o.paused = true
	o.resumeCh = make(chan struct{})
	o.state.SetPhase(types.PhasePaused)
	o.sink.Publish(events.NewLifecycle(events.LifecyclePaused, ""))
	return types.PhasePaused, nil
}

// Resume paused → running
func (o *Orchestrator) Resume() (types.Phase, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == nil || o.state.Phase() != types.PhasePaused {
		return o.phaseLocked(), types.NewError(types.ErrNotRunning, "no paused conversation to resume")
	}
	o.paused = false
	if o.resumeCh != nil {
		close(o.resumeCh)
		o.resumeCh = nil
	}
	o.state.SetPhase(types.PhaseRunning)
	o.sink.Publish(events.NewLifecycle(events.LifecycleResumed, ""))
	return types.PhaseRunning, nil
}

// Stop 终止会话并取消在途调用。对已终止的会话幂等。
func (o *Orchestrator) Stop() types.Phase {
	o.mu.Lock()
	if o.state == nil {
		o.mu.Unlock()
		return types.PhaseIdle
	}
	if o.paused {
		o.paused = false
		if o.resumeCh != nil {
			close(o.resumeCh)
			o.resumeCh = nil
		}
	}
	o.mu.Unlock()

	o.terminate(types.ReasonStopped)
	return types.PhaseTerminated
}

// terminate 进入 terminated：取消会话域、停掉专属服务器、发布结束事件。
// State.Terminate 保证只生效一次。
func (o *Orchestrator) terminate(reason string) {
	o.mu.Lock()
	st, tracker := o.state, o.tracker
	cancel := o.runCancel
	archiver := o.archiver
	o.mu.Unlock()
	if st == nil {
		return
	}

	atCycle := 0
	if tracker != nil {
		atCycle = tracker.CurrentCycle()
	}
	if !st.Terminate(reason, atCycle) {
		return
	}
	if cancel != nil {
		cancel()
	}
	for _, id := range st.Participating() {
		o.tools.StopAgentServers(id)
	}
	o.sink.Publish(events.NewLifecycle(events.LifecycleEnded, reason))
	o.logger.Info("conversation ended",
		zap.String("conversation_id", st.ID()),
		zap.String("reason", reason),
		zap.Int("at_cycle", atCycle))

	if archiver != nil {
		// 会话域已取消，归档用独立的限时 ctx
		ctx, cancelArchive := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelArchive()
		if err := archiver.Save(ctx, st.Snapshot()); err != nil {
			o.logger.Warn("failed to archive conversation",
				zap.String("conversation_id", st.ID()),
				zap.Error(err))
		}
	}
}

// Status 当前状态快照
func (o *Orchestrator) Status() types.StatusSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == nil {
		return types.StatusSnapshot{Phase: types.PhaseIdle}
	}
	return o.state.Status()
}

// Snapshot 深拷贝会话快照；尚未 start 时 ok 为 false
func (o *Orchestrator) Snapshot() (types.ConversationSnapshot, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == nil {
		return types.ConversationSnapshot{}, false
	}
	return o.state.Snapshot(), true
}

// ListScenarios 配置中的场景清单，第一个为默认
func (o *Orchestrator) ListScenarios() []types.ScenarioDescriptor {
	scenarios := o.cfg.Scenarios()
	out := make([]types.ScenarioDescriptor, 0, len(scenarios))
	for i, sc := range scenarios {
		out = append(out, types.ScenarioDescriptor{
			Name:                sc.Name,
			Goal:                sc.Goal,
			MaxCycles:           sc.MaxCycles,
			StartingAgent:       sc.StartingAgent,
			ParticipatingAgents: o.cfg.ParticipatingAgents(sc),
			Default:             i == 0,
		})
	}
	return out
}

func (o *Orchestrator) phaseLocked() types.Phase {
	if o.state == nil {
		return types.PhaseIdle
	}
	return o.state.Phase()
}
