package conversation

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/BaSui01/convoflow/config"
	"github.com/BaSui01/convoflow/types"
)

// ToolRuntime 初始化与编排需要的工具服务器运行时，mcp.Registry 实现
type ToolRuntime interface {
	ToolBroker
	StartAgentServers(ctx context.Context, agentID string, specs []types.ToolServerSpec)
	StopAgentServers(agentID string)
}

// Overrides 启动时的运行期覆盖
type Overrides struct {
	// MaxCycles 覆盖场景的最大 cycle 数（0 表示不覆盖）
	MaxCycles int
	// StartingAgent 覆盖起始发言者，必须是参与者
	StartingAgent string
}

// DefaultSystemPromptTemplate 未配置模板时的系统提示词
const DefaultSystemPromptTemplate = `You are {{.Agent.Name}}.

{{.Agent.Persona}}

You are taking part in the conversation "{{.Conversation.ScenarioName}}" together with {{join .Conversation.ParticipatingAgents ", "}}.
{{- if .Conversation.Goal}}
Goal: {{.Conversation.Goal}}{{end}}
{{- if .Conversation.Brevity}}
Style: {{.Conversation.Brevity}}{{end}}
The conversation runs for at most {{.Conversation.MaxCycles}} cycles.
{{- if .Tools}}
You can use the following tools when helpful: {{join .Tools ", "}}.{{end}}`

// promptContext 模板渲染上下文
type promptContext struct {
	Agent struct {
		Name     string
		Persona  string
		Metadata map[string]any
	}
	Conversation struct {
		ScenarioName        string
		Goal                string
		Brevity             string
		MaxCycles           int
		ParticipatingAgents []string
	}
	Tools []string
}

// Initialize 一次性装配会话状态：解析场景、冻结参数、校验参与者、
// 启动 Agent 专属工具服务器、渲染系统提示词、播种开场消息。
// 返回的状态 phase 为 idle，由编排器切换到 running。
func Initialize(ctx context.Context, cfg *config.Config, scenarioName string, ov Overrides, tools ToolRuntime, logger *zap.Logger) (*State, map[string]types.Agent, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	sc, err := cfg.ResolveScenario(scenarioName)
	if err != nil {
		if scenarioName != "" {
			return nil, nil, types.NewError(types.ErrScenarioNotFound, err.Error())
		}
		return nil, nil, types.NewError(types.ErrConfigInvalid, err.Error())
	}

	participating := cfg.ParticipatingAgents(sc)
	if len(participating) < 2 {
		return nil, nil, types.NewError(types.ErrTooFewAgents,
			fmt.Sprintf("scenario %q needs at least two participating agents, got %d", sc.Name, len(participating)))
	}
	for _, id := range participating {
		if _, ok := cfg.Agents[id]; !ok {
			return nil, nil, types.NewError(types.ErrConfigInvalid,
				fmt.Sprintf("participating agent %q is not configured", id))
		}
	}

	snapshot := freezeScenario(cfg, sc, participating)
	if ov.MaxCycles > 0 {
		snapshot.MaxCycles = ov.MaxCycles
	}
	if ov.StartingAgent != "" {
		if !contains(participating, ov.StartingAgent) {
			return nil, nil, types.NewError(types.ErrInvalidOverride,
				fmt.Sprintf("starting agent override %q is not a participant", ov.StartingAgent))
		}
		snapshot.StartingAgent = ov.StartingAgent
	}
	if !contains(participating, snapshot.StartingAgent) {
		return nil, nil, types.NewError(types.ErrConfigInvalid,
			fmt.Sprintf("starting agent %q is not a participant", snapshot.StartingAgent))
	}

	// 专属服务器先于模板渲染启动，工具名才能进入渲染上下文
	for _, id := range participating {
		defs := cfg.Agents[id].ToolServers
		if len(defs) == 0 {
			continue
		}
		specs := make([]types.ToolServerSpec, 0, len(defs))
		for _, def := range defs {
			specs = append(specs, types.ToolServerSpec{
				Name:    def.Name,
				Command: def.Command,
				Args:    def.Args,
				Env:     def.Env,
			})
		}
		tools.StartAgentServers(ctx, id, specs)
	}

	tmplText := snapshot.SystemPromptTemplate
	if tmplText == "" {
		tmplText = DefaultSystemPromptTemplate
	}
	tmpl, err := template.New("system_prompt").
		Funcs(template.FuncMap{"join": strings.Join}).
		Parse(tmplText)
	if err != nil {
		return nil, nil, types.NewError(types.ErrConfigInvalid,
			fmt.Sprintf("system prompt template: %v", err))
	}

	agents := make(map[string]types.Agent, len(participating))
	for _, id := range participating {
		ac := cfg.Agents[id]
		rendered, err := renderPrompt(tmpl, ac, snapshot, toolNames(tools, id))
		if err != nil {
			return nil, nil, types.NewError(types.ErrConfigInvalid,
				fmt.Sprintf("render system prompt for %s: %v", id, err))
		}
		serverNames := make([]string, 0, len(ac.ToolServers))
		for _, def := range ac.ToolServers {
			serverNames = append(serverNames, fmt.Sprintf("%s_%s", id, def.Name))
		}
		agents[id] = types.Agent{
			ID:                   id,
			DisplayName:          ac.Name,
			PersonaText:          ac.Persona,
			RenderedSystemPrompt: rendered,
			ModelEndpoint: types.ModelEndpoint{
				Provider:   ac.Model.Provider,
				URL:        ac.Model.URL,
				ModelName:  ac.Model.ModelName,
				Parameters: ac.Model.Parameters,
				Timeout:    ac.Model.Timeout,
			},
			ThinkingEnabled: ac.Model.Thinking,
			ToolServers:     serverNames,
			Metadata:        ac.Metadata,
		}
	}

	st := NewState(snapshot, participating)
	if snapshot.OpeningMessage != "" {
		opening := types.NewHumanMessage(snapshot.StartingAgent, snapshot.OpeningMessage)
		if err := st.Append(opening); err != nil {
			return nil, nil, err
		}
	}

	logger.Info("conversation initialized",
		zap.String("conversation_id", st.ID()),
		zap.String("scenario", snapshot.Name),
		zap.Strings("participating", participating),
		zap.Int("max_cycles", snapshot.MaxCycles))
	return st, agents, nil
}

// freezeScenario 把场景配置与全局默认冻结为快照
func freezeScenario(cfg *config.Config, sc config.ScenarioConfig, participating []string) types.ScenarioSnapshot {
	return types.ScenarioSnapshot{
		Name:                 sc.Name,
		Goal:                 sc.Goal,
		Brevity:              sc.Brevity,
		MaxCycles:            sc.MaxCycles,
		StartingAgent:        sc.StartingAgent,
		ParticipatingAgents:  append([]string(nil), participating...),
		TurnTimeout:          sc.TurnTimeout,
		KeywordTriggers:      append([]string(nil), sc.Termination.KeywordTriggers...),
		SilenceThreshold:     sc.Termination.SilenceThreshold,
		SilenceMinLength:     sc.Termination.SilenceMinLength,
		OpeningMessage:       cfg.OpeningMessage(sc),
		SystemPromptTemplate: cfg.PromptTemplate(sc),
	}
}

func renderPrompt(tmpl *template.Template, ac config.AgentConfig, snapshot types.ScenarioSnapshot, toolList []string) (string, error) {
	var pc promptContext
	pc.Agent.Name = ac.Name
	pc.Agent.Persona = ac.Persona
	pc.Agent.Metadata = ac.Metadata
	pc.Conversation.ScenarioName = snapshot.Name
	pc.Conversation.Goal = snapshot.Goal
	pc.Conversation.Brevity = snapshot.Brevity
	pc.Conversation.MaxCycles = snapshot.MaxCycles
	pc.Conversation.ParticipatingAgents = snapshot.ParticipatingAgents
	pc.Tools = toolList

	var sb strings.Builder
	if err := tmpl.Execute(&sb, pc); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func toolNames(tools ToolBroker, agentID string) []string {
	defs := tools.ToolDefsForAgent(agentID)
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		names = append(names, def.Name)
	}
	return names
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
