// =============================================================================
// 📦 测试数据工厂 - 配置与场景
// =============================================================================
// 提供预定义的引擎配置和场景，用于测试
// =============================================================================
package fixtures

import (
	"time"

	"github.com/BaSui01/convoflow/config"
)

// =============================================================================
// 🤖 Agent 配置工厂
// =============================================================================

// OllamaModel 指向本地 Ollama 端点的模型配置
func OllamaModel(model string) config.ModelConfig {
	return config.ModelConfig{
		Provider:  "ollama",
		URL:       "http://localhost:11434",
		ModelName: model,
	}
}

// Agent 最小化的 Agent 配置
func Agent(name, persona, model string) config.AgentConfig {
	return config.AgentConfig{
		Name:    name,
		Persona: persona,
		Model:   OllamaModel(model),
	}
}

// ThinkingAgent 启用思考区过滤的 Agent 配置
func ThinkingAgent(name, persona, model string) config.AgentConfig {
	cfg := Agent(name, persona, model)
	cfg.Model.Thinking = true
	return cfg
}

// AgentWithTools 带专属工具服务器的 Agent 配置
func AgentWithTools(name, persona, model string, servers ...config.ToolServerDef) config.AgentConfig {
	cfg := Agent(name, persona, model)
	cfg.ToolServers = servers
	return cfg
}

// =============================================================================
// 🎬 引擎配置工厂
// =============================================================================

// DebateConfig 两个 Agent 加单场景的标准测试配置
func DebateConfig() *config.Config {
	return &config.Config{
		Agents: map[string]config.AgentConfig{
			"alice": Agent("Alice", "A pragmatic engineer who values simplicity.", "llama2"),
			"bob":   Agent("Bob", "A careful reviewer who asks hard questions.", "mistral"),
		},
		Conversation: &config.ScenarioConfig{
			Name:          "debate",
			Goal:          "settle the tabs versus spaces question",
			StartingAgent: "alice",
			MaxCycles:     3,
			FirstMessage:  "Let's begin.",
		},
		Engine: DefaultEngine(),
	}
}

// TrioConfig 三个 Agent 加多场景的配置，第二个场景限定参与者子集
func TrioConfig() *config.Config {
	return &config.Config{
		Agents: map[string]config.AgentConfig{
			"alice": Agent("Alice", "A pragmatic engineer.", "llama2"),
			"bob":   Agent("Bob", "A careful reviewer.", "mistral"),
			"carol": Agent("Carol", "A curious newcomer.", "phi3"),
		},
		Conversations: []config.ScenarioConfig{
			{
				Name:          "standup",
				Goal:          "share progress and blockers",
				StartingAgent: "alice",
				MaxCycles:     2,
				FirstMessage:  "Good morning, everyone.",
			},
			{
				Name:           "pairing",
				Goal:           "review the new parser",
				StartingAgent:  "bob",
				MaxCycles:      4,
				AgentsInvolved: []string{"bob", "carol"},
				FirstMessage:   "Shall we walk through it?",
			},
		},
		Engine: DefaultEngine(),
	}
}

// KeywordTerminationConfig 关键字触发终止的场景配置
func KeywordTerminationConfig(keywords ...string) *config.Config {
	cfg := DebateConfig()
	cfg.Conversation.MaxCycles = 50
	cfg.Conversation.Termination = config.TerminationConfig{
		KeywordTriggers: keywords,
	}
	return cfg
}

// SilenceTerminationConfig 静默检测终止的场景配置
func SilenceTerminationConfig(threshold, minLength int) *config.Config {
	cfg := DebateConfig()
	cfg.Conversation.MaxCycles = 50
	cfg.Conversation.Termination = config.TerminationConfig{
		SilenceThreshold: threshold,
		SilenceMinLength: minLength,
	}
	return cfg
}

// DefaultEngine 测试用的引擎参数，超时压短避免拖慢用例
func DefaultEngine() config.EngineConfig {
	return config.EngineConfig{
		MaxToolIterations: 8,
		StartupDeadline:   2 * time.Second,
		GracePeriod:       time.Second,
		HealthInterval:    time.Second,
		ToolCallTimeout:   time.Second,
		CancellationGrace: time.Second,
		EventQueueSize:    64,
	}
}

// =============================================================================
// 🔧 工具服务器定义工厂
// =============================================================================

// CalculatorServer 由测试桩进程提供的计算器工具服务器定义
func CalculatorServer() config.ToolServerDef {
	return config.ToolServerDef{
		Name:    "calculator",
		Command: "testdata/calculator-stub",
	}
}

// EchoServer 回显工具服务器定义
func EchoServer(name string) config.ToolServerDef {
	return config.ToolServerDef{
		Name:    name,
		Command: "testdata/echo-stub",
	}
}
