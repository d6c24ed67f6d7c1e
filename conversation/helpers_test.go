package conversation

import (
	"time"

	"github.com/BaSui01/convoflow/config"
	"github.com/BaSui01/convoflow/types"
)

// testScenario 两人场景快照，测试共用
func testScenario() types.ScenarioSnapshot {
	return types.ScenarioSnapshot{
		Name:                "debate",
		Goal:                "settle the tabs versus spaces question",
		MaxCycles:           3,
		StartingAgent:       "alice",
		ParticipatingAgents: []string{"alice", "bob"},
		TurnTimeout:         5 * time.Second,
		OpeningMessage:      "Let's begin.",
	}
}

func testAgent(id string) types.Agent {
	return types.Agent{
		ID:                   id,
		DisplayName:          id,
		RenderedSystemPrompt: "You are " + id + ".",
		ModelEndpoint: types.ModelEndpoint{
			Provider:  "ollama",
			URL:       "http://localhost:11434",
			ModelName: "test-model",
		},
	}
}

// testConfig 两个 Agent 加单场景的最小配置
func testConfig() *config.Config {
	return &config.Config{
		Agents: map[string]config.AgentConfig{
			"alice": {
				Name:    "Alice",
				Persona: "A pragmatic engineer who values simplicity.",
				Model: config.ModelConfig{
					Provider:  "ollama",
					URL:       "http://localhost:11434",
					ModelName: "llama2",
				},
			},
			"bob": {
				Name:    "Bob",
				Persona: "A careful reviewer who asks hard questions.",
				Model: config.ModelConfig{
					Provider:  "ollama",
					URL:       "http://localhost:11434",
					ModelName: "mistral",
				},
			},
		},
		Conversation: &config.ScenarioConfig{
			Name:          "debate",
			Goal:          "settle the tabs versus spaces question",
			StartingAgent: "alice",
			MaxCycles:     3,
			FirstMessage:  "Let's begin.",
		},
		Engine: config.EngineConfig{
			MaxToolIterations: 8,
			ToolCallTimeout:   time.Second,
		},
	}
}
