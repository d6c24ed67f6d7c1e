package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Agents = map[string]AgentConfig{
		"alice": {
			Name:    "Alice",
			Persona: "persona a",
			Model:   ModelConfig{URL: "http://localhost:11434", ModelName: "llama2"},
		},
		"bob": {
			Name:    "Bob",
			Persona: "persona b",
			Model:   ModelConfig{URL: "http://localhost:11434", ModelName: "mistral:7b"},
		},
	}
	cfg.Conversation = &ScenarioConfig{StartingAgent: "alice", MaxCycles: 3}
	cfg.Initialization.FirstMessage = "hello"
	return cfg
}

func TestValidateAcceptsGoodConfig(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejectsSingleAgent(t *testing.T) {
	cfg := validConfig()
	delete(cfg.Agents, "bob")
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least two agents")
}

func TestValidateRejectsBadModelURL(t *testing.T) {
	cfg := validConfig()
	a := cfg.Agents["alice"]
	a.Model.URL = "localhost:11434"
	cfg.Agents["alice"] = a
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http://")
}

func TestValidateRejectsBadModelName(t *testing.T) {
	cfg := validConfig()
	a := cfg.Agents["bob"]
	a.Model.ModelName = "bad model!"
	cfg.Agents["bob"] = a
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownStartingAgent(t *testing.T) {
	cfg := validConfig()
	cfg.Conversation.StartingAgent = "mallory"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mallory")
}

func TestValidateRejectsStartingAgentOutsideInvolved(t *testing.T) {
	cfg := validConfig()
	cfg.Agents["carol"] = AgentConfig{
		Name:    "Carol",
		Persona: "persona c",
		Model:   ModelConfig{URL: "http://localhost:11434", ModelName: "llama2"},
	}
	cfg.Conversation.AgentsInvolved = []string{"bob", "carol"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not among agents_involved")
}

func TestValidateRejectsBadToolServerName(t *testing.T) {
	cfg := validConfig()
	cfg.ToolServers.Global = []ToolServerDef{{Name: "bad name", Command: "server"}}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsMissingOpeningMessage(t *testing.T) {
	cfg := validConfig()
	cfg.Initialization.FirstMessage = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening message")
}

func TestValidateRejectsDuplicateScenarioNames(t *testing.T) {
	cfg := validConfig()
	cfg.Conversation = nil
	cfg.Conversations = []ScenarioConfig{
		{Name: "debate", StartingAgent: "alice", MaxCycles: 2},
		{Name: "debate", StartingAgent: "bob", MaxCycles: 2},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate scenario name")
}

func TestValidateAuthNeedsSecret(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Auth.Enabled = true
	assert.Error(t, cfg.Validate())

	cfg.Server.Auth.Secret = "s3cret"
	assert.NoError(t, cfg.Validate())
}

func TestScenarioResolution(t *testing.T) {
	cfg := validConfig()
	cfg.Conversations = []ScenarioConfig{
		{Name: "debate", StartingAgent: "alice", MaxCycles: 4},
		{Name: "interview", StartingAgent: "bob", MaxCycles: 6, TurnTimeout: 30 * time.Second},
	}

	// 多场景形式优先于单场景
	sc, err := cfg.ResolveScenario("")
	require.NoError(t, err)
	assert.Equal(t, "debate", sc.Name)

	sc, err = cfg.ResolveScenario("interview")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, sc.TurnTimeout)

	_, err = cfg.ResolveScenario("nope")
	assert.Error(t, err)
}

func TestParticipatingAgentsDefaultsToAllSorted(t *testing.T) {
	cfg := validConfig()
	sc, err := cfg.ResolveScenario("")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, cfg.ParticipatingAgents(sc))

	sc.AgentsInvolved = []string{"bob", "alice"}
	assert.Equal(t, []string{"bob", "alice"}, cfg.ParticipatingAgents(sc))
}

func TestOpeningMessagePrecedence(t *testing.T) {
	cfg := validConfig()
	sc := ScenarioConfig{}
	assert.Equal(t, "hello", cfg.OpeningMessage(sc))

	sc.FirstMessage = "scenario opener"
	assert.Equal(t, "scenario opener", cfg.OpeningMessage(sc))
}
