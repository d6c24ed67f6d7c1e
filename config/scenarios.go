// =============================================================================
// 🎬 场景解析
// =============================================================================
package config

import (
	"fmt"
	"sort"
)

// AnonymousScenarioName 单场景（legacy）形式的场景名
const AnonymousScenarioName = "default"

// Scenarios 返回归一化后的场景列表。
// 多场景形式优先；单场景形式作为一个匿名场景返回。
func (c *Config) Scenarios() []ScenarioConfig {
	if len(c.Conversations) > 0 {
		out := make([]ScenarioConfig, len(c.Conversations))
		copy(out, c.Conversations)
		for i := range out {
			normalizeScenario(&out[i])
		}
		return out
	}
	if c.Conversation != nil {
		sc := *c.Conversation
		if sc.Name == "" {
			sc.Name = AnonymousScenarioName
		}
		normalizeScenario(&sc)
		return []ScenarioConfig{sc}
	}
	return nil
}

// normalizeScenario 填充场景级默认值
func normalizeScenario(sc *ScenarioConfig) {
	if sc.MaxCycles == 0 {
		sc.MaxCycles = DefaultMaxCycles
	}
	if sc.TurnTimeout == 0 {
		sc.TurnTimeout = DefaultTurnTimeout
	}
	if sc.Termination.SilenceThreshold > 0 && sc.Termination.SilenceMinLength == 0 {
		sc.Termination.SilenceMinLength = DefaultSilenceMinLength
	}
}

// ResolveScenario 按名称查找场景；name 为空时返回第一个定义的场景
func (c *Config) ResolveScenario(name string) (ScenarioConfig, error) {
	scenarios := c.Scenarios()
	if len(scenarios) == 0 {
		return ScenarioConfig{}, fmt.Errorf("no scenarios configured")
	}
	if name == "" {
		return scenarios[0], nil
	}
	for _, sc := range scenarios {
		if sc.Name == name {
			return sc, nil
		}
	}
	return ScenarioConfig{}, fmt.Errorf("scenario %q not found", name)
}

// ParticipatingAgents 返回场景的参与者 id 列表。
// 场景未指定 agents_involved 时为全部配置的 Agent（按 id 排序保证确定性）。
func (c *Config) ParticipatingAgents(sc ScenarioConfig) []string {
	if len(sc.AgentsInvolved) > 0 {
		out := make([]string, len(sc.AgentsInvolved))
		copy(out, sc.AgentsInvolved)
		return out
	}
	out := make([]string, 0, len(c.Agents))
	for id := range c.Agents {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// OpeningMessage 返回场景生效的开场消息（场景级覆盖全局）
func (c *Config) OpeningMessage(sc ScenarioConfig) string {
	if sc.FirstMessage != "" {
		return sc.FirstMessage
	}
	return c.Initialization.FirstMessage
}

// PromptTemplate 返回场景生效的系统提示词模板（场景级覆盖全局）
func (c *Config) PromptTemplate(sc ScenarioConfig) string {
	if sc.SystemPromptTemplate != "" {
		return sc.SystemPromptTemplate
	}
	return c.Initialization.SystemPromptTemplate
}
