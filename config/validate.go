// =============================================================================
// ✅ 配置校验
// =============================================================================
package config

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	modelNamePattern  = regexp.MustCompile(`^[a-zA-Z0-9_\-.:]+$`)
	serverNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)
)

// 支持的归档后端
var archiveBackends = map[string]bool{
	"sqlite":   true,
	"mysql":    true,
	"postgres": true,
	"redis":    true,
	"mongo":    true,
}

// Validate 校验完整配置，收集所有问题后一次性返回
func (c *Config) Validate() error {
	var errs []string

	// Agent 配置
	if len(c.Agents) < 2 {
		errs = append(errs, "at least two agents must be configured")
	}
	for id, agent := range c.Agents {
		errs = append(errs, validateAgent(id, agent)...)
	}

	// 全局工具服务器
	seen := make(map[string]bool)
	for _, def := range c.ToolServers.Global {
		errs = append(errs, validateToolServer("global", def)...)
		if seen[def.Name] {
			errs = append(errs, fmt.Sprintf("duplicate global tool server name %q", def.Name))
		}
		seen[def.Name] = true
	}

	// 场景
	scenarios := c.Scenarios()
	if len(scenarios) == 0 {
		errs = append(errs, "at least one scenario must be configured (conversation or conversations)")
	}
	names := make(map[string]bool)
	for i, sc := range scenarios {
		errs = append(errs, c.validateScenario(i, sc)...)
		if sc.Name != "" {
			if names[sc.Name] {
				errs = append(errs, fmt.Sprintf("duplicate scenario name %q", sc.Name))
			}
			names[sc.Name] = true
		}
	}

	// 归档
	if c.Archive.Enabled && !archiveBackends[c.Archive.Backend] {
		errs = append(errs, fmt.Sprintf("unsupported archive backend %q", c.Archive.Backend))
	}

	// 鉴权
	if c.Server.Auth.Enabled && c.Server.Auth.Secret == "" {
		errs = append(errs, "auth enabled but no secret configured")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validateAgent(id string, agent AgentConfig) []string {
	var errs []string

	if agent.Name == "" {
		errs = append(errs, fmt.Sprintf("agent %q must have a display name", id))
	}
	if agent.Persona == "" {
		errs = append(errs, fmt.Sprintf("agent %q must have a persona", id))
	}
	if !strings.HasPrefix(agent.Model.URL, "http://") && !strings.HasPrefix(agent.Model.URL, "https://") {
		errs = append(errs, fmt.Sprintf("agent %q model url must start with http:// or https://", id))
	}
	if agent.Model.ModelName == "" || !modelNamePattern.MatchString(agent.Model.ModelName) {
		errs = append(errs, fmt.Sprintf("agent %q model name may only contain alphanumerics, _, -, . and :", id))
	}
	for _, def := range agent.ToolServers {
		errs = append(errs, validateToolServer("agent "+id, def)...)
	}

	return errs
}

func validateToolServer(owner string, def ToolServerDef) []string {
	var errs []string

	if !serverNamePattern.MatchString(def.Name) {
		errs = append(errs, fmt.Sprintf("%s tool server name %q may only contain alphanumerics, _ and -", owner, def.Name))
	}
	if def.Command == "" {
		errs = append(errs, fmt.Sprintf("%s tool server %q must have a command", owner, def.Name))
	}

	return errs
}

func (c *Config) validateScenario(index int, sc ScenarioConfig) []string {
	var errs []string
	label := sc.Name
	if label == "" {
		label = fmt.Sprintf("#%d", index)
	}

	if sc.StartingAgent == "" {
		errs = append(errs, fmt.Sprintf("scenario %s must set starting_agent", label))
	} else if _, ok := c.Agents[sc.StartingAgent]; !ok {
		errs = append(errs, fmt.Sprintf("scenario %s starting agent %q not found in agents", label, sc.StartingAgent))
	}

	if sc.MaxCycles < 1 {
		errs = append(errs, fmt.Sprintf("scenario %s max_cycles must be at least 1", label))
	}

	if len(sc.AgentsInvolved) > 0 {
		if len(sc.AgentsInvolved) < 2 {
			errs = append(errs, fmt.Sprintf("scenario %s needs at least two participating agents", label))
		}
		involved := make(map[string]bool, len(sc.AgentsInvolved))
		for _, id := range sc.AgentsInvolved {
			involved[id] = true
			if _, ok := c.Agents[id]; !ok {
				errs = append(errs, fmt.Sprintf("scenario %s references unknown agent %q", label, id))
			}
		}
		if sc.StartingAgent != "" && !involved[sc.StartingAgent] {
			errs = append(errs, fmt.Sprintf("scenario %s starting agent %q is not among agents_involved", label, sc.StartingAgent))
		}
	}

	if sc.FirstMessage == "" && c.Initialization.FirstMessage == "" {
		errs = append(errs, fmt.Sprintf("scenario %s has no opening message (scenario or initialization.first_message)", label))
	}

	return errs
}
