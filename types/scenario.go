package types

import "time"

// ScenarioSnapshot 会话启动时从选定场景冻结的参数集。
// 运行期覆盖（max_cycles、starting_agent）在冻结时应用，之后不再变化。
type ScenarioSnapshot struct {
	Name                 string        `json:"name"`
	Goal                 string        `json:"goal,omitempty"`
	Brevity              string        `json:"brevity,omitempty"`
	MaxCycles            int           `json:"max_cycles"`
	StartingAgent        string        `json:"starting_agent"`
	ParticipatingAgents  []string      `json:"participating_agents"`
	TurnTimeout          time.Duration `json:"turn_timeout"`
	KeywordTriggers      []string      `json:"keyword_triggers,omitempty"`
	SilenceThreshold     int           `json:"silence_threshold,omitempty"`
	SilenceMinLength     int           `json:"silence_min_length,omitempty"`
	OpeningMessage       string        `json:"opening_message"`
	SystemPromptTemplate string        `json:"system_prompt_template,omitempty"`
}

// ScenarioDescriptor is the listing form returned by the command surface.
type ScenarioDescriptor struct {
	Name                string   `json:"name"`
	Goal                string   `json:"goal,omitempty"`
	MaxCycles           int      `json:"max_cycles"`
	StartingAgent       string   `json:"starting_agent"`
	ParticipatingAgents []string `json:"participating_agents,omitempty"`
	Default             bool     `json:"default"`
}
