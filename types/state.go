package types

// Phase 会话生命周期阶段。
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseRunning    Phase = "running"
	PhasePaused     Phase = "paused"
	PhaseTerminated Phase = "terminated"
)

// Termination reasons. Keyword terminations embed the matched word,
// built with KeywordReason.
const (
	ReasonMaxCycles  = "max_cycles"
	ReasonSilence    = "silence"
	ReasonStopped    = "stopped"
	ReasonAgentError = "agent_error"

	keywordReasonPrefix = "keyword:"
)

// KeywordReason builds the termination reason for a matched keyword.
func KeywordReason(word string) string {
	return keywordReasonPrefix + word
}

// Termination records why and when a conversation ended.
type Termination struct {
	Reason  string `json:"reason"`
	AtCycle int    `json:"at_cycle"`
}

// StatusSnapshot is the lightweight status view served by the command surface.
type StatusSnapshot struct {
	ConversationID string       `json:"conversation_id,omitempty"`
	Phase          Phase        `json:"phase"`
	CurrentCycle   int          `json:"current_cycle"`
	MessageCount   int          `json:"message_count"`
	NextAgent      string       `json:"next_agent,omitempty"`
	Termination    *Termination `json:"termination,omitempty"`
}

// ConversationSnapshot is a deep read-only copy of conversation state,
// shared by status queries, transcript export, and the archive.
type ConversationSnapshot struct {
	ID           string           `json:"id"`
	Messages     []Message        `json:"messages"`
	CurrentCycle int              `json:"current_cycle"`
	NextAgent    string           `json:"next_agent"`
	Phase        Phase            `json:"phase"`
	Termination  *Termination     `json:"termination,omitempty"`
	Scenario     ScenarioSnapshot `json:"scenario"`
}
