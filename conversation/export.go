package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/convoflow/types"
)

// ExportMarkdown 把会话快照渲染为 Markdown 转写稿。
// 系统提示与思考不出现在转写稿中；cycle 标记渲染为分隔线。
func ExportMarkdown(snap types.ConversationSnapshot) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Conversation: %s\n\n", snap.Scenario.Name)
	if snap.Scenario.Goal != "" {
		fmt.Fprintf(&sb, "**Goal:** %s\n\n", snap.Scenario.Goal)
	}
	fmt.Fprintf(&sb, "**Participants:** %s\n", strings.Join(snap.Scenario.ParticipatingAgents, ", "))
	fmt.Fprintf(&sb, "**Cycles:** %d / %d\n", snap.CurrentCycle, snap.Scenario.MaxCycles)
	fmt.Fprintf(&sb, "**Phase:** %s\n", snap.Phase)
	if snap.Termination != nil {
		fmt.Fprintf(&sb, "**Terminated:** %s (cycle %d)\n", snap.Termination.Reason, snap.Termination.AtCycle)
	}
	sb.WriteString("\n---\n\n")

	for _, msg := range snap.Messages {
		switch msg.Role {
		case types.RoleHuman, types.RoleAI:
			if msg.Content == "" {
				continue
			}
			fmt.Fprintf(&sb, "### %s\n", msg.Author)
			fmt.Fprintf(&sb, "*%s*\n\n", msg.Timestamp.Format(time.RFC3339))
			sb.WriteString(msg.Content)
			sb.WriteString("\n\n")
		case types.RoleTool:
			name := toolName(msg)
			fmt.Fprintf(&sb, "> tool `%s`: %s\n\n", name, firstLine(msg.Content))
		case types.RoleCycleMarker:
			fmt.Fprintf(&sb, "---\n*%s*\n\n", msg.Content)
		}
	}

	return sb.String()
}

func toolName(msg types.Message) string {
	if name, ok := msg.Metadata["tool_name"].(string); ok {
		return name
	}
	return "unknown"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
