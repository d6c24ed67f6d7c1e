package conversation

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/convoflow/types"
)

func exportSnapshot(t *testing.T) types.ConversationSnapshot {
	t.Helper()
	st := NewState(testScenario(), []string{"alice", "bob"})
	require.NoError(t, st.Append(types.NewHumanMessage("alice", "Let's begin.")))
	require.NoError(t, st.Append(types.NewAIMessage("alice", "Tabs, obviously.")))

	aiWithCall := types.NewAIMessage("bob", "").WithToolCalls([]types.ToolCall{
		{ID: "call-1", Name: "search", Arguments: json.RawMessage(`{"q":"indentation"}`)},
	})
	require.NoError(t, st.Append(aiWithCall))
	require.NoError(t, st.Append(types.NewToolMessage("call-1", "search", "17 million results\nfirst: a flame war")))
	require.NoError(t, st.Append(types.NewAIMessage("bob", "The evidence favors spaces.")))
	require.NoError(t, st.AppendCycleMarker(1))
	st.SetCycle(1)
	st.Terminate(types.ReasonMaxCycles, 1)
	return st.Snapshot()
}

func TestExportMarkdownHeader(t *testing.T) {
	md := ExportMarkdown(exportSnapshot(t))

	assert.True(t, strings.HasPrefix(md, "# Conversation: debate\n"))
	assert.Contains(t, md, "**Goal:** settle the tabs versus spaces question")
	assert.Contains(t, md, "**Participants:** alice, bob")
	assert.Contains(t, md, "**Cycles:** 1 / 3")
	assert.Contains(t, md, "**Terminated:** max_cycles (cycle 1)")
}

func TestExportMarkdownBody(t *testing.T) {
	md := ExportMarkdown(exportSnapshot(t))

	assert.Contains(t, md, "### alice\n")
	assert.Contains(t, md, "Tabs, obviously.")
	assert.Contains(t, md, "### bob\n")
	assert.Contains(t, md, "The evidence favors spaces.")

	// 工具结果只取首行做引用
	assert.Contains(t, md, "> tool `search`: 17 million results\n")
	assert.NotContains(t, md, "a flame war")

	// cycle 标记渲染为分隔线
	assert.Contains(t, md, "*--- Cycle 1 Complete ---*")
}

func TestExportMarkdownSkipsSystemAndEmpty(t *testing.T) {
	st := NewState(testScenario(), []string{"alice", "bob"})
	require.NoError(t, st.Append(types.NewSystemMessage("alice", "You are alice.")))
	require.NoError(t, st.Append(types.NewAIMessage("bob", "visible")))

	md := ExportMarkdown(st.Snapshot())
	assert.NotContains(t, md, "You are alice.")
	assert.Contains(t, md, "visible")
}
