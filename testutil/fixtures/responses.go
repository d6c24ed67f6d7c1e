// =============================================================================
// 📦 测试数据工厂 - 模型响应
// =============================================================================
// 提供预定义的模型响应数据，用于测试
// =============================================================================
package fixtures

import (
	"encoding/json"
	"time"

	"github.com/BaSui01/convoflow/llm"
	"github.com/BaSui01/convoflow/types"
)

// =============================================================================
// 🎯 ChatResponse 工厂
// =============================================================================

// Response 简单的文本响应
func Response(content string) *llm.ChatResponse {
	return &llm.ChatResponse{
		Provider:  "ollama",
		Model:     "llama2",
		Message:   types.NewAIMessage("", content),
		Usage:     llm.ChatUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
		CreatedAt: time.Now().UTC(),
	}
}

// ThinkingResponse 带独立思考区的响应
func ThinkingResponse(thinking, content string) *llm.ChatResponse {
	resp := Response(content)
	resp.Thinking = thinking
	return resp
}

// InlineThinkingResponse 思考内容内联在 <think> 标签里的响应
func InlineThinkingResponse(thinking, content string) *llm.ChatResponse {
	return Response("<think>" + thinking + "</think>" + content)
}

// ToolCallResponse 请求调用工具的响应
func ToolCallResponse(calls ...types.ToolCall) *llm.ChatResponse {
	resp := Response("")
	resp.Message = resp.Message.WithToolCalls(calls)
	return resp
}

// CalculatorCall 计算器工具调用
func CalculatorCall(id string, a, b float64, op string) types.ToolCall {
	args, _ := json.Marshal(map[string]any{"a": a, "b": b, "op": op})
	return types.ToolCall{ID: id, Name: "calculator", Arguments: args}
}

// =============================================================================
// 🌊 StreamChunk 工厂
// =============================================================================

// TextChunk 文本增量块
func TextChunk(content string) llm.StreamChunk {
	return llm.StreamChunk{Provider: "ollama", Model: "llama2", Content: content}
}

// ThinkingChunk 思考增量块
func ThinkingChunk(thinking string) llm.StreamChunk {
	return llm.StreamChunk{Provider: "ollama", Model: "llama2", Thinking: thinking}
}

// DoneChunk 流结束块
func DoneChunk() llm.StreamChunk {
	return llm.StreamChunk{
		Provider: "ollama",
		Model:    "llama2",
		Done:     true,
		Usage:    &llm.ChatUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}
}

// ErrorChunk 流中断块
func ErrorChunk(err *types.Error) llm.StreamChunk {
	return llm.StreamChunk{Provider: "ollama", Model: "llama2", Err: err}
}

// StreamOf 把文本按固定块长切成流式序列，末尾附结束块
func StreamOf(content string, chunkSize int) []llm.StreamChunk {
	var chunks []llm.StreamChunk
	for i := 0; i < len(content); i += chunkSize {
		end := i + chunkSize
		if end > len(content) {
			end = len(content)
		}
		chunks = append(chunks, TextChunk(content[i:end]))
	}
	return append(chunks, DoneChunk())
}
