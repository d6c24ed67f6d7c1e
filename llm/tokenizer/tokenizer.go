package tokenizer

import (
	"fmt"
	"sync"
)

// Tokenizer 统一的 token 计数接口.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// CountMessages 返回消息列表的总 token 数,
	// 包括每条消息的开销（角色标记、分隔符等）。
	CountMessages(messages []Message) (int, error)

	// MaxTokens 返回模型的最大上下文长度.
	MaxTokens() int

	// Name 返回分词器的名称.
	Name() string
}

// Message 轻量级消息结构, 避免与 llm 包循环依赖。
type Message struct {
	Role    string
	Content string
}

// 全局分词器注册表.
var (
	modelTokenizers   = make(map[string]Tokenizer)
	modelTokenizersMu sync.RWMutex
)

// RegisterTokenizer 为模型注册分词器，后注册覆盖先注册。
func RegisterTokenizer(model string, t Tokenizer) {
	modelTokenizersMu.Lock()
	defer modelTokenizersMu.Unlock()
	modelTokenizers[model] = t
}

// ForModel 返回模型对应的分词器。
// 未注册的模型回退到字符估算器, 本地模型（llama2、mistral 等）
// 没有公开的词表时估算已足够用于预算统计。
func ForModel(model string) Tokenizer {
	modelTokenizersMu.RLock()
	if t, ok := modelTokenizers[model]; ok {
		modelTokenizersMu.RUnlock()
		return t
	}
	modelTokenizersMu.RUnlock()
	return NewEstimatorTokenizer(model, 0)
}

// MustForModel 同 ForModel 但要求模型已显式注册。
func MustForModel(model string) (Tokenizer, error) {
	modelTokenizersMu.RLock()
	defer modelTokenizersMu.RUnlock()
	if t, ok := modelTokenizers[model]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("no tokenizer registered for model %q", model)
}
