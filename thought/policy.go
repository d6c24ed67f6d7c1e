// Package thought 将模型 token 流拆分为思考流与净化后的回复。
// 分隔符集合是策略而非契约，通过 Policy 接口注入，测试可替换。
package thought

// Pair 一组成对的思考分隔符
type Pair struct {
	Open  string
	Close string
}

// Policy 思考区域的识别策略。
type Policy interface {
	// Pairs 返回成对分隔符，按声明顺序尝试匹配
	Pairs() []Pair

	// LeadingPhrases 返回行首触发短语；命中的短语本身按思考处理。
	// 仅在 Agent 开启思考模式时参与匹配
	LeadingPhrases() []string
}

// defaultPolicy 默认识别集：XML 风格标签、thinking 代码围栏、
// 方括号标记以及少量行首短语。
type defaultPolicy struct{}

// DefaultPolicy 返回默认识别策略
func DefaultPolicy() Policy { return defaultPolicy{} }

func (defaultPolicy) Pairs() []Pair {
	return []Pair{
		{Open: "<thinking>", Close: "</thinking>"},
		{Open: "<think>", Close: "</think>"},
		{Open: "```thinking", Close: "```"},
		{Open: "[THINKING:", Close: "]"},
	}
}

func (defaultPolicy) LeadingPhrases() []string {
	return []string{
		"Let me think about this...",
		"Let me consider...",
		"I think...",
		"Hmm...",
	}
}
