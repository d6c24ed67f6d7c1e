package thought

import "strings"

type state int

const (
	stateOutside state = iota
	statePossibleOpen
	stateInside
	statePossibleClose
)

// Filter 流式思考过滤器。
// 对 token 流维护 OUTSIDE / POSSIBLE_OPEN / INSIDE_THOUGHT / POSSIBLE_CLOSE
// 状态机：OUTSIDE 的 token 进入净化输出，INSIDE_THOUGHT 的只进思考流。
// 跨 chunk 边界的半个分隔符通过前缀缓冲消歧，误判前缀回流到净化输出。
type Filter struct {
	policy  Policy
	phrases bool

	onToken   func(string)
	onThought func(string)

	st      state
	buf     string
	active  Pair
	lastOut byte

	response strings.Builder
	thoughts strings.Builder
}

// Options 过滤器回调配置。OnToken 收净化 token，OnThought 收思考片段。
// ThinkingEnabled 控制行首短语识别；成对分隔符始终生效。
type Options struct {
	OnToken         func(string)
	OnThought       func(string)
	ThinkingEnabled bool
}

// NewFilter 创建过滤器。policy 为 nil 时使用默认识别集。
func NewFilter(policy Policy, opts Options) *Filter {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Filter{
		policy:    policy,
		phrases:   opts.ThinkingEnabled,
		onToken:   opts.OnToken,
		onThought: opts.OnThought,
		st:        stateOutside,
	}
}

// Feed 推入一个流式 chunk
func (f *Filter) Feed(chunk string) {
	if chunk == "" {
		return
	}
	f.buf += chunk
	f.process(false)
}

// Flush 流结束。未闭合的思考区域整体按思考处理，不回流到回复；
// 悬而未决的疑似分隔符前缀回流到净化输出。
func (f *Filter) Flush() {
	f.process(true)
}

// Response 返回净化并清理残留后的最终回复
func (f *Filter) Response() string {
	return Scrub(f.response.String())
}

// ThoughtText 返回捕获的全部思考文本
func (f *Filter) ThoughtText() string {
	return f.thoughts.String()
}

func (f *Filter) process(flush bool) {
	for {
		switch f.st {
		case stateOutside, statePossibleOpen:
			if !f.processOutside(flush) {
				return
			}
		case stateInside, statePossibleClose:
			if !f.processInside(flush) {
				return
			}
		}
	}
}

// processOutside 返回 false 表示本轮无法继续推进
func (f *Filter) processOutside(flush bool) bool {
	idx, pair, phrase := f.earliestMatch()
	if idx >= 0 {
		f.emitToken(f.buf[:idx])
		if phrase != "" {
			f.emitThought(phrase)
			f.buf = f.buf[idx+len(phrase):]
			f.st = stateOutside
			return len(f.buf) > 0
		}
		f.buf = f.buf[idx+len(pair.Open):]
		f.active = pair
		f.st = stateInside
		return true
	}

	keep := f.pendingSuffix()
	if flush {
		keep = 0
	}
	cut := len(f.buf) - keep
	f.emitToken(f.buf[:cut])
	f.buf = f.buf[cut:]
	if keep > 0 {
		f.st = statePossibleOpen
	} else {
		f.st = stateOutside
	}
	return false
}

func (f *Filter) processInside(flush bool) bool {
	if idx := strings.Index(f.buf, f.active.Close); idx >= 0 {
		f.emitThought(f.buf[:idx])
		f.buf = f.buf[idx+len(f.active.Close):]
		f.st = stateOutside
		return true
	}

	keep := 0
	if !flush {
		keep = suffixPrefixLen(f.buf, []string{f.active.Close})
	}
	cut := len(f.buf) - keep
	f.emitThought(f.buf[:cut])
	f.buf = f.buf[cut:]
	if flush && len(f.buf) > 0 {
		f.emitThought(f.buf)
		f.buf = ""
	}
	if keep > 0 {
		f.st = statePossibleClose
	} else {
		f.st = stateInside
	}
	return false
}

// earliestMatch 在缓冲内查找最早出现的开分隔符或行首短语。
// 返回 (-1, Pair{}, "") 表示无完整匹配。
func (f *Filter) earliestMatch() (int, Pair, string) {
	best := -1
	var bestPair Pair
	bestPhrase := ""

	for _, p := range f.policy.Pairs() {
		if idx := strings.Index(f.buf, p.Open); idx >= 0 && (best < 0 || idx < best) {
			best = idx
			bestPair = p
			bestPhrase = ""
		}
	}
	if f.phrases {
		for _, ph := range f.policy.LeadingPhrases() {
			idx := strings.Index(f.buf, ph)
			if idx < 0 || !f.atLineStart(idx) {
				continue
			}
			if best < 0 || idx < best {
				best = idx
				bestPair = Pair{}
				bestPhrase = ph
			}
		}
	}
	return best, bestPair, bestPhrase
}

// atLineStart 判断缓冲内偏移 idx 是否处于行首
func (f *Filter) atLineStart(idx int) bool {
	if idx == 0 {
		return f.lastOut == 0 || f.lastOut == '\n'
	}
	return f.buf[idx-1] == '\n'
}

// pendingSuffix 返回缓冲尾部可能是分隔符前缀的长度
func (f *Filter) pendingSuffix() int {
	candidates := make([]string, 0, 8)
	for _, p := range f.policy.Pairs() {
		candidates = append(candidates, p.Open)
	}
	n := suffixPrefixLen(f.buf, candidates)

	if f.phrases {
		for _, ph := range f.policy.LeadingPhrases() {
			k := suffixPrefixLen(f.buf, []string{ph})
			if k > n && f.atLineStart(len(f.buf)-k) {
				n = k
			}
		}
	}
	return n
}

// suffixPrefixLen 返回 s 的最长后缀长度，该后缀是任一候选的真前缀
func suffixPrefixLen(s string, candidates []string) int {
	max := 0
	for _, c := range candidates {
		limit := len(c) - 1
		if limit > len(s) {
			limit = len(s)
		}
		for k := limit; k > max; k-- {
			if strings.HasPrefix(c, s[len(s)-k:]) {
				max = k
				break
			}
		}
	}
	return max
}

func (f *Filter) emitToken(s string) {
	if s == "" {
		return
	}
	f.lastOut = s[len(s)-1]
	f.response.WriteString(s)
	if f.onToken != nil {
		f.onToken(s)
	}
}

func (f *Filter) emitThought(s string) {
	if s == "" {
		return
	}
	f.thoughts.WriteString(s)
	if f.onThought != nil {
		f.onThought(s)
	}
}
