package thought

import (
	"regexp"
	"strings"
)

// 残留思考痕迹与病态标点的清理规则。
// 只删除可识别的思考区域并收敛重复标点，不改写其他内容。
var (
	residualRegions = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<thinking>.*?</thinking>`),
		regexp.MustCompile(`(?is)<think>.*?</think>`),
		regexp.MustCompile("(?s)```thinking\n.*?\n```"),
		regexp.MustCompile(`(?is)\[THINKING:.*?\]`),
	}

	ellipsisRuns  = regexp.MustCompile(`…{3,}`)
	periodRuns    = regexp.MustCompile(`\.{4,}`)
	newlineRuns   = regexp.MustCompile(`\n{3,}`)
	spaceRuns     = regexp.MustCompile(`[ \t]{3,}`)
	scrollingRuns = regexp.MustCompile(`Scrolling[…\.]+`)
)

// Scrub 清除文本中残留的思考区域与多余标点
func Scrub(text string) string {
	for _, re := range residualRegions {
		text = re.ReplaceAllString(text, "")
	}
	text = scrollingRuns.ReplaceAllString(text, "")
	text = ellipsisRuns.ReplaceAllString(text, "")
	text = periodRuns.ReplaceAllString(text, "...")
	text = newlineRuns.ReplaceAllString(text, "\n\n")
	text = spaceRuns.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// filler 判定空回复时忽略的字符集
const filler = "…. \n\t"

// IsSubstantive 判断回复剥离填充字符后是否仍有实质内容。
// 少于 3 个字符的回复按空回复处理，调用方应跳过该轮发言。
func IsSubstantive(text string) bool {
	return len(strings.Trim(text, filler)) >= 3
}
