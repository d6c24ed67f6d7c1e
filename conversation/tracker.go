package conversation

import (
	"strings"

	"github.com/BaSui01/convoflow/types"
)

// CycleTracker cycle 计数与终止判定。
// 终止条件按固定顺序求值：max_cycles、keyword、silence，首个命中生效。
// 每轮结束后都会检查，keyword 不必等到 cycle 边界。
type CycleTracker struct {
	participating []string
	scenario      types.ScenarioSnapshot

	spoken       map[string]bool
	pendingLens  map[string]int
	currentCycle int
	// history 每个已完成 cycle 的发言修剪长度，静默检测用
	history [][]int
}

// NewCycleTracker 创建跟踪器
func NewCycleTracker(scenario types.ScenarioSnapshot, participating []string) *CycleTracker {
	return &CycleTracker{
		participating: append([]string(nil), participating...),
		scenario:      scenario,
		spoken:        make(map[string]bool),
		pendingLens:   make(map[string]int),
	}
}

// CurrentCycle 已完成的 cycle 数
func (t *CycleTracker) CurrentCycle() int {
	return t.currentCycle
}

// SpokenThisCycle 本 cycle 已发言的参与者
func (t *CycleTracker) SpokenThisCycle() []string {
	out := make([]string, 0, len(t.spoken))
	for _, id := range t.participating {
		if t.spoken[id] {
			out = append(out, id)
		}
	}
	return out
}

// RecordTurn 记录一轮发言；全部参与者发言后完成 cycle 并返回 true
func (t *CycleTracker) RecordTurn(agentID, finalContent string) bool {
	t.spoken[agentID] = true
	t.pendingLens[agentID] = len(strings.TrimSpace(finalContent))

	for _, id := range t.participating {
		if !t.spoken[id] {
			return false
		}
	}
	t.completeCycle()
	return true
}

// completeCycle 归档本 cycle 的发言签名并复位
func (t *CycleTracker) completeCycle() {
	sig := make([]int, 0, len(t.participating))
	for _, id := range t.participating {
		sig = append(sig, t.pendingLens[id])
	}
	t.history = append(t.history, sig)
	t.currentCycle++
	t.spoken = make(map[string]bool)
	t.pendingLens = make(map[string]int)
}

// CheckTermination 终止判定。返回 nil 表示继续。
// latestContent 是刚结束那轮的最终发言，keyword 匹配基于它。
func (t *CycleTracker) CheckTermination(latestContent string) *types.Termination {
	if t.scenario.MaxCycles > 0 && t.currentCycle >= t.scenario.MaxCycles {
		return &types.Termination{Reason: types.ReasonMaxCycles, AtCycle: t.currentCycle}
	}

	lower := strings.ToLower(latestContent)
	for _, kw := range t.scenario.KeywordTriggers {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return &types.Termination{Reason: types.KeywordReason(kw), AtCycle: t.currentCycle}
		}
	}

	if t.silenceDetected() {
		return &types.Termination{Reason: types.ReasonSilence, AtCycle: t.currentCycle}
	}
	return nil
}

// silenceDetected 最近 silence_threshold 个完整 cycle 中
// 所有最终发言的修剪长度都不超过 silence_min_length
func (t *CycleTracker) silenceDetected() bool {
	threshold := t.scenario.SilenceThreshold
	if threshold <= 0 || len(t.history) < threshold {
		return false
	}
	minLen := t.scenario.SilenceMinLength
	if minLen <= 0 {
		minLen = 20
	}
	for _, sig := range t.history[len(t.history)-threshold:] {
		for _, n := range sig {
			if n > minLen {
				return false
			}
		}
	}
	return true
}
