package conversation

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/BaSui01/convoflow/types"
)

// State 会话状态。驱动循环独占写入；外部读取走 Snapshot/Status
// 的短锁拷贝。phase 一旦 terminated 不再接受任何追加。
type State struct {
	mu sync.Mutex

	id            string
	messages      []types.Message
	currentCycle  int
	nextAgent     string
	participating []string
	phase         types.Phase
	termination   *types.Termination
	scenario      types.ScenarioSnapshot
}

// NewState 创建初始状态，phase 为 idle
func NewState(scenario types.ScenarioSnapshot, participating []string) *State {
	return &State{
		id:            uuid.NewString(),
		participating: append([]string(nil), participating...),
		phase:         types.PhaseIdle,
		scenario:      scenario,
		nextAgent:     scenario.StartingAgent,
	}
}

// ID 会话标识
func (s *State) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Append 追加一条消息。terminated 后拒绝；思考消息永不入史。
func (s *State) Append(msg types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == types.PhaseTerminated {
		return types.NewError(types.ErrTerminated, "conversation already terminated")
	}
	if msg.IsThought {
		return types.NewError(types.ErrInternalError, "thought messages are transient")
	}
	s.messages = append(s.messages, types.CloneMessage(msg))
	return nil
}

// AppendCycleMarker 在 cycle 完成处插入标记消息
func (s *State) AppendCycleMarker(cycle int) error {
	marker := types.NewMessage(types.AuthorSystem, types.RoleCycleMarker,
		fmt.Sprintf("--- Cycle %d Complete ---", cycle)).WithCycle(cycle)
	return s.Append(marker)
}

// History 返回消息历史的深拷贝
func (s *State) History() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = types.CloneMessage(m)
	}
	return out
}

// MessageCount 当前历史长度
func (s *State) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Phase 当前阶段
func (s *State) Phase() types.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// SetPhase 切换阶段。terminated 是吸收态，之后的切换被忽略。
func (s *State) SetPhase(p types.Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == types.PhaseTerminated {
		return
	}
	s.phase = p
}

// Terminate 记录终止原因并进入 terminated。重复调用无效果。
func (s *State) Terminate(reason string, atCycle int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == types.PhaseTerminated {
		return false
	}
	s.phase = types.PhaseTerminated
	s.termination = &types.Termination{Reason: reason, AtCycle: atCycle}
	return true
}

// Termination 返回终止记录（未终止时为 nil）
func (s *State) Termination() *types.Termination {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.termination == nil {
		return nil
	}
	t := *s.termination
	return &t
}

// NextAgent 下一个发言者
func (s *State) NextAgent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextAgent
}

// AdvanceAgent 按声明顺序轮转到下一个参与者
func (s *State) AdvanceAgent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, id := range s.participating {
		if id == s.nextAgent {
			s.nextAgent = s.participating[(i+1)%len(s.participating)]
			return
		}
	}
}

// SetCycle 同步 tracker 的当前 cycle 计数
func (s *State) SetCycle(cycle int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentCycle = cycle
}

// Participating 参与者 id 列表（声明顺序）
func (s *State) Participating() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.participating...)
}

// Scenario 冻结的场景参数
func (s *State) Scenario() types.ScenarioSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scenario
}

// Status 轻量状态视图
func (s *State) Status() types.StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := types.StatusSnapshot{
		ConversationID: s.id,
		Phase:          s.phase,
		CurrentCycle:   s.currentCycle,
		MessageCount:   len(s.messages),
		NextAgent:      s.nextAgent,
	}
	if s.termination != nil {
		t := *s.termination
		st.Termination = &t
	}
	return st
}

// Snapshot 深拷贝快照，供 status / export / archive 使用
func (s *State) Snapshot() types.ConversationSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := types.ConversationSnapshot{
		ID:           s.id,
		CurrentCycle: s.currentCycle,
		NextAgent:    s.nextAgent,
		Phase:        s.phase,
		Scenario:     s.scenario,
	}
	snap.Messages = make([]types.Message, len(s.messages))
	for i, m := range s.messages {
		snap.Messages[i] = types.CloneMessage(m)
	}
	if s.termination != nil {
		t := *s.termination
		snap.Termination = &t
	}
	return snap
}
