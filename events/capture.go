package events

import "sync"

// CaptureSink 测试用接收端：记录所有发布的事件并提供快照查询。
type CaptureSink struct {
	mu     sync.Mutex
	events []Event
}

// NewCaptureSink 创建捕获接收端
func NewCaptureSink() *CaptureSink {
	return &CaptureSink{}
}

// Publish 记录事件
func (s *CaptureSink) Publish(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

// Events 返回已发布事件的快照副本
func (s *CaptureSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// ByType 返回指定类型的事件快照
func (s *CaptureSink) ByType(t EventType) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Len 返回已记录的事件数
func (s *CaptureSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Reset 清空已记录的事件
func (s *CaptureSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// NopSink 丢弃一切事件
type NopSink struct{}

func (NopSink) Publish(Event) {}
