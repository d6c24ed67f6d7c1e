// =============================================================================
// 📡 订阅者广播
// =============================================================================
package events

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Sink 事件接收端。Publish 永不阻塞调用方。
type Sink interface {
	Publish(Event)
}

// Handler 订阅者事件处理函数
type Handler func(Event)

// subscriber 单个订阅者：有界队列 + 独立消费 goroutine
type subscriber struct {
	id      string
	ch      chan Event
	done    chan struct{}
	dropped atomic.Int64
	handler Handler
}

// Broadcaster 向所有订阅者扇出事件。
// 每个订阅者持有独立有界队列；队列满时丢弃最旧事件并累加计数，
// 发布方与其他订阅者不受慢订阅者影响。
type Broadcaster struct {
	mu        sync.RWMutex
	subs      map[string]*subscriber
	queueSize int
	stopped   bool
	logger    *zap.Logger
}

// NewBroadcaster 创建广播器。queueSize<=0 时使用 64。
func NewBroadcaster(queueSize int, logger *zap.Logger) *Broadcaster {
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		subs:      make(map[string]*subscriber),
		queueSize: queueSize,
		logger:    logger.With(zap.String("component", "event_broadcaster")),
	}
}

// Subscribe 注册订阅者并启动其消费 goroutine。
// 同名订阅者先被替换（旧的停止消费）。
func (b *Broadcaster) Subscribe(id string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}
	if old, ok := b.subs[id]; ok {
		close(old.done)
	}

	sub := &subscriber{
		id:      id,
		ch:      make(chan Event, b.queueSize),
		done:    make(chan struct{}),
		handler: handler,
	}
	b.subs[id] = sub
	go b.consume(sub)

	b.logger.Debug("subscriber registered", zap.String("subscriber_id", id))
}

// Unsubscribe 注销订阅者并停止其消费
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[id]; ok {
		close(sub.done)
		delete(b.subs, id)
		b.logger.Debug("subscriber removed", zap.String("subscriber_id", id))
	}
}

// Publish 向所有订阅者投递事件。队列满时丢弃该订阅者最旧的事件。
func (b *Broadcaster) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.stopped {
		return
	}
	for _, sub := range b.subs {
		select {
		case sub.ch <- e:
		default:
			// 队列满：弹出最旧一条再入队
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- e:
			default:
			}
			if sub.dropped.Add(1) == 1 {
				b.logger.Warn("slow subscriber, dropping oldest events",
					zap.String("subscriber_id", sub.id))
			}
		}
	}
}

// Dropped 返回某订阅者累计丢弃的事件数
func (b *Broadcaster) Dropped(id string) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if sub, ok := b.subs[id]; ok {
		return sub.dropped.Load()
	}
	return 0
}

// Stop 停止所有订阅者并拒绝后续发布
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}
	b.stopped = true
	for id, sub := range b.subs {
		close(sub.done)
		delete(b.subs, id)
	}
}

// consume 订阅者消费循环。handler panic 不影响其他订阅者。
func (b *Broadcaster) consume(sub *subscriber) {
	for {
		select {
		case <-sub.done:
			return
		case e := <-sub.ch:
			b.invoke(sub, e)
		}
	}
}

func (b *Broadcaster) invoke(sub *subscriber, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber handler panicked",
				zap.String("subscriber_id", sub.id),
				zap.Any("panic", r))
		}
	}()
	sub.handler(e)
}
