package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectInto(mu *sync.Mutex, dst *[]Event) Handler {
	return func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		*dst = append(*dst, e)
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestBroadcasterDeliversInOrder(t *testing.T) {
	b := NewBroadcaster(16, nil)
	defer b.Stop()

	var mu sync.Mutex
	var got []Event
	b.Subscribe("ui", collectInto(&mu, &got))

	for i := 0; i < 5; i++ {
		b.Publish(NewThought("alice", string(rune('a'+i))))
	}

	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 5
	})

	mu.Lock()
	defer mu.Unlock()
	for i, e := range got {
		assert.Equal(t, EventThought, e.Type)
		assert.Equal(t, string(rune('a'+i)), e.Content)
	}
}

func TestBroadcasterFansOutToAllSubscribers(t *testing.T) {
	b := NewBroadcaster(16, nil)
	defer b.Stop()

	var mu sync.Mutex
	var a, c []Event
	b.Subscribe("a", collectInto(&mu, &a))
	b.Subscribe("c", collectInto(&mu, &c))

	b.Publish(NewLifecycle(LifecycleStarted, ""))

	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(a) == 1 && len(c) == 1
	})
}

func TestBroadcasterDropsOldestForSlowSubscriber(t *testing.T) {
	b := NewBroadcaster(2, nil)
	defer b.Stop()

	block := make(chan struct{})
	var mu sync.Mutex
	var got []Event
	b.Subscribe("slow", func(e Event) {
		<-block
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})

	// 第一条被消费 goroutine 取走后阻塞，后续填满队列并触发丢弃
	for i := 0; i < 10; i++ {
		b.Publish(NewThought("alice", string(rune('0'+i))))
	}

	eventually(t, func() bool { return b.Dropped("slow") > 0 })
	close(block)

	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 1
	})

	// 最新事件存活，最旧的被丢弃
	mu.Lock()
	defer mu.Unlock()
	last := got[len(got)-1]
	assert.Equal(t, "9", last.Content)
}

func TestBroadcasterPublishNeverBlocks(t *testing.T) {
	b := NewBroadcaster(1, nil)
	defer b.Stop()

	b.Subscribe("stuck", func(Event) { select {} })

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.Publish(NewThought("alice", "x"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}

func TestBroadcasterUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroadcaster(16, nil)
	defer b.Stop()

	var mu sync.Mutex
	var got []Event
	b.Subscribe("ui", collectInto(&mu, &got))

	b.Publish(NewTurnIndicator("alice"))
	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})

	b.Unsubscribe("ui")
	b.Publish(NewTurnIndicator("bob"))

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, 1)
}

func TestBroadcasterHandlerPanicIsIsolated(t *testing.T) {
	b := NewBroadcaster(16, nil)
	defer b.Stop()

	var mu sync.Mutex
	var got []Event
	b.Subscribe("bad", func(Event) { panic("boom") })
	b.Subscribe("good", collectInto(&mu, &got))

	b.Publish(NewCycleUpdate(1, []string{"alice", "bob"}))
	b.Publish(NewCycleUpdate(2, []string{"alice", "bob"}))

	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})
}

func TestBroadcasterStopRejectsFurtherPublish(t *testing.T) {
	b := NewBroadcaster(16, nil)

	var mu sync.Mutex
	var got []Event
	b.Subscribe("ui", collectInto(&mu, &got))

	b.Stop()
	b.Publish(NewLifecycle(LifecycleEnded, "max_cycles"))

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, got)
}

func TestCaptureSinkSnapshots(t *testing.T) {
	s := NewCaptureSink()
	s.Publish(NewThought("alice", "hmm"))
	s.Publish(NewAgentMessage("alice", "Alice", "hello", 1))

	assert.Equal(t, 2, s.Len())
	assert.Len(t, s.ByType(EventThought), 1)
	assert.Len(t, s.ByType(EventAgentMessage), 1)

	snap := s.Events()
	s.Publish(NewTurnIndicator("bob"))
	assert.Len(t, snap, 2)
	assert.Equal(t, 3, s.Len())

	s.Reset()
	assert.Equal(t, 0, s.Len())
}
