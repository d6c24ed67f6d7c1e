package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/BaSui01/convoflow/events"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	return NewCollector("convoflow_test", prometheus.NewRegistry(), zap.NewNop())
}

func TestRecordHTTPRequest(t *testing.T) {
	c := newTestCollector(t)

	c.RecordHTTPRequest("GET", "/healthz", 200, 5*time.Millisecond)
	c.RecordHTTPRequest("GET", "/healthz", 200, 7*time.Millisecond)
	c.RecordHTTPRequest("POST", "/api/v1/conversation/start", 409, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(
		c.httpRequestsTotal.WithLabelValues("GET", "/healthz", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		c.httpRequestsTotal.WithLabelValues("POST", "/api/v1/conversation/start", "4xx")))
}

func TestObserveEventLifecycle(t *testing.T) {
	c := newTestCollector(t)

	c.ObserveEvent(events.NewLifecycle(events.LifecycleStarted, "debate"))
	c.ObserveEvent(events.NewLifecycle(events.LifecycleEnded, "max_cycles"))
	c.ObserveEvent(events.NewLifecycle(events.LifecycleEnded, "keyword:GOODBYE"))
	// 暂停恢复不计入启停计数
	c.ObserveEvent(events.NewLifecycle(events.LifecyclePaused, ""))

	assert.Equal(t, 1.0, testutil.ToFloat64(
		c.conversationsStarted.WithLabelValues("debate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		c.conversationsEnded.WithLabelValues("max_cycles")))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		c.conversationsEnded.WithLabelValues("keyword")))
}

func TestObserveEventConversationCounters(t *testing.T) {
	c := newTestCollector(t)

	c.ObserveEvent(events.NewCycleUpdate(1, []string{"alice", "bob"}))
	c.ObserveEvent(events.NewCycleUpdate(2, []string{"alice", "bob"}))
	c.ObserveEvent(events.NewAgentMessage("alice", "Alice", "hello", 1))
	c.ObserveEvent(events.NewAgentMessage("alice", "Alice", "more", 2))
	c.ObserveEvent(events.NewAgentMessage("bob", "Bob", "hi", 1))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.cyclesTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.messagesTotal.WithLabelValues("alice")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.messagesTotal.WithLabelValues("bob")))
}

func TestObserveEventToolAndError(t *testing.T) {
	c := newTestCollector(t)

	c.ObserveEvent(events.NewToolResult("calculator", "42", 120*time.Millisecond))
	c.ObserveEvent(events.NewError("model", "alice", "endpoint unreachable"))

	assert.Equal(t, 1.0, testutil.ToFloat64(
		c.toolCallsTotal.WithLabelValues("calculator")))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		c.errorsTotal.WithLabelValues("model")))
}

func TestRecordArchiveOp(t *testing.T) {
	c := newTestCollector(t)

	c.RecordArchiveOp("save", nil)
	c.RecordArchiveOp("save", errors.New("connection refused"))

	assert.Equal(t, 1.0, testutil.ToFloat64(
		c.archiveOps.WithLabelValues("save", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		c.archiveOps.WithLabelValues("save", "error")))
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(200))
	assert.Equal(t, "3xx", statusCode(304))
	assert.Equal(t, "4xx", statusCode(429))
	assert.Equal(t, "5xx", statusCode(502))
	assert.Equal(t, "unknown", statusCode(0))
}

func TestReasonLabel(t *testing.T) {
	assert.Equal(t, "max_cycles", reasonLabel("max_cycles"))
	assert.Equal(t, "keyword", reasonLabel("keyword:GOODBYE"))
	assert.Equal(t, "stopped", reasonLabel("stopped"))
}
