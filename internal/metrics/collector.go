package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/convoflow/events"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 会话指标
	conversationsStarted *prometheus.CounterVec
	conversationsEnded   *prometheus.CounterVec
	cyclesTotal          prometheus.Counter
	messagesTotal        *prometheus.CounterVec

	// 工具指标
	toolCallsTotal   *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec

	// 错误与归档指标
	errorsTotal *prometheus.CounterVec
	archiveOps  *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器。reg 为 nil 时注册到默认 Registry。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 会话指标
	c.conversationsStarted = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversations_started_total",
			Help:      "Total number of conversations started",
		},
		[]string{"scenario"},
	)

	c.conversationsEnded = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversations_ended_total",
			Help:      "Total number of conversations ended",
		},
		[]string{"reason"},
	)

	c.cyclesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total number of completed conversation cycles",
		},
	)

	c.messagesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_messages_total",
			Help:      "Total number of final agent messages",
		},
		[]string{"agent_id"},
	)

	// 工具指标
	c.toolCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool calls",
		},
		[]string{"tool"},
	)

	c.toolCallDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool call duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"tool"},
	)

	// 错误与归档指标
	c.errorsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of conversation errors",
		},
		[]string{"kind"},
	)

	c.archiveOps = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_operations_total",
			Help:      "Total number of archive operations",
		},
		[]string{"operation", "status"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🗄️ 归档指标记录
// =============================================================================

// RecordArchiveOp 记录归档操作
func (c *Collector) RecordArchiveOp(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.archiveOps.WithLabelValues(operation, status).Inc()
}

// =============================================================================
// 📡 事件流指标记录
// =============================================================================

// ObserveEvent 从事件流记录会话指标，直接作为 Broadcaster 订阅者挂接
func (c *Collector) ObserveEvent(e events.Event) {
	switch e.Type {
	case events.EventLifecycle:
		switch e.Kind {
		case events.LifecycleStarted:
			c.conversationsStarted.WithLabelValues(e.Detail).Inc()
		case events.LifecycleEnded:
			c.conversationsEnded.WithLabelValues(reasonLabel(e.Detail)).Inc()
		}
	case events.EventCycleUpdate:
		c.cyclesTotal.Inc()
	case events.EventAgentMessage:
		c.messagesTotal.WithLabelValues(e.AgentID).Inc()
	case events.EventToolResult:
		c.toolCallsTotal.WithLabelValues(e.ToolName).Inc()
		c.toolCallDuration.WithLabelValues(e.ToolName).
			Observe(float64(e.DurationMS) / 1000)
	case events.EventError:
		c.errorsTotal.WithLabelValues(e.Kind).Inc()
	}
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

// reasonLabel 把 keyword:xxx 类终止原因折叠成固定标签，避免高基数
func reasonLabel(reason string) string {
	if len(reason) >= 8 && reason[:8] == "keyword:" {
		return "keyword"
	}
	return reason
}
